package main

import (
	"os"

	"github.com/ktr0731/dynpb/app"
	"github.com/ktr0731/dynpb/cui"
)

func main() {
	os.Exit(app.New(cui.New()).Run(os.Args[1:]))
}

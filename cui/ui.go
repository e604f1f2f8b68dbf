// Package cui provides character user interfaces for I/O.
package cui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
)

// UI provides formatted I/O interfaces.
// It is used from the application and its presenters to show processed results.
type UI interface {
	// Output writes out the passed argument s to Writer with a line break.
	Output(s string)

	// Info is the same as Output, but distinguished from it for composition.
	Info(s string)

	// Error writes out the passed argument s to ErrWriter with a line break.
	Error(s string)

	// Writer returns an io.Writer which is used in Output.
	Writer() io.Writer
}

type basicUI struct {
	writer, errWriter io.Writer
}

// Option customizes a UI built by New.
type Option func(*basicUI)

// Writer sets the destination Output writes to.
func Writer(w io.Writer) Option {
	return func(u *basicUI) {
		u.writer = w
	}
}

// ErrWriter sets the destination Error writes to.
func ErrWriter(ew io.Writer) Option {
	return func(u *basicUI) {
		u.errWriter = ew
	}
}

// New creates a new UI with the passed options.
func New(opts ...Option) UI {
	ui := &basicUI{
		writer:    colorable.NewColorableStdout(),
		errWriter: colorable.NewColorableStderr(),
	}
	for _, opt := range opts {
		opt(ui)
	}
	return ui
}

// Output writes out the passed argument s to Writer with a line break.
func (u *basicUI) Output(s string) {
	fmt.Fprintln(u.writer, s)
}

// Info is the same as Output.
func (u *basicUI) Info(s string) {
	u.Output(s)
}

// Error writes out the passed argument s to ErrWriter with a line break.
func (u *basicUI) Error(s string) {
	fmt.Fprintln(u.errWriter, s)
}

// Writer returns an io.Writer which is used in Output.
func (u *basicUI) Writer() io.Writer {
	return u.writer
}

type coloredUI struct {
	UI
}

// NewColored wraps the provided ui with coloredUI.
// If ui is a *coloredUI, NewColored returns it as it is.
func NewColored(ui UI) UI {
	if ui, ok := ui.(*coloredUI); ok {
		return ui
	}
	return &coloredUI{ui}
}

// Info is the same as the wrapped UI's Info, but colored.
func (u *coloredUI) Info(s string) {
	u.UI.Info(color.BlueString(s))
}

// Error is the same as the wrapped UI's Error, but colored.
func (u *coloredUI) Error(s string) {
	u.UI.Error(color.RedString(s))
}

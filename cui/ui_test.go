package cui

import (
	"bytes"
	"testing"
)

func TestBasicUI(t *testing.T) {
	w, ew := new(bytes.Buffer), new(bytes.Buffer)
	ui := New(Writer(w), ErrWriter(ew))

	ui.Output("encoded 10 bytes")
	if expected := "encoded 10 bytes\n"; w.String() != expected {
		t.Errorf("expected '%s', but got '%s'", expected, w.String())
	}
	if ew.String() != "" {
		t.Errorf("Output must not write to the error writer, but got '%s'", ew.String())
	}

	ui.Error("no such type")
	if expected := "no such type\n"; ew.String() != expected {
		t.Errorf("expected '%s', but got '%s'", expected, ew.String())
	}

	if ui.Writer() != w {
		t.Errorf("Writer must return the writer passed by the Writer option")
	}
}

func TestNewColored(t *testing.T) {
	ui := New(Writer(new(bytes.Buffer)))
	colored := NewColored(ui)
	if _, ok := colored.(*coloredUI); !ok {
		t.Fatalf("NewColored must return *coloredUI, but got %T", colored)
	}

	again := NewColored(colored)
	if again != colored {
		t.Errorf("NewColored must return the passed ui as it is if it is already a *coloredUI")
	}
}

// Package logger provides logging utilities.
package logger

import (
	"io"
	"log"
)

const prefix = "dynpb: "

var defaultLogger = newLogger()

type logger struct {
	active bool
	l      *log.Logger
}

func newLogger() *logger {
	return &logger{
		l: log.New(io.Discard, prefix, log.LstdFlags),
	}
}

// SetOutput enables the logger and sets the log destination to w.
func SetOutput(w io.Writer) {
	defaultLogger.active = true
	defaultLogger.l.SetOutput(w)
}

// Println logs v in the manner of fmt.Println.
func Println(v ...interface{}) {
	defaultLogger.l.Println(v...)
}

// Printf logs v with format in the manner of fmt.Printf.
func Printf(format string, v ...interface{}) {
	defaultLogger.l.Printf(format, v...)
}

// Scriptln logs the result of f in the manner of fmt.Println.
// f is called only when the logger is enabled, so that expensive
// arguments cost nothing in the default state.
func Scriptln(f func() []interface{}) {
	if !defaultLogger.active {
		return
	}
	Println(f()...)
}

// Scriptf logs the result of f with format in the manner of fmt.Printf.
// f is called only when the logger is enabled.
func Scriptf(format string, f func() []interface{}) {
	if !defaultLogger.active {
		return
	}
	Printf(format, f()...)
}

// Reset disables the logger and discards its output again.
func Reset() {
	defaultLogger = newLogger()
}

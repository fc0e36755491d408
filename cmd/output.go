package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// StatusLinePrinter provides printing facilities for dynamically updating
// status lines in the console. It supports colorized printing.
type StatusLinePrinter struct {
	// UseStandardError causes the printer to use standard error for its output
	// instead of standard output (the default).
	UseStandardError bool
	// nonEmpty indicates whether or not the printer has printed any non-empty
	// content to the status line.
	nonEmpty bool
}

// output returns the stream to which the printer writes. We always use the
// color-aware streams so that escape sequences are handled on Windows.
func (p *StatusLinePrinter) output() io.Writer {
	if p.UseStandardError {
		return color.Error
	}
	return color.Output
}

// Print prints a message to the status line, overwriting any existing content.
// Color escape sequences are supported. Messages are truncated or padded to a
// platform-dependent width so that earlier content is fully overwritten.
func (p *StatusLinePrinter) Print(message string) {
	fmt.Fprintf(p.output(), statusLineFormat, message)
	p.nonEmpty = true
}

// Printf formats a message and prints it to the status line.
func (p *StatusLinePrinter) Printf(format string, arguments ...interface{}) {
	p.Print(fmt.Sprintf(format, arguments...))
}

// Clear clears any content on the status line and moves the cursor back to the
// beginning of the line.
func (p *StatusLinePrinter) Clear() {
	fmt.Fprintf(p.output(), statusLineClearFormat, "")
	p.nonEmpty = false
}

// BreakIfNonEmpty prints a newline character if the current line is non-empty.
func (p *StatusLinePrinter) BreakIfNonEmpty() {
	if p.nonEmpty {
		fmt.Fprintln(p.output())
		p.nonEmpty = false
	}
}

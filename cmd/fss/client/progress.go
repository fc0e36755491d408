package client

import (
	"fmt"
	"io"

	humanize "github.com/dustin/go-humanize"

	"github.com/fss-project/fss/cmd"
)

// progressReporter prints transfer progress. On terminals it maintains a status
// line. Otherwise it prints a line each time another 10% of the file is
// present at the destination.
type progressReporter struct {
	// verb is the transfer direction, e.g. "upload".
	verb string
	// output is the destination for progress lines.
	output io.Writer
	// statusLine is the status line printer, if any.
	statusLine *cmd.StatusLinePrinter
	// started indicates whether or not an update has been received.
	started bool
	// threshold is the next percentage at which a progress line is printed.
	threshold uint64
}

// newProgressReporter creates a new progress reporter. If statusLine is nil,
// progress is printed as lines to output.
func newProgressReporter(verb string, output io.Writer, statusLine *cmd.StatusLinePrinter) *progressReporter {
	return &progressReporter{
		verb:       verb,
		output:     output,
		statusLine: statusLine,
	}
}

// percentage computes the percentage of total represented by position.
func percentage(position, total uint64) uint64 {
	if total == 0 {
		return 100
	}
	return position * 100 / total
}

// update records transfer progress. It is compatible with client.ProgressFunc.
func (r *progressReporter) update(position, total uint64) {
	percent := percentage(position, total)

	// Handle the initial update, which reports resumed content.
	if !r.started {
		r.started = true
		if position > 0 && position < total {
			r.breakStatusLine()
			fmt.Fprintf(r.output, "Skipping %d%% of %s\n", percent, r.verb)
		}
		r.threshold = (percent/10 + 1) * 10
	}

	// Print progress.
	if r.statusLine != nil {
		r.statusLine.Printf("%3d%% %sed (%s of %s)", percent, r.verb,
			humanize.IBytes(position), humanize.IBytes(total),
		)
	} else if percent >= r.threshold {
		fmt.Fprintf(r.output, "%d%% %sed\n", percent, r.verb)
		r.threshold = (percent/10 + 1) * 10
	}
}

// breakStatusLine moves output past any status line content.
func (r *progressReporter) breakStatusLine() {
	if r.statusLine != nil {
		r.statusLine.BreakIfNonEmpty()
	}
}

// finish clears any status line.
func (r *progressReporter) finish() {
	if r.statusLine != nil {
		r.statusLine.Clear()
	}
}

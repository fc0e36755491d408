package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end of
// a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	// Append the data to our internal buffer.
	w.buffer = append(w.buffer, buffer...)

	// Process all complete lines in the buffer.
	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	// Shift any leftover fragment to the front of the buffer.
	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	// Done.
	return len(buffer), nil
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. All subloggers derived from a
// logger share its level and underlying output. It is safe for concurrent
// usage.
type Logger struct {
	// level is the maximum level at which the logger will emit output.
	level Level
	// prefix is any prefix specified for the logger.
	prefix string
	// output is the underlying standard library logger.
	output *log.Logger
}

// NewLogger creates a new root logger that writes lines at or below the
// specified level to the specified writer.
func NewLogger(level Level, destination io.Writer) *Logger {
	return &Logger{
		level:  level,
		output: log.New(destination, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Level returns the logger's level. A nil logger reports LevelDisabled.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

// Sublogger creates a new sublogger with the specified name.
func (l *Logger) Sublogger(name string) *Logger {
	// If the logger is nil, then the sublogger will be as well.
	if l == nil {
		return nil
	}

	// Compute the new prefix.
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	// Create the new logger.
	return &Logger{
		level:  l.level,
		prefix: prefix,
		output: l.output,
	}
}

// enabled returns whether or not a line at the specified level would be
// emitted.
func (l *Logger) enabled(level Level) bool {
	return l != nil && level <= l.level
}

// write is the internal logging method.
func (l *Logger) write(line string) {
	// Add a prefix if necessary.
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}

	// Log. The call depth accounts for write and the exported method.
	l.output.Output(3, line)
}

// Error logs information with semantics equivalent to fmt.Print, with an error
// prefix and red color.
func (l *Logger) Error(v ...interface{}) {
	if l.enabled(LevelError) {
		l.write(color.RedString("Error: %s", fmt.Sprint(v...)))
	}
}

// Errorf logs information with semantics equivalent to fmt.Printf, with an
// error prefix and red color.
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.write(color.RedString("Error: %s", fmt.Sprintf(format, v...)))
	}
}

// Warn logs information with semantics equivalent to fmt.Print, with a warning
// prefix and yellow color.
func (l *Logger) Warn(v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.write(color.YellowString("Warning: %s", fmt.Sprint(v...)))
	}
}

// Warnf logs information with semantics equivalent to fmt.Printf, with a
// warning prefix and yellow color.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.write(color.YellowString("Warning: %s", fmt.Sprintf(format, v...)))
	}
}

// Info logs information with semantics equivalent to fmt.Print.
func (l *Logger) Info(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.write(fmt.Sprint(v...))
	}
}

// Infof logs information with semantics equivalent to fmt.Printf.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.write(fmt.Sprintf(format, v...))
	}
}

// Debug logs information with semantics equivalent to fmt.Print.
func (l *Logger) Debug(v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.write(fmt.Sprint(v...))
	}
}

// Debugf logs information with semantics equivalent to fmt.Printf.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.write(fmt.Sprintf(format, v...))
	}
}

// Trace logs information with semantics equivalent to fmt.Print.
func (l *Logger) Trace(v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.write(fmt.Sprint(v...))
	}
}

// Tracef logs information with semantics equivalent to fmt.Printf.
func (l *Logger) Tracef(format string, v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.write(fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that logs each complete line written to it at
// the specified level.
func (l *Logger) Writer(level Level) io.Writer {
	// If the level isn't enabled, then we can just discard input since it won't
	// be logged anyway. This saves us the overhead of scanning lines.
	if !l.enabled(level) {
		return io.Discard
	}

	// Select the appropriate callback.
	var callback func(string)
	switch level {
	case LevelError:
		callback = func(s string) { l.Error(s) }
	case LevelWarn:
		callback = func(s string) { l.Warn(s) }
	case LevelInfo:
		callback = func(s string) { l.Info(s) }
	case LevelDebug:
		callback = func(s string) { l.Debug(s) }
	default:
		callback = func(s string) { l.Trace(s) }
	}

	// Create the writer.
	return &writer{callback: callback}
}

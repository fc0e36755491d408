package cmd

import (
	"os"

	isatty "github.com/mattn/go-isatty"
)

// IsTerminal returns whether or not the specified file is an interactive
// terminal, including mintty-based terminals on Windows.
func IsTerminal(file *os.File) bool {
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

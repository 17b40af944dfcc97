//go:build !windows

package ui

import (
	"io"
	"os"
)

// OpenTTY opens the controlling terminal, for prompts when stdin is piped.
func OpenTTY() (io.ReadWriteCloser, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

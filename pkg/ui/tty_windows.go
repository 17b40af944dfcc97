//go:build windows

package ui

import (
	"io"
	"os"
)

type console struct {
	in *os.File
}

func (c console) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c console) Write(p []byte) (int, error) { return os.Stderr.Write(p) }
func (c console) Close() error                { return c.in.Close() }

func OpenTTY() (io.ReadWriteCloser, error) {
	in, err := os.Open("CONIN$")
	if err != nil {
		return nil, err
	}
	return console{in: in}, nil
}

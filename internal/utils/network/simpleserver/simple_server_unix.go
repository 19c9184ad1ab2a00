//go:build !windows
// +build !windows

package simpleserver

import (
	"net"
	"os"
	"path/filepath"
)

// Listen returns a net.Listener for the specified path, creating its directory
// if needed
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return net.Listen("unix", path)
}

// Dial dials a UNIX domain socket and returns a net.Conn connection
func Dial(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}

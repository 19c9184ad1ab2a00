// Package simpleserver serves short text answers over a Unix domain socket, or
// a Named Pipe on Windows.  Each connection carries one request line from the
// client and the answer back from the server, after which the server hangs up.
package simpleserver

import (
	"bufio"
	"io/ioutil"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// How long the server waits for the request line
const requestTimeout = 5 * time.Second

// Server is a running simple server
type Server struct {
	listener net.Listener
	closed   int32
	done     chan struct{}
}

// Run creates and runs a simple server that will call handler with the
// request line of each connection and write back whatever that function
// returns to the client.
func Run(path string, handler func(request string) string, errs func(error)) (*Server, error) {
	os.Remove(path)

	listener, err := Listen(path)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			conn, err := listener.Accept()
			if atomic.LoadInt32(&s.closed) == 1 {
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				errs(err)
				continue
			}

			if err := serve(conn, handler); err != nil {
				errs(err)
			}
		}
	}()

	return s, nil
}

func serve(conn net.Conn, handler func(string) string) error {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(requestTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return err
	}

	_, err = conn.Write([]byte(handler(strings.TrimSpace(line))))
	return err
}

// Close stops the server and waits for the accept loop to exit
func (s *Server) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.listener.Close()
	<-s.done
}

// Query sends request to the server at path and returns its whole answer
func Query(path, request string) ([]byte, error) {
	conn, err := Dial(path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(request + "\n")); err != nil {
		return nil, err
	}

	return ioutil.ReadAll(conn)
}

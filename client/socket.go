package client

import "github.com/luma/samaio/transport"

// Socket is the non-blocking transport a Session or Connection drives. It
// is satisfied by *transport.Socket.
type Socket interface {
	Fd() int

	// Send writes what it can without blocking, possibly nothing.
	Send(p []byte) (int, error)

	// Peek and Recv return io.EOF once the peer has shut down, and 0 with a
	// nil error when nothing is pending.
	Peek(p []byte) (int, error)
	Recv(p []byte) (int, error)

	// Available reports how many bytes can be read without blocking.
	Available() (int, error)

	// Err reports the outcome of the non-blocking connect.
	Err() error

	Shutdown() error
	Close() error
}

// Dialer starts a non-blocking connect to host:port.
type Dialer func(host string, port int) (Socket, error)

// DialTCP is the default Dialer.
func DialTCP(host string, port int) (Socket, error) {
	sock, _, err := transport.Dial(host, port)
	if err != nil {
		return nil, err
	}

	return sock, nil
}

var _ Socket = (*transport.Socket)(nil)

package transport

import (
	"io"
	"net"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrNotIPv4 = errors.New("address does not resolve to a usable IPv4 address")
	ErrClosed  = errors.New("use of closed socket")
)

// Socket is a non-blocking TCP socket. None of its methods block, callers
// learn when to call them from a readiness poller.
type Socket struct {
	fd int
}

// Dial starts connecting to host:port without waiting for the connection to
// complete. complete is true in the rare case the kernel finished the
// connect immediately, otherwise the caller waits for the socket to become
// writable and then checks Err.
func Dial(host string, port int) (sock *Socket, complete bool, err error) {
	addr, err := net.ResolveTCPAddr("tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, false, errors.Wrapf(err, "resolve %s", host)
	}

	ip := addr.IP.To4()
	if ip == nil || ip.Equal(net.IPv4zero) || ip.Equal(net.IPv4bcast) || addr.Port < 1 {
		return nil, false, errors.Wrapf(ErrNotIPv4, "dial %s", addr)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, false, errors.Wrap(err, "socket")
	}

	// Best effort, a dead bridge is noticed sooner with keepalives
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], ip)

	for {
		err = unix.Connect(fd, sa)

		switch err {
		case nil:
			return &Socket{fd: fd}, true, nil

		case unix.EINPROGRESS, unix.EALREADY:
			return &Socket{fd: fd}, false, nil

		case unix.EINTR:
			continue

		default:
			unix.Close(fd)
			return nil, false, errors.Wrapf(err, "connect %s", addr)
		}
	}
}

// Fd returns the descriptor to poll on, or -1 once closed.
func (s *Socket) Fd() int {
	return s.fd
}

// Send writes as much of p as the kernel accepts right now and returns the
// number of bytes written. It may return 0 with a nil error when the send
// buffer is full.
//
// A large write against a congested buffer can be refused outright even
// though a smaller one would fit, so on EAGAIN the request is halved and
// retried.
func (s *Socket) Send(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, ErrClosed
	}

	total := 0

	for len(p) > 0 {
		n, err := unix.SendmsgN(s.fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
		if err != nil {
			switch err {
			case unix.EINTR:
				continue

			case unix.EAGAIN:
				if len(p) == 1 {
					return total, nil
				}

				if n, err = s.Send(p[:len(p)/2]); err != nil {
					return total, err
				}

			default:
				return total, errors.Wrap(err, "send")
			}
		}

		if n == 0 {
			break
		}

		p = p[n:]
		total += n
	}

	return total, nil
}

// Available returns the number of bytes that can be read without blocking.
func (s *Socket) Available() (int, error) {
	if s.fd < 0 {
		return 0, ErrClosed
	}

	n, err := unix.IoctlGetInt(s.fd, unix.SIOCINQ)
	if err != nil {
		return 0, errors.Wrap(err, "ioctl FIONREAD")
	}

	return n, nil
}

// Peek copies pending bytes into p without consuming them. It returns
// io.EOF once the peer has shut down its side, and 0 with a nil error when
// nothing is pending.
func (s *Socket) Peek(p []byte) (int, error) {
	return s.recv(p, unix.MSG_PEEK)
}

// Recv consumes pending bytes, see Peek.
func (s *Socket) Recv(p []byte) (int, error) {
	return s.recv(p, 0)
}

// Receive reads whatever is available, up to len(p), and never blocks.
func (s *Socket) Receive(p []byte) (int, error) {
	total := 0

	for len(p) > 0 {
		av, err := s.Available()
		if err != nil {
			return total, err
		}

		if av == 0 {
			break
		}

		if av > len(p) {
			av = len(p)
		}

		n, err := s.Recv(p[:av])
		if err == io.EOF {
			break
		}

		if err != nil {
			return total, err
		}

		if n == 0 {
			break
		}

		p = p[n:]
		total += n
	}

	return total, nil
}

func (s *Socket) recv(p []byte, flags int) (int, error) {
	if s.fd < 0 {
		return 0, ErrClosed
	}

	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, _, err := unix.Recvfrom(s.fd, p, flags|unix.MSG_DONTWAIT)

		switch {
		case err == unix.EINTR:
			continue

		case err == unix.EAGAIN:
			return 0, nil

		case err != nil:
			return 0, errors.Wrap(err, "recv")

		case n == 0:
			return 0, io.EOF
		}

		return n, nil
	}
}

// Err returns the pending socket error, which is how the outcome of a
// non-blocking connect is reported.
func (s *Socket) Err() error {
	if s.fd < 0 {
		return ErrClosed
	}

	v, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrap(err, "getsockopt SO_ERROR")
	}

	if v != 0 {
		return errors.Wrap(syscall.Errno(v), "connect")
	}

	return nil
}

// Shutdown stops both directions but keeps the descriptor open.
func (s *Socket) Shutdown() error {
	if s.fd < 0 {
		return ErrClosed
	}

	if err := unix.Shutdown(s.fd, unix.SHUT_RDWR); err != nil && err != unix.ENOTCONN {
		return errors.Wrap(err, "shutdown")
	}

	return nil
}

// Close releases the descriptor. Closing twice is a no-op.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}

	fd := s.fd
	s.fd = -1

	return errors.Wrap(unix.Close(fd), "close")
}

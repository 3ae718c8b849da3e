package client

import (
	"context"
	"time"

	"github.com/luma/samaio/transport"
)

// Poller waits for readiness of the descriptors in readable and writable
// and leaves only the ready ones set. *transport.Poller implements it.
type Poller interface {
	Wait(readable, writable transport.FDSet, timeout time.Duration) (int, error)
	Wake() error
}

var _ Poller = (*transport.Poller)(nil)

// CollectReadiness adds the descriptors of the session and its connections
// that wait for readiness to readable and writable. Either set may be nil.
// It returns the highest descriptor added, or -1 if none was.
func (s *Session) CollectReadiness(readable, writable transport.FDSet) int {
	if s.destroyed {
		return -1
	}

	maxFd := collect(&s.endpoint, readable, writable, -1)

	for _, id := range s.order {
		if c, ok := s.conns[id]; ok {
			maxFd = collect(&c.endpoint, readable, writable, maxFd)
		}
	}

	return maxFd
}

// Dispatch runs the armed steps of the session and its connections whose
// descriptors are set in readable or writable. Reading runs first, writing
// only if the endpoint is still live afterwards.
func (s *Session) Dispatch(readable, writable transport.FDSet) {
	if s.destroyed {
		return
	}

	dispatch(&s.endpoint, readable, writable)

	// Handlers may add or close connections while we iterate
	ids := append([]ConnID(nil), s.order...)

	for _, id := range ids {
		if s.destroyed {
			return
		}

		if c, ok := s.conns[id]; ok {
			dispatch(&c.endpoint, readable, writable)
		}
	}
}

func collect(e *endpoint, readable, writable transport.FDSet, maxFd int) int {
	if e.sock == nil || e.cancelled {
		return maxFd
	}

	fd := e.sock.Fd()
	if fd < 0 {
		return maxFd
	}

	if e.onReadable != nil && readable != nil {
		readable.Set(fd)
		if fd > maxFd {
			maxFd = fd
		}
	}

	if e.onWritable != nil && writable != nil {
		writable.Set(fd)
		if fd > maxFd {
			maxFd = fd
		}
	}

	return maxFd
}

func dispatch(e *endpoint, readable, writable transport.FDSet) {
	if e.sock == nil || e.cancelled {
		return
	}

	fd := e.sock.Fd()

	if e.onReadable != nil && readable.IsSet(fd) {
		e.onReadable()
	}

	if e.sock == nil || e.cancelled {
		return
	}

	if e.onWritable != nil && writable.IsSet(fd) {
		e.onWritable()
	}
}

// Run drives sessions until none of them is active or ctx is done. Each
// round collects readiness, waits on poller for at most timeout and
// dispatches.
func Run(ctx context.Context, poller Poller, timeout time.Duration, sessions ...*Session) error {
	stop := make(chan struct{})
	woken := make(chan struct{})

	go func() {
		defer close(woken)

		select {
		case <-ctx.Done():
			_ = poller.Wake()
		case <-stop:
		}
	}()

	// The poller may be closed as soon as we return, so no Wake may follow
	defer func() {
		close(stop)
		<-woken
	}()

	readable, writable := transport.NewFDSet(), transport.NewFDSet()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readable.Clear()
		writable.Clear()

		active := false
		for _, s := range sessions {
			if s.IsActive() {
				active = true
			}

			s.CollectReadiness(readable, writable)
		}

		if !active {
			return nil
		}

		if _, err := poller.Wait(readable, writable, timeout); err != nil {
			return err
		}

		for _, s := range sessions {
			s.Dispatch(readable, writable)
		}
	}
}

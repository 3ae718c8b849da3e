package transport

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const maxEvents = 128

// Poller waits for readiness on a changing set of descriptors. It fills the
// role of select(2) for the reactor: every iteration the caller hands over
// the descriptors it is interested in and gets back the ready ones.
type Poller struct {
	fd     int
	wakeFd int

	registered map[int]uint32
	events     []unix.EpollEvent
}

func MakePoller() (*Poller, error) {
	var (
		poller = Poller{
			registered: make(map[int]uint32),
			events:     make([]unix.EpollEvent, maxEvents),
		}
		err error
	)

	// Open an epoll fd
	// https://man7.org/linux/man-pages/man2/epoll_create.2.html
	poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}

	// https://man7.org/linux/man-pages/man2/eventfd.2.html
	poller.wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(poller.fd)
		return nil, errors.Wrap(err, "eventfd")
	}

	// Register our interest for reads on our wakeFd
	// https://man7.org/linux/man-pages/man2/epoll_ctl.2.html
	event := &unix.EpollEvent{Fd: int32(poller.wakeFd), Events: unix.EPOLLIN}

	if err = unix.EpollCtl(poller.fd, unix.EPOLL_CTL_ADD, poller.wakeFd, event); err != nil {
		unix.Close(poller.wakeFd)
		unix.Close(poller.fd)
		return nil, errors.Wrap(err, "epoll_ctl wakeFd")
	}

	return &poller, nil
}

// Wait blocks until a descriptor in readable or writable is ready, the
// timeout expires or Wake is called. A negative timeout waits forever.
//
// On return both sets only contain the descriptors that are ready in the
// respective direction. The number of ready descriptors is returned. An
// interrupted wait reports nothing ready rather than an error.
func (p *Poller) Wait(readable, writable FDSet, timeout time.Duration) (int, error) {
	want := make(map[int]uint32, len(readable)+len(writable))

	for fd := range readable {
		want[fd] |= unix.EPOLLIN | unix.EPOLLRDHUP
	}

	for fd := range writable {
		want[fd] |= unix.EPOLLOUT
	}

	readable.Clear()
	writable.Clear()

	if err := p.sync(want); err != nil {
		return 0, err
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, p.events, ms)
	if err == unix.EINTR {
		return 0, nil
	}

	if err != nil {
		return 0, errors.Wrap(err, "epoll_wait")
	}

	ready := 0

	for _, ev := range p.events[:n] {
		fd := int(ev.Fd)

		if fd == p.wakeFd {
			p.drainWake()
			continue
		}

		interest := want[fd]
		hit := false

		if interest&unix.EPOLLIN != 0 && ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			readable.Set(fd)
			hit = true
		}

		if interest&unix.EPOLLOUT != 0 && ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			writable.Set(fd)
			hit = true
		}

		if hit {
			ready++
		}
	}

	return ready, nil
}

// sync brings the epoll registrations in line with want. Descriptors are
// re-registered on every call: the kernel drops a registration when its
// descriptor is closed and the number may since have been reused.
func (p *Poller) sync(want map[int]uint32) error {
	for fd := range p.registered {
		if _, ok := want[fd]; !ok {
			// May already be gone if the descriptor was closed
			_ = unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
			delete(p.registered, fd)
		}
	}

	for fd, events := range want {
		event := &unix.EpollEvent{Fd: int32(fd), Events: events}

		err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, event)
		if err == unix.ENOENT {
			err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, event)
		}

		if err != nil {
			return errors.Wrapf(err, "epoll_ctl fd %d", fd)
		}

		p.registered[fd] = events
	}

	return nil
}

// Wake interrupts a concurrent Wait. It is the only Poller method that is
// safe to call from another goroutine.
func (p *Poller) Wake() error {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)

	_, err := unix.Write(p.wakeFd, one[:])
	if err == unix.EAGAIN {
		// Counter is saturated, a wake up is already pending
		return nil
	}

	return errors.Wrap(err, "eventfd write")
}

func (p *Poller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakeFd, buf[:])
}

func (p *Poller) Close() error {
	if err := unix.Close(p.wakeFd); err != nil {
		return err
	}

	return unix.Close(p.fd)
}

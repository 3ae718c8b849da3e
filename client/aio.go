package client

import (
	"bytes"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
)

// endpoint is the I/O state shared by sessions and connections: one socket
// to the bridge, one transfer buffer and the step functions armed for the
// next readiness event. A nil step means no interest in that direction.
type endpoint struct {
	sock      Socket
	cancelled bool
	buf       TransferBuffer

	onReadable func()
	onWritable func()

	lastError string
	cause     error

	// onFail is the owner's error path
	onFail func(reason string, cause error)

	log *zap.Logger
}

// Err returns the reason of the last failure, or an empty string.
func (e *endpoint) Err() string {
	return e.lastError
}

// Cause returns the underlying error of the last failure, if any.
func (e *endpoint) Cause() error {
	return e.cause
}

func (e *endpoint) disarm() {
	e.onReadable = nil
	e.onWritable = nil
}

// awaitConnect arms the completion check of the non-blocking connect
// followed by the version handshake. sent runs once HELLO is queued and
// next once the bridge accepted our version.
func (e *endpoint) awaitConnect(sent, next func()) {
	e.onReadable = nil
	e.onWritable = func() {
		if err := e.sock.Err(); err != nil {
			e.onFail(ReasonConnection, err)
			return
		}

		sent()

		e.sendCommandAwaitReply(protocol.Hello(), func(r protocol.Reply) {
			if !r.Matches(protocol.VerbHello, protocol.ActionReply, protocol.KeyResult, protocol.ResultOK) ||
				!r.Matches("", "", protocol.KeyVersion, protocol.Version) {
				e.onFail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Handshake refused '%s': %w", r, ErrBadReply))
				return
			}

			e.disarm()
			next()
		})
	}
}

// sendCommandAwaitReply flushes cmd once the socket is writable, then
// reads a single reply line and hands it to onReply. Lines that do not
// parse fail the owner.
func (e *endpoint) sendCommandAwaitReply(cmd []byte, onReply func(protocol.Reply)) {
	e.log.Debug("Sending command", zap.ByteString("cmd", bytes.TrimSuffix(cmd, protocol.Terminal)))

	e.buf.Load(cmd)
	e.onReadable = nil
	e.onWritable = func() {
		done, err := sendStep(e.sock, &e.buf)
		if err != nil {
			e.onFail(ReasonIOError, err)
			return
		}

		if !done {
			return
		}

		e.awaitLine(func(line string) {
			r, err := protocol.ParseReply(line)
			if err != nil {
				e.onFail(ReasonI2PError, err)
				return
			}

			onReply(r)
		})
	}
}

// awaitLine arms the line reader. onLine receives the line without its
// terminator.
func (e *endpoint) awaitLine(onLine func(line string)) {
	e.buf.Expect(protocol.MaxReplyLine)
	e.onWritable = nil
	e.onReadable = func() {
		line, done, err := lineStep(e.sock, &e.buf)
		if err != nil {
			e.onFail(ReasonIOError, err)
			return
		}

		if !done {
			return
		}

		e.onReadable = nil
		e.log.Debug("Received reply", zap.String("line", line))

		onLine(line)
	}
}

// sendStep flushes as much of buf as the socket takes. It reports true
// once everything was sent.
func sendStep(sock Socket, buf *TransferBuffer) (bool, error) {
	for buf.Pending() {
		n, err := sock.Send(buf.Unsent())
		if err != nil {
			return false, err
		}

		if n == 0 {
			return false, nil
		}

		buf.Advance(n)
	}

	return true, nil
}

// lineStep moves pending bytes into buf up to and including the first
// '\n'. The terminator is consumed from the socket but never stored, so
// bytes following the line stay queued for whoever reads next.
func lineStep(sock Socket, buf *TransferBuffer) (string, bool, error) {
	for {
		av, err := sock.Available()
		if err != nil {
			return "", false, err
		}

		if av == 0 {
			return "", false, checkHangup(sock)
		}

		space := buf.Space()
		if len(space) == 0 {
			return "", false, ErrLineTooLong
		}

		if av < len(space) {
			space = space[:av]
		}

		n, err := sock.Peek(space)
		if err != nil {
			return "", false, err
		}

		if n == 0 {
			return "", false, nil
		}

		peeked := space[:n]

		end := bytes.IndexByte(peeked, '\n')
		if end >= 0 {
			peeked = peeked[:end]
		}

		if bytes.IndexByte(peeked, 0) >= 0 {
			return "", false, ErrNulInLine
		}

		want := len(peeked)
		if end >= 0 {
			want++
		}

		got, err := sock.Recv(space[:want])
		if err != nil {
			return "", false, err
		}

		if got != want {
			return "", false, ErrShortRecv
		}

		buf.Fill(len(peeked))

		if end >= 0 {
			return string(protocol.RemoveTrailingCR(buf.Bytes())), true, nil
		}

		// The limit counts the terminator, a full buffer can never complete
		if buf.Full() {
			return "", false, ErrLineTooLong
		}
	}
}

// fillStep reads pending bytes until buf is full. It reports true once it
// is.
func fillStep(sock Socket, buf *TransferBuffer) (bool, error) {
	for !buf.Full() {
		av, err := sock.Available()
		if err != nil {
			return false, err
		}

		if av == 0 {
			return false, checkHangup(sock)
		}

		space := buf.Space()
		if av < len(space) {
			space = space[:av]
		}

		n, err := sock.Recv(space)
		if err != nil {
			return false, err
		}

		if n == 0 {
			return false, nil
		}

		buf.Fill(n)
	}

	return true, nil
}

// checkHangup is called when the socket was reported readable but nothing
// is pending, which is how a peer shutdown shows up.
func checkHangup(sock Socket) error {
	var one [1]byte

	_, err := sock.Peek(one[:])
	if err == io.EOF {
		return ErrPeerClosed
	}

	return err
}

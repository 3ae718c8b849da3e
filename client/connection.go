package client

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
)

// maxReadChunk bounds a single OnRead delivery.
const maxReadChunk = 64 * 1024

type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnHandshakeSent
	ConnRequestSent
	ConnAwaitingPeer
	ConnConnected
	ConnAccepted
	ConnError
	ConnCancelled
	ConnDestroyed
)

var connStateNames = [...]string{
	"Connecting",
	"HandshakeSent",
	"RequestSent",
	"AwaitingPeer",
	"Connected",
	"Accepted",
	"Error",
	"Cancelled",
	"Destroyed",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(connStateNames) {
		return fmt.Sprintf("ConnState(%d)", int(s))
	}

	return connStateNames[s]
}

// Connection is a single stream on a STREAM session. Each has its own
// socket to the bridge, which carries raw bytes once connected or
// accepted.
type Connection struct {
	endpoint

	id      ConnID
	session *Session
	handler ConnectionHandler
	state   ConnState

	// destinationKey is the peer: the target of StreamConnect, or the
	// remote side of StreamAccept once known
	destinationKey string

	established bool
	closing     bool
	destroyed   bool

	scratch     []byte
	userContext interface{}
}

// StreamConnect opens a stream to destKey. OnConnected fires once the
// bridge reached the peer.
func (s *Session) StreamConnect(h ConnectionHandler, destKey string) (*Connection, error) {
	if err := s.checkStream(); err != nil {
		return nil, err
	}

	if !protocol.ValidKey(destKey, protocol.PublicKeySize) {
		return nil, ErrInvalidKey
	}

	c, err := s.newConnection(h)
	if err != nil {
		return nil, err
	}

	c.destinationKey = destKey
	c.awaitConnect(c.handshakeSent, c.requestConnect)

	return c, nil
}

// StreamAccept waits for the next incoming stream. OnAccepted fires with
// DestinationKey set to the peer.
func (s *Session) StreamAccept(h ConnectionHandler) (*Connection, error) {
	if err := s.checkStream(); err != nil {
		return nil, err
	}

	c, err := s.newConnection(h)
	if err != nil {
		return nil, err
	}

	c.awaitConnect(c.handshakeSent, c.requestAccept)

	return c, nil
}

func (s *Session) checkStream() error {
	if s.destroyed {
		return ErrSessionClosed
	}

	if s.kind != KindStream {
		return ErrNotStream
	}

	if !s.IsActive() || s.state != StateCreated {
		return ErrNotCreated
	}

	return nil
}

func (s *Session) newConnection(h ConnectionHandler) (*Connection, error) {
	sock, err := s.opts.Dialer(s.opts.Host, s.opts.Port)
	if err != nil {
		return nil, err
	}

	if h == nil {
		h = ConnectionCallbacks{}
	}

	c := &Connection{
		session: s,
		handler: h,
		state:   ConnConnecting,
	}

	c.sock = sock
	c.onFail = c.fail
	s.addConn(c)
	c.log = s.log.Named("conn").With(zap.Uint64("conn", uint64(c.id)))

	return c, nil
}

func (c *Connection) handshakeSent() {
	c.state = ConnHandshakeSent
}

func (c *Connection) requestConnect() {
	c.state = ConnRequestSent

	cmd := protocol.StreamConnect(c.session.channel, c.destinationKey)

	c.sendCommandAwaitReply(cmd, func(r protocol.Reply) {
		if !r.Matches(protocol.VerbStream, protocol.ActionStatus, protocol.KeyResult, protocol.ResultOK) {
			c.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Connect refused '%s': %w", r, ErrBadReply))
			return
		}

		c.state = ConnConnected
		c.established = true
		c.log.Info("Stream connected")

		c.startDuplex()
		c.handler.OnConnected(c)
	})
}

func (c *Connection) requestAccept() {
	c.state = ConnRequestSent

	c.sendCommandAwaitReply(protocol.StreamAccept(c.session.channel), func(r protocol.Reply) {
		if !r.Matches(protocol.VerbStream, protocol.ActionStatus, protocol.KeyResult, protocol.ResultOK) {
			c.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Accept refused '%s': %w", r, ErrBadReply))
			return
		}

		c.state = ConnAwaitingPeer
		c.awaitLine(c.peerAccepted)
	})
}

// peerAccepted handles the line the bridge writes once a peer connects:
// the peer's public key, optionally followed by options. A line carrying
// RESULT is the bridge reporting a failure instead.
func (c *Connection) peerAccepted(line string) {
	if r, err := protocol.ParseReply(line); err == nil && r.Result() != "" {
		c.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Accept failed '%s': %w", r, ErrBadReply))
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 || !protocol.ValidKey(fields[0], protocol.PublicKeySize) {
		c.fail(ReasonInvalidKey, fmt.Errorf("Peer key: %w", ErrInvalidReply))
		return
	}

	c.destinationKey = fields[0]
	c.state = ConnAccepted
	c.established = true
	c.log.Info("Stream accepted")

	c.startDuplex()
	c.handler.OnAccepted(c)
}

// startDuplex switches the connection to raw data. Write interest stays
// armed so OnSent fires on the next writable event.
func (c *Connection) startDuplex() {
	c.buf.Reset()
	c.onReadable = c.readData
	c.onWritable = c.writeData
}

func (c *Connection) writeData() {
	if c.buf.Pending() {
		done, err := sendStep(c.sock, &c.buf)
		if err != nil {
			c.fail(ReasonIOError, err)
			return
		}

		if !done {
			return
		}
	}

	c.buf.Reset()
	c.onWritable = nil
	c.handler.OnSent(c)
}

func (c *Connection) readData() {
	av, err := c.sock.Available()
	if err != nil {
		c.fail(ReasonIOError, err)
		return
	}

	if av == 0 {
		c.checkHangup()
		return
	}

	if av > maxReadChunk {
		av = maxReadChunk
	}

	if cap(c.scratch) < av {
		c.scratch = make([]byte, av)
	}

	n, err := c.sock.Recv(c.scratch[:av])
	if err != nil {
		c.fail(ReasonIOError, err)
		return
	}

	if n > 0 {
		c.handler.OnRead(c, c.scratch[:n])
	}
}

// checkHangup tells an orderly close by the peer, which cancels the
// connection, from a failure.
func (c *Connection) checkHangup() {
	err := checkHangup(c.sock)

	switch {
	case err == nil:

	case errors.Is(err, ErrPeerClosed):
		c.log.Info("Stream closed by peer")
		c.cause = err
		c.Cancel()

	default:
		c.fail(ReasonIOError, err)
	}
}

// Send queues p for transmission, which happens on the following writable
// events. Only one send may be in flight, wait for OnSent before sending
// again.
func (c *Connection) Send(p []byte) error {
	if c.destroyed {
		return ErrConnectionClosed
	}

	if c.cancelled || !c.established {
		return ErrNotConnected
	}

	if c.buf.Pending() {
		return ErrQueueBusy
	}

	if len(p) == 0 {
		return nil
	}

	c.buf.Load(p)
	c.onWritable = c.writeData

	return nil
}

// Pending reports whether a send is still in flight.
func (c *Connection) Pending() bool {
	return c.buf.Pending()
}

func (c *Connection) fail(reason string, cause error) {
	if c.destroyed {
		return
	}

	if reason == "" {
		reason = ReasonI2PError
	}

	c.log.Warn("Connection failed",
		zap.String("reason", reason),
		zap.Stringer("state", c.state),
		zap.Error(cause))

	c.lastError = reason
	c.cause = cause
	c.disarm()
	c.buf.Release()
	c.state = ConnError

	c.handler.OnError(c)

	if !c.destroyed {
		c.shutdown()
	}
}

func (c *Connection) shutdown() {
	if c.cancelled || c.sock == nil {
		return
	}

	c.cancelled = true

	if err := c.sock.Shutdown(); err != nil {
		c.log.Debug("Failed to shut down socket cleanly", zap.Error(err))
	}

	if c.established {
		c.established = false
		c.handler.OnDisconnected(c)
	}
}

// Cancel stops the connection. It is safe to call more than once.
func (c *Connection) Cancel() {
	if c.destroyed {
		return
	}

	c.disarm()
	c.buf.Release()

	if !c.cancelled && c.state != ConnError {
		c.state = ConnCancelled
	}

	c.shutdown()
}

// Close cancels the connection, removes it from its session and fires
// OnDestroy. Closing twice is a no-op.
func (c *Connection) Close() error {
	if c.destroyed || c.closing {
		return nil
	}
	c.closing = true

	c.Cancel()

	if c.session != nil {
		c.session.removeConn(c.id)
	}

	c.handler.OnDestroy(c)

	var err error
	if c.sock != nil {
		err = c.sock.Close()
	}

	id, log := c.id, c.log
	*c = Connection{
		id:        id,
		state:     ConnDestroyed,
		destroyed: true,
		handler:   ConnectionCallbacks{},
	}
	c.log = log
	c.onFail = c.fail

	return err
}

func (c *Connection) ID() ConnID {
	return c.id
}

func (c *Connection) Session() *Session {
	return c.session
}

func (c *Connection) State() ConnState {
	return c.state
}

// DestinationKey is the public key of the peer.
func (c *Connection) DestinationKey() string {
	return c.destinationKey
}

// IsActive reports whether the connection still has a live socket.
func (c *Connection) IsActive() bool {
	return !c.destroyed && c.sock != nil && !c.cancelled
}

func (c *Connection) Context() interface{} {
	return c.userContext
}

func (c *Connection) SetContext(v interface{}) {
	c.userContext = v
}

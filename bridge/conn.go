package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
)

var errNotGreeted = errors.New("Client did not say HELLO first")

// conn is one client connection. It starts out reading commands and may
// turn into a raw byte pipe after STREAM CONNECT or STREAM ACCEPT.
type conn struct {
	b  *Bridge
	nc net.Conn
	r  *bufio.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	greeted bool

	// session is set on the control connection of a session
	session *session

	log *zap.Logger
}

func newConn(b *Bridge, nc net.Conn) *conn {
	return &conn{
		b:    b,
		nc:   nc,
		r:    bufio.NewReaderSize(nc, protocol.MaxReplyLine),
		done: make(chan struct{}),
		log:  b.log.Named("conn").With(zap.Stringer("remote", nc.RemoteAddr())),
	}
}

func (c *conn) Close() (err error) {
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})

	return err
}

func (c *conn) write(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, err := c.nc.Write(p)
	return err
}

func (c *conn) send(verb, action string, fields ...protocol.Field) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	return protocol.WriteReply(c.nc, verb, action, fields...)
}

func (c *conn) reply(verb, action, result string, fields ...protocol.Field) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	return protocol.WriteResult(c.nc, verb, action, result, fields...)
}

// serve reads commands until the client goes away, or until a stream
// command hands the connection over to splicing.
func (c *conn) serve(ctx context.Context) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if err != io.EOF && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				c.log.Warn("Failed to read client command", zap.Error(err))
			}

			return
		}

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		req, err := protocol.ParseReply(line)
		if err != nil {
			c.log.Warn("Ignoring malformed command", zap.String("line", line), zap.Error(err))
			continue
		}

		c.b.metrics.commands.WithLabelValues(req.Verb(), req.Action()).Inc()
		c.log.Debug("Command", zap.String("line", line))

		handoff, err := c.handle(ctx, req)
		if err != nil {
			c.log.Info("Closing client connection", zap.Error(err))
			return
		}

		if handoff != nil {
			handoff()
			return
		}
	}
}

func (c *conn) handle(ctx context.Context, req protocol.Reply) (func(), error) {
	if !c.greeted && req.Verb() != protocol.VerbHello {
		_ = c.reply(req.Verb(), protocol.ActionStatus, protocol.ResultI2PError,
			protocol.Field{Name: protocol.KeyMessage, Value: errNotGreeted.Error()})
		return nil, errNotGreeted
	}

	switch {
	case req.Matches(protocol.VerbHello, protocol.ActionVersion, "", ""):
		return nil, c.hello(req)

	case req.Matches(protocol.VerbSession, protocol.ActionCreate, "", ""):
		return nil, c.createSession(req)

	case req.Matches(protocol.VerbNaming, protocol.ActionLookup, "", ""):
		return nil, c.lookup(ctx, req)

	case req.Matches(protocol.VerbDest, protocol.ActionGenerate, "", ""):
		return nil, c.generate()

	case req.Matches(protocol.VerbStream, protocol.ActionConnect, "", ""):
		return c.streamConnect(req)

	case req.Matches(protocol.VerbStream, protocol.ActionAccept, "", ""):
		return c.streamAccept(ctx, req)
	}

	return nil, c.reply(req.Verb(), protocol.ActionStatus, protocol.ResultI2PError,
		protocol.Field{Name: protocol.KeyMessage, Value: "unsupported command"})
}

func (c *conn) hello(req protocol.Reply) error {
	min, _ := req.Get(protocol.KeyMin)
	max, _ := req.Get(protocol.KeyMax)

	if (min != "" && min > protocol.Version) || (max != "" && max < protocol.Version) {
		return c.reply(protocol.VerbHello, protocol.ActionReply, protocol.ResultNoVersion)
	}

	c.greeted = true

	return c.reply(protocol.VerbHello, protocol.ActionReply, protocol.ResultOK,
		protocol.Field{Name: protocol.KeyVersion, Value: protocol.Version})
}

func (c *conn) createSession(req protocol.Reply) error {
	fail := func(result string) error {
		return c.reply(protocol.VerbSession, protocol.ActionStatus, result)
	}

	if c.session != nil {
		return fail(protocol.ResultI2PError)
	}

	style, _ := req.Get(protocol.KeyStyle)
	id, _ := req.Get(protocol.KeyID)
	dest, _ := req.Get(protocol.KeyDestination)

	if !protocol.Style(style).IsValid() || id == "" {
		return fail(protocol.ResultI2PError)
	}

	s := &session{
		id:      id,
		style:   protocol.Style(style),
		control: c,
	}

	if dest == protocol.Transient {
		keys, err := generateKeys()
		if err != nil {
			return err
		}
		s.keys = keys
	} else {
		keys, ok := keysFromPrivate(dest)
		if !ok {
			return fail(protocol.ResultInvalidKey)
		}
		s.keys = keys
	}

	if !c.b.addSession(s) {
		return fail(protocol.ResultDuplicatedID)
	}

	c.session = s
	c.log.Info("Session created", zap.String("id", id), zap.String("style", style))

	return c.reply(protocol.VerbSession, protocol.ActionStatus, protocol.ResultOK,
		protocol.Field{Name: protocol.KeyDestination, Value: s.keys.Private})
}

func (c *conn) lookup(ctx context.Context, req protocol.Reply) error {
	name, _ := req.Get(protocol.KeyName)

	found := func(value string) error {
		return c.reply(protocol.VerbNaming, protocol.ActionReply, protocol.ResultOK,
			protocol.Field{Name: protocol.KeyName, Value: name},
			protocol.Field{Name: protocol.KeyValue, Value: value})
	}

	switch {
	case name == protocol.NameMe && c.session != nil:
		return found(c.session.keys.Public)

	case protocol.ValidKey(name, protocol.PublicKeySize):
		return found(name)
	}

	if keys, err := c.b.addressBook.Get(ctx, name); err == nil {
		return found(keys.Public)
	}

	return c.reply(protocol.VerbNaming, protocol.ActionReply, protocol.ResultKeyNotFound,
		protocol.Field{Name: protocol.KeyName, Value: name})
}

func (c *conn) generate() error {
	keys, err := generateKeys()
	if err != nil {
		return err
	}

	return c.send(protocol.VerbDest, protocol.ActionReply,
		protocol.Field{Name: protocol.KeyPub, Value: keys.Public},
		protocol.Field{Name: protocol.KeyPriv, Value: keys.Private})
}

// streamSession finds the STREAM session a stream command names.
func (c *conn) streamSession(req protocol.Reply) *session {
	id, _ := req.Get(protocol.KeyID)

	s := c.b.sessionByID(id)
	if s == nil || s.style != protocol.StyleStream {
		return nil
	}

	return s
}

func (c *conn) streamConnect(req protocol.Reply) (func(), error) {
	fail := func(result string) (func(), error) {
		return nil, c.reply(protocol.VerbStream, protocol.ActionStatus, result)
	}

	s := c.streamSession(req)
	if s == nil {
		return fail(protocol.ResultInvalidID)
	}

	dest, _ := req.Get(protocol.KeyDestination)
	if !protocol.ValidKey(dest, protocol.PublicKeySize) {
		return fail(protocol.ResultInvalidKey)
	}

	for {
		a := c.b.popAcceptor(dest)
		if a == nil {
			return fail(protocol.ResultCantReachPeer)
		}

		// Acceptors that went away while waiting fail here
		if err := a.c.write([]byte(s.keys.Public + "\n")); err != nil {
			a.c.Close()
			continue
		}

		if err := c.reply(protocol.VerbStream, protocol.ActionStatus, protocol.ResultOK); err != nil {
			a.c.Close()
			return nil, err
		}

		a.peer <- c

		return func() {
			splice(a.c, c)
		}, nil
	}
}

func (c *conn) streamAccept(ctx context.Context, req protocol.Reply) (func(), error) {
	s := c.streamSession(req)
	if s == nil {
		return nil, c.reply(protocol.VerbStream, protocol.ActionStatus, protocol.ResultInvalidID)
	}

	a := &acceptor{c: c, peer: make(chan *conn, 1)}

	// Holding the write lock keeps a connecting peer's key line behind our
	// STATUS reply
	c.wmu.Lock()
	c.b.addAcceptor(s, a)
	err := protocol.WriteResult(c.nc, protocol.VerbStream, protocol.ActionStatus, protocol.ResultOK)
	c.wmu.Unlock()

	if err != nil {
		return nil, err
	}

	return func() {
		select {
		case peer := <-a.peer:
			splice(peer, c)

		case <-c.done:
		case <-ctx.Done():
		}
	}, nil
}

// splice copies everything src receives to dst, then closes both.
func splice(dst, src *conn) {
	if _, err := io.Copy(dst.nc, src.r); err != nil && !errors.Is(err, net.ErrClosed) {
		src.log.Debug("Stream ended", zap.Error(err))
	}

	dst.Close()
	src.Close()
}

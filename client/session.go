package client

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
)

// Kind is the style of a session.
type Kind int

const (
	KindRaw Kind = iota
	KindDatagram
	KindStream
)

func (k Kind) Style() protocol.Style {
	switch k {
	case KindRaw:
		return protocol.StyleRaw
	case KindDatagram:
		return protocol.StyleDatagram
	case KindStream:
		return protocol.StyleStream
	}

	return ""
}

func (k Kind) String() string {
	if s := k.Style(); s != "" {
		return string(s)
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

type SessionState int

const (
	StateConnecting SessionState = iota
	StateHandshakeSent
	StateHandshakeOk
	StateCreateSent
	StateCreateOk
	StateNameLookupSent
	StateKeyGenSent
	StateCreated
	StateError
	StateCancelled
	StateDestroyed
)

var sessionStateNames = [...]string{
	"Connecting",
	"HandshakeSent",
	"HandshakeOk",
	"CreateSent",
	"CreateOk",
	"NameLookupSent",
	"KeyGenSent",
	"Created",
	"Error",
	"Cancelled",
	"Destroyed",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return fmt.Sprintf("SessionState(%d)", int(s))
	}

	return sessionStateNames[s]
}

// ConnID identifies a Connection within its Session.
type ConnID uint64

// Session is one control connection to the bridge. It is driven entirely
// by CollectReadiness and Dispatch and must only be used from the goroutine
// that drives it.
type Session struct {
	endpoint

	opts    Options
	handler SessionHandler
	kind    Kind
	state   SessionState

	privateKey string
	publicKey  string
	channel    string
	params     string

	// destinationKey is the result of LookupName, or the sender of the
	// last datagram
	destinationKey string

	// announced is set once OnCreated fired for StartSession, it arms
	// OnDisconnected
	announced bool
	closing   bool
	destroyed bool

	conns  map[ConnID]*Connection
	order  []ConnID
	nextID ConnID

	userContext interface{}
}

func newSession(opts Options, h SessionHandler, kind Kind) (*Session, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	if h == nil {
		h = SessionCallbacks{}
	}

	s := &Session{
		opts:    opts,
		handler: h,
		kind:    kind,
		state:   StateConnecting,
		channel: protocol.GenChannelName(protocol.ChannelMinLen, protocol.ChannelMaxLen),
		conns:   make(map[ConnID]*Connection),
	}

	s.onFail = s.fail
	s.log = opts.Log.Named("session").With(zap.String("channel", s.channel))

	return s, nil
}

// dial opens the control socket and arms the handshake. next runs once the
// bridge accepted our version.
func (s *Session) dial(next func()) error {
	sock, err := s.opts.Dialer(s.opts.Host, s.opts.Port)
	if err != nil {
		return err
	}

	s.sock = sock
	s.awaitConnect(func() {
		s.state = StateHandshakeSent
	}, func() {
		s.state = StateHandshakeOk
		next()
	})

	return nil
}

// StartSession connects to the bridge and creates a session of the given
// kind. privateKey is either empty or protocol.Transient for a throwaway
// destination, or a private key returned by an earlier session. params is
// passed to SESSION CREATE verbatim.
//
// OnCreated fires once PrivateKey and PublicKey are known.
func StartSession(opts Options, h SessionHandler, privateKey string, kind Kind, params string) (*Session, error) {
	if kind.Style() == "" {
		return nil, ErrInvalidKind
	}

	if privateKey == "" {
		privateKey = protocol.Transient
	}

	if privateKey != protocol.Transient && !protocol.ValidKey(privateKey, protocol.PrivateKeySize) {
		return nil, ErrInvalidKey
	}

	s, err := newSession(opts, h, kind)
	if err != nil {
		return nil, err
	}

	s.privateKey = privateKey
	s.params = params

	if err := s.dial(s.createSession); err != nil {
		return nil, err
	}

	return s, nil
}

// GenerateKeys asks the bridge for a fresh key pair. OnCreated fires with
// PublicKey and PrivateKey set, after which the session cancels itself.
func GenerateKeys(opts Options, h SessionHandler) (*Session, error) {
	s, err := newSession(opts, h, KindStream)
	if err != nil {
		return nil, err
	}

	if err := s.dial(s.generateKeys); err != nil {
		return nil, err
	}

	return s, nil
}

// LookupName resolves name to a public key. OnCreated fires with
// DestinationKey set, after which the session cancels itself. A failed
// lookup fires OnError with the bridge's RESULT, e.g. KEY_NOT_FOUND.
func LookupName(opts Options, h SessionHandler, name string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	if isReservedName(name) {
		return nil, ErrReservedName
	}

	s, err := newSession(opts, h, KindStream)
	if err != nil {
		return nil, err
	}

	s.params = name

	if err := s.dial(s.lookupName); err != nil {
		return nil, err
	}

	return s, nil
}

// isReservedName matches "ME", in any case, as a whole word.
func isReservedName(name string) bool {
	if len(name) < 2 || !strings.EqualFold(name[:2], protocol.NameMe) {
		return false
	}

	return len(name) == 2 || strings.ContainsRune(" \t\r\n\v\f", rune(name[2]))
}

func (s *Session) createSession() {
	s.state = StateCreateSent

	cmd := protocol.SessionCreate(s.kind.Style(), s.channel, s.privateKey, s.params)

	s.sendCommandAwaitReply(cmd, func(r protocol.Reply) {
		dest, _ := r.Get(protocol.KeyDestination)

		if !r.Matches(protocol.VerbSession, protocol.ActionStatus, protocol.KeyResult, protocol.ResultOK) {
			s.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Session refused '%s': %w", r, ErrBadReply))
			return
		}

		if !protocol.ValidKey(dest, protocol.PrivateKeySize) {
			s.fail(ReasonI2PError, fmt.Errorf("SESSION STATUS: %w", ErrInvalidReply))
			return
		}

		s.privateKey = dest
		s.state = StateCreateOk
		s.lookupMe()
	})
}

func (s *Session) lookupMe() {
	s.state = StateNameLookupSent

	s.sendCommandAwaitReply(protocol.NamingLookup(protocol.NameMe), func(r protocol.Reply) {
		if !r.Matches(protocol.VerbNaming, protocol.ActionReply, protocol.KeyResult, protocol.ResultOK) {
			s.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Lookup of ME refused '%s': %w", r, ErrBadReply))
			return
		}

		pub, _ := r.Get(protocol.KeyValue)
		if !protocol.ValidKey(pub, protocol.PublicKeySize) {
			s.fail(ReasonI2PError, fmt.Errorf("NAMING REPLY: %w", ErrInvalidReply))
			return
		}

		s.publicKey = pub
		s.disarm()
		s.state = StateCreated
		s.announced = true

		s.log.Info("Session created", zap.Stringer("kind", s.kind))

		if s.kind != KindStream {
			s.awaitDatagram()
		}

		s.handler.OnCreated(s)
	})
}

func (s *Session) generateKeys() {
	s.state = StateKeyGenSent

	s.sendCommandAwaitReply(protocol.DestGenerate(), func(r protocol.Reply) {
		pub, _ := r.Get(protocol.KeyPub)
		priv, _ := r.Get(protocol.KeyPriv)

		if !r.Matches(protocol.VerbDest, protocol.ActionReply, "", "") {
			s.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Key generation refused '%s': %w", r, ErrBadReply))
			return
		}

		if !protocol.ValidKey(pub, protocol.PublicKeySize) || !protocol.ValidKey(priv, protocol.PrivateKeySize) {
			s.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("DEST REPLY: %w", ErrInvalidReply))
			return
		}

		s.publicKey = pub
		s.privateKey = priv
		s.finishOneShot()
	})
}

func (s *Session) lookupName() {
	s.state = StateNameLookupSent

	s.sendCommandAwaitReply(protocol.NamingLookup(s.params), func(r protocol.Reply) {
		if !r.Matches(protocol.VerbNaming, protocol.ActionReply, protocol.KeyResult, protocol.ResultOK) {
			s.fail(r.ErrorReason(ReasonI2PError), fmt.Errorf("Lookup of '%s' refused '%s': %w", s.params, r, ErrBadReply))
			return
		}

		dest, _ := r.Get(protocol.KeyValue)
		if !protocol.ValidKey(dest, protocol.PublicKeySize) {
			s.fail(ReasonI2PError, fmt.Errorf("NAMING REPLY: %w", ErrInvalidReply))
			return
		}

		s.destinationKey = dest
		s.finishOneShot()
	})
}

// finishOneShot completes GenerateKeys and LookupName, neither keeps its
// control connection open.
func (s *Session) finishOneShot() {
	s.disarm()
	s.state = StateCreated
	s.handler.OnCreated(s)
	s.Cancel()
}

func (s *Session) fail(reason string, cause error) {
	if s.destroyed {
		return
	}

	if reason == "" {
		reason = ReasonI2PError
	}

	s.log.Warn("Session failed",
		zap.String("reason", reason),
		zap.Stringer("state", s.state),
		zap.Error(cause))

	s.lastError = reason
	s.cause = cause
	s.disarm()
	s.buf.Release()
	s.state = StateError

	s.shutdown()

	s.handler.OnError(s)
}

// shutdown stops the control socket, cancels every connection and fires
// OnDisconnected if OnCreated had fired. It only runs once.
func (s *Session) shutdown() {
	if s.cancelled || s.sock == nil {
		return
	}

	s.cancelled = true

	if err := s.sock.Shutdown(); err != nil {
		s.log.Debug("Failed to shut down socket cleanly", zap.Error(err))
	}

	for _, c := range s.Connections() {
		c.Cancel()
	}

	if s.announced {
		s.announced = false
		s.handler.OnDisconnected(s)
	}
}

// Cancel stops the session and all of its connections. It is safe to call
// more than once, and from any handler.
func (s *Session) Cancel() {
	if s.destroyed {
		return
	}

	s.disarm()
	s.buf.Release()

	if !s.cancelled && s.state != StateError {
		s.state = StateCancelled
	}

	s.shutdown()
}

// Close cancels the session, closes its connections and fires OnDestroy.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if s.destroyed || s.closing {
		return nil
	}
	s.closing = true

	var err error

	for _, c := range s.Connections() {
		err = multierr.Append(err, c.Close())
	}

	s.Cancel()
	s.handler.OnDestroy(s)

	if s.sock != nil {
		err = multierr.Append(err, s.sock.Close())
	}

	log := s.log
	*s = Session{
		state:     StateDestroyed,
		destroyed: true,
		handler:   SessionCallbacks{},
	}
	s.log = log
	s.onFail = s.fail

	return err
}

// IsActive reports whether the session still has a live control socket.
func (s *Session) IsActive() bool {
	return !s.destroyed && s.sock != nil && !s.cancelled
}

func (s *Session) State() SessionState {
	return s.state
}

func (s *Session) Kind() Kind {
	return s.kind
}

// Channel is the session ID sent to the bridge.
func (s *Session) Channel() string {
	return s.channel
}

func (s *Session) PublicKey() string {
	return s.publicKey
}

func (s *Session) PrivateKey() string {
	return s.privateKey
}

// DestinationKey is the result of LookupName, or the sender of the last
// datagram received on a DATAGRAM session.
func (s *Session) DestinationKey() string {
	return s.destinationKey
}

// Context returns the value stored with SetContext.
func (s *Session) Context() interface{} {
	return s.userContext
}

func (s *Session) SetContext(v interface{}) {
	s.userContext = v
}

// Connections returns the live connections in creation order.
func (s *Session) Connections() []*Connection {
	conns := make([]*Connection, 0, len(s.order))

	for _, id := range s.order {
		if c, ok := s.conns[id]; ok {
			conns = append(conns, c)
		}
	}

	return conns
}

// Connection returns the connection with the given ID.
func (s *Session) Connection(id ConnID) (*Connection, bool) {
	c, ok := s.conns[id]
	return c, ok
}

func (s *Session) addConn(c *Connection) {
	s.nextID++
	c.id = s.nextID

	s.conns[c.id] = c
	s.order = append(s.order, c.id)
}

func (s *Session) removeConn(id ConnID) {
	if _, ok := s.conns[id]; !ok {
		return
	}

	delete(s.conns, id)

	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

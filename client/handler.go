package client

// SessionHandler receives the events of a Session. All methods are called
// from Dispatch, or from Cancel and Close, on the caller's goroutine.
type SessionHandler interface {
	// OnError fires on every transport or protocol failure. Err() holds the
	// reason.
	OnError(s *Session)

	// OnCreated fires once the session is usable, or once the keys or name
	// of GenerateKeys and LookupName are available.
	OnCreated(s *Session)

	// OnDisconnected fires at most once, and only after OnCreated of a
	// StartSession session.
	OnDisconnected(s *Session)

	// OnDatagram delivers a datagram on DATAGRAM and RAW sessions.
	// DestinationKey holds the sender for DATAGRAM sessions. payload is only
	// valid until OnDatagram returns.
	OnDatagram(s *Session, payload []byte)

	// OnDestroy fires exactly once from Close. Keys are still readable.
	OnDestroy(s *Session)
}

// ConnectionHandler receives the events of a Connection.
type ConnectionHandler interface {
	OnError(c *Connection)

	// OnDisconnected fires at most once, and only after OnConnected or
	// OnAccepted.
	OnDisconnected(c *Connection)

	OnConnected(c *Connection)
	OnAccepted(c *Connection)

	// OnSent fires when the connection can take more data: once after
	// connecting or accepting, and after every fully flushed Send.
	OnSent(c *Connection)

	// OnRead delivers received bytes. data is never empty and only valid
	// until OnRead returns.
	OnRead(c *Connection, data []byte)

	OnDestroy(c *Connection)
}

// SessionCallbacks implements SessionHandler with optional functions.
type SessionCallbacks struct {
	Error        func(s *Session)
	Created      func(s *Session)
	Disconnected func(s *Session)
	Datagram     func(s *Session, payload []byte)
	Destroy      func(s *Session)
}

func (cb SessionCallbacks) OnError(s *Session) {
	if cb.Error != nil {
		cb.Error(s)
	}
}

func (cb SessionCallbacks) OnCreated(s *Session) {
	if cb.Created != nil {
		cb.Created(s)
	}
}

func (cb SessionCallbacks) OnDisconnected(s *Session) {
	if cb.Disconnected != nil {
		cb.Disconnected(s)
	}
}

func (cb SessionCallbacks) OnDatagram(s *Session, payload []byte) {
	if cb.Datagram != nil {
		cb.Datagram(s, payload)
	}
}

func (cb SessionCallbacks) OnDestroy(s *Session) {
	if cb.Destroy != nil {
		cb.Destroy(s)
	}
}

// ConnectionCallbacks implements ConnectionHandler with optional functions.
type ConnectionCallbacks struct {
	Error        func(c *Connection)
	Disconnected func(c *Connection)
	Connected    func(c *Connection)
	Accepted     func(c *Connection)
	Sent         func(c *Connection)
	Read         func(c *Connection, data []byte)
	Destroy      func(c *Connection)
}

func (cb ConnectionCallbacks) OnError(c *Connection) {
	if cb.Error != nil {
		cb.Error(c)
	}
}

func (cb ConnectionCallbacks) OnDisconnected(c *Connection) {
	if cb.Disconnected != nil {
		cb.Disconnected(c)
	}
}

func (cb ConnectionCallbacks) OnConnected(c *Connection) {
	if cb.Connected != nil {
		cb.Connected(c)
	}
}

func (cb ConnectionCallbacks) OnAccepted(c *Connection) {
	if cb.Accepted != nil {
		cb.Accepted(c)
	}
}

func (cb ConnectionCallbacks) OnSent(c *Connection) {
	if cb.Sent != nil {
		cb.Sent(c)
	}
}

func (cb ConnectionCallbacks) OnRead(c *Connection, data []byte) {
	if cb.Read != nil {
		cb.Read(c, data)
	}
}

func (cb ConnectionCallbacks) OnDestroy(c *Connection) {
	if cb.Destroy != nil {
		cb.Destroy(c)
	}
}

var _ SessionHandler = SessionCallbacks{}
var _ ConnectionHandler = ConnectionCallbacks{}

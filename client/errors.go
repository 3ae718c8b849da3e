package client

import (
	"errors"

	"github.com/luma/samaio/protocol"
)

// Usage errors. They are returned synchronously by the entry points and no
// notification fires for them.
var (
	ErrInvalidPort      = errors.New("Port must be between 1 and 65535")
	ErrInvalidKind      = errors.New("Unknown session kind")
	ErrInvalidKey       = errors.New("Key has the wrong length or alphabet")
	ErrInvalidName      = errors.New("Name to look up is empty")
	ErrReservedName     = errors.New("ME is reserved, use a session's PublicKey instead")
	ErrInvalidDatagram  = errors.New("Datagram payload is empty or too large")
	ErrNotStream        = errors.New("Operation requires a STREAM session")
	ErrWrongKind        = errors.New("Operation is not available on STREAM sessions")
	ErrNotCreated       = errors.New("Session has not been created or is no longer active")
	ErrSessionClosed    = errors.New("Session is closed")
	ErrConnectionClosed = errors.New("Connection is closed")
	ErrNotConnected     = errors.New("Connection is not connected")
	ErrQueueBusy        = errors.New("A send is already in flight, retry from OnSent")
)

// Causes behind a failure reason, available from Session.Cause and
// Connection.Cause.
var (
	ErrLineTooLong  = errors.New("Reply line exceeds the maximum length")
	ErrNulInLine    = errors.New("Reply line contains a NUL byte")
	ErrPeerClosed   = errors.New("Bridge closed the connection")
	ErrShortRecv    = errors.New("Socket returned less than it had peeked")
	ErrBadReply     = errors.New("Reply was negative or malformed")
	ErrInvalidReply = errors.New("Reply carried an invalid key")
)

// Failure reasons, as reported by Err(). Negative replies from the bridge
// report the bridge's RESULT value instead.
const (
	ReasonIOError    = "IO_ERROR"
	ReasonConnection = "CONNECTION_ERROR"
	ReasonI2PError   = protocol.ResultI2PError
	ReasonInvalidKey = protocol.ResultInvalidKey
)

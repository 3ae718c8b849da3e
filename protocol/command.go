package protocol

// Verbs
const (
	VerbHello    = "HELLO"
	VerbSession  = "SESSION"
	VerbNaming   = "NAMING"
	VerbDest     = "DEST"
	VerbStream   = "STREAM"
	VerbDatagram = "DATAGRAM"
	VerbRaw      = "RAW"
)

// Actions
const (
	ActionVersion  = "VERSION"
	ActionReply    = "REPLY"
	ActionStatus   = "STATUS"
	ActionCreate   = "CREATE"
	ActionLookup   = "LOOKUP"
	ActionGenerate = "GENERATE"
	ActionConnect  = "CONNECT"
	ActionAccept   = "ACCEPT"
	ActionReceived = "RECEIVED"
)

// Field keys
const (
	KeyResult      = "RESULT"
	KeyVersion     = "VERSION"
	KeyMin         = "MIN"
	KeyMax         = "MAX"
	KeyStyle       = "STYLE"
	KeyID          = "ID"
	KeyDestination = "DESTINATION"
	KeyName        = "NAME"
	KeyValue       = "VALUE"
	KeyPub         = "PUB"
	KeyPriv        = "PRIV"
	KeySize        = "SIZE"
	KeyMessage     = "MESSAGE"
)

// RESULT values. Anything other than ResultOK is a failure; the value is
// surfaced to callers as the failure reason.
const (
	ResultOK            = "OK"
	ResultI2PError      = "I2P_ERROR"
	ResultInvalidKey    = "INVALID_KEY"
	ResultInvalidID     = "INVALID_ID"
	ResultKeyNotFound   = "KEY_NOT_FOUND"
	ResultDuplicatedID  = "DUPLICATED_ID"
	ResultCantReachPeer = "CANT_REACH_PEER"
	ResultNoVersion     = "NOVERSION"
)

const (
	// Version is the only protocol version this client speaks.
	Version = "3.0"

	// Transient asks the bridge to create a throwaway destination.
	Transient = "TRANSIENT"

	// NameMe is the reserved lookup name for the session's own destination.
	NameMe = "ME"

	PublicKeySize  = 516
	PrivateKeySize = 884

	DefaultHost    = "127.0.0.1"
	DefaultTCPPort = 7656
	DefaultUDPPort = 7655

	// MaxReplyLine bounds a reply line, terminator included.
	MaxReplyLine = 2048

	// MaxDatagramSize is the largest payload accepted for a single datagram.
	MaxDatagramSize = 31744
)

// Style is the session style sent in SESSION CREATE.
type Style string

const (
	StyleRaw      Style = "RAW"
	StyleDatagram Style = "DATAGRAM"
	StyleStream   Style = "STREAM"
)

// IsValid reports whether s is one of the supported styles.
func (s Style) IsValid() bool {
	switch s {
	case StyleRaw, StyleDatagram, StyleStream:
		return true
	}

	return false
}

// ValidKey reports whether key has exactly size characters, all from the
// I2P base64 alphabet.
func ValidKey(key string, size int) bool {
	if len(key) != size {
		return false
	}

	for i := 0; i < len(key); i++ {
		c := key[i]

		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '~', c == '=':
		default:
			return false
		}
	}

	return true
}

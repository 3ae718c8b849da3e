package bridge

import (
	"go.uber.org/zap"

	"github.com/luma/samaio/storage"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen for SAM clients on, 0 picks a free port
	Port int

	// UDPPort to receive datagrams on, 0 picks a free port
	UDPPort int

	// Reuseport controls setting SO_REUSEPORT on the TCP listener
	Reuseport bool

	// AddressBook resolves NAMING LOOKUP for names other than ME. Only the
	// public key of an entry is used.
	AddressBook storage.Store

	Log *zap.Logger
}

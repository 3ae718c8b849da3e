package client

import (
	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
	"github.com/luma/samaio/transport"
)

type Options struct {
	// Host of the SAM bridge, defaults to 127.0.0.1
	Host string

	// Port of the bridge's TCP command port, defaults to 7656
	Port int

	// UDPPort is where datagrams are sent, defaults to 7655
	UDPPort int

	// Dialer opens the non-blocking sockets. Defaults to DialTCP.
	Dialer Dialer

	// SendDatagram delivers a single UDP datagram. Defaults to
	// transport.SendDatagram.
	SendDatagram func(host string, port int, payload []byte) error

	Log *zap.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.Host == "" {
		o.Host = protocol.DefaultHost
	}

	if o.Port == 0 {
		o.Port = protocol.DefaultTCPPort
	}

	if o.UDPPort == 0 {
		o.UDPPort = protocol.DefaultUDPPort
	}

	if o.Port < 1 || o.Port > 65535 || o.UDPPort < 1 || o.UDPPort > 65535 {
		return o, ErrInvalidPort
	}

	if o.Dialer == nil {
		o.Dialer = DialTCP
	}

	if o.SendDatagram == nil {
		o.SendDatagram = transport.SendDatagram
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o, nil
}

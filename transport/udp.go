package transport

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// SendDatagram sends payload as a single UDP datagram to host:port.
func SendDatagram(host string, port int, payload []byte) error {
	conn, err := net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "dial udp")
	}
	defer conn.Close()

	n, err := conn.Write(payload)
	if err != nil {
		return errors.Wrap(err, "send datagram")
	}

	if n != len(payload) {
		return errors.Errorf("short datagram write: %d of %d bytes", n, len(payload))
	}

	return nil
}

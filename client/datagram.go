package client

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
)

// DatagramSend sends payload to destKey through the bridge's UDP port. It
// is only available on created DATAGRAM and RAW sessions, and delivery is
// best effort.
func (s *Session) DatagramSend(destKey string, payload []byte) error {
	if s.destroyed {
		return ErrSessionClosed
	}

	if s.kind == KindStream {
		return ErrWrongKind
	}

	if !s.IsActive() || s.state != StateCreated {
		return ErrNotCreated
	}

	if !protocol.ValidKey(destKey, protocol.PublicKeySize) {
		return ErrInvalidKey
	}

	if len(payload) == 0 || len(payload) > protocol.MaxDatagramSize {
		return ErrInvalidDatagram
	}

	msg := protocol.DatagramHeader(s.channel, destKey)
	msg = append(msg, payload...)

	if err := s.opts.SendDatagram(s.opts.Host, s.opts.UDPPort, msg); err != nil {
		return fmt.Errorf("Failed to send datagram: %w", err)
	}

	return nil
}

// awaitDatagram arms the reader for the next datagram header pushed on the
// control connection.
func (s *Session) awaitDatagram() {
	s.awaitLine(func(line string) {
		r, err := protocol.ParseReply(line)
		if err != nil {
			s.fail(ReasonI2PError, err)
			return
		}

		hdr, err := protocol.ParseDatagramHeader(r, s.kind.Style())
		if err != nil {
			s.fail(r.ErrorReason(ReasonI2PError), err)
			return
		}

		if hdr.Destination != "" {
			s.destinationKey = hdr.Destination
		}

		if hdr.Size == 0 {
			s.deliverDatagram(nil)
			return
		}

		s.buf.Expect(hdr.Size)
		s.onReadable = s.readDatagram
	})
}

func (s *Session) readDatagram() {
	done, err := fillStep(s.sock, &s.buf)
	if err != nil {
		s.fail(ReasonIOError, err)
		return
	}

	if done {
		s.onReadable = nil
		s.deliverDatagram(s.buf.Bytes())
	}
}

func (s *Session) deliverDatagram(payload []byte) {
	s.log.Debug("Datagram received",
		zap.Int("size", len(payload)),
		zap.Bool("signed", s.kind == KindDatagram))

	s.handler.OnDatagram(s, payload)

	if s.IsActive() && s.state == StateCreated {
		s.awaitDatagram()
	}
}

package protocol

import (
	"fmt"
	"strconv"
)

// ReceivedHeader announces a datagram pushed by the bridge on a DATAGRAM or
// RAW session. Size payload bytes follow the header line.
//
//   DATAGRAM RECEIVED DESTINATION=<pubkey> SIZE=<n>
//   RAW RECEIVED SIZE=<n>
type ReceivedHeader struct {
	Style       Style
	Destination string
	Size        int
}

// ParseDatagramHeader validates a received header for the given style.
func ParseDatagramHeader(r Reply, style Style) (ReceivedHeader, error) {
	hdr := ReceivedHeader{Style: style}

	if !r.Matches(string(style), ActionReceived, KeySize, "") {
		return hdr, fmt.Errorf("Failed to parse '%s': %w", r, ErrUnexpectedReply)
	}

	rawSize, _ := r.Get(KeySize)

	size, err := strconv.Atoi(rawSize)
	if err != nil || size < 0 || size > MaxDatagramSize {
		return hdr, fmt.Errorf("Invalid SIZE '%s': %w", rawSize, ErrMalformedDatagram)
	}
	hdr.Size = size

	if style == StyleDatagram {
		dest, _ := r.Get(KeyDestination)
		if !ValidKey(dest, PublicKeySize) {
			return hdr, fmt.Errorf("Invalid DESTINATION: %w", ErrMalformedDatagram)
		}
		hdr.Destination = dest
	}

	return hdr, nil
}

// DatagramReceived renders the header line the bridge writes ahead of a
// datagram payload.
func DatagramReceived(style Style, destination string, size int) []byte {
	fields := make([]Field, 0, 2)

	if style == StyleDatagram {
		fields = append(fields, Field{Name: KeyDestination, Value: destination})
	}
	fields = append(fields, Field{Name: KeySize, Value: strconv.Itoa(size)})

	return Command(string(style), ActionReceived, fields...)
}

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReplyTooShort     = errors.New("Reply is malformed, it needs at least two tokens")
	ErrUnexpectedReply   = errors.New("Reply did not match the expected verb and action")
	ErrMalformedDatagram = errors.New("Datagram header is malformed")
)

// token is one whitespace delimited word of a reply line with quoting
// removed. eq is the offset of the first '=' that appeared outside of
// quotes, or -1.
type token struct {
	text string
	eq   int
}

// ParseReply parses a single reply line, without its terminator, into an
// ordered list of fields.
//
// Tokens are separated by whitespace. A token may contain double quoted
// sections, in which whitespace is literal and '\' escapes the following
// character. Unterminated quotes run to the end of the line. The first two
// tokens are mandatory and become the first Field (e.g. HELLO / REPLY). Every
// following token is split on its first unquoted '=' into a key and value.
// Tokens without one are stored as a bare key with an empty value, so a
// fully quoted "K=V" is the bare key K=V.
func ParseReply(line string) (Reply, error) {
	toks := tokenize(trimCR(line))
	if len(toks) < 2 {
		return nil, fmt.Errorf("Failed to parse '%s': %w", line, ErrReplyTooShort)
	}

	reply := make(Reply, 0, len(toks)-1)
	reply = append(reply, Field{Name: toks[0].text, Value: toks[1].text})

	for _, t := range toks[2:] {
		if t.eq < 0 {
			reply = append(reply, Field{Name: t.text})
			continue
		}

		reply = append(reply, Field{Name: t.text[:t.eq], Value: t.text[t.eq+1:]})
	}

	return reply, nil
}

func tokenize(line string) []token {
	var (
		toks []token
		i    int
	)

	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}

		if i >= len(line) {
			return toks
		}

		var (
			b      strings.Builder
			eq     = -1
			quoted bool
		)

	scan:
		for ; i < len(line); i++ {
			c := line[i]

			switch {
			case quoted && c == '"':
				quoted = false

			case quoted && c == '\\' && i+1 < len(line):
				i++
				b.WriteByte(line[i])

			case quoted:
				b.WriteByte(c)

			case c == '"':
				quoted = true

			case isSpace(c):
				break scan

			default:
				if c == '=' && eq < 0 {
					eq = b.Len()
				}
				b.WriteByte(c)
			}
		}

		toks = append(toks, token{text: b.String(), eq: eq})
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}

	return false
}

func trimCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}

// RemoveTrailingCR strips an optional trailing '\r' left behind after
// splitting on '\n'.
func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}

	return data
}

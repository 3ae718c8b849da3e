package protocol

import (
	"fmt"
	"strings"
)

// Command renders a newline terminated command line.
func Command(verb, action string, fields ...Field) []byte {
	return AppendLine(nil, verb, action, fields...)
}

// Hello is the version handshake every connection to the bridge starts with.
func Hello() []byte {
	return Command(VerbHello, ActionVersion,
		Field{Name: KeyMin, Value: Version},
		Field{Name: KeyMax, Value: Version})
}

// SessionCreate renders SESSION CREATE. params is appended verbatim, it is a
// space separated list of KEY=VALUE options for the router.
func SessionCreate(style Style, id, destination, params string) []byte {
	line := Command(VerbSession, ActionCreate,
		Field{Name: KeyStyle, Value: string(style)},
		Field{Name: KeyID, Value: id},
		Field{Name: KeyDestination, Value: destination})

	params = strings.TrimSpace(params)
	if params == "" {
		return line
	}

	// Splice the params in before the terminator
	line = line[:len(line)-1]
	line = append(line, ' ')
	line = append(line, params...)

	return append(line, '\n')
}

func NamingLookup(name string) []byte {
	return Command(VerbNaming, ActionLookup, Field{Name: KeyName, Value: name})
}

func DestGenerate() []byte {
	return Command(VerbDest, ActionGenerate)
}

func StreamConnect(id, destination string) []byte {
	return Command(VerbStream, ActionConnect,
		Field{Name: KeyID, Value: id},
		Field{Name: KeyDestination, Value: destination})
}

func StreamAccept(id string) []byte {
	return Command(VerbStream, ActionAccept, Field{Name: KeyID, Value: id})
}

// DatagramHeader is the first line of a datagram sent to the bridge's UDP
// port. The payload follows it directly.
func DatagramHeader(id, destination string) []byte {
	return []byte(fmt.Sprintf("%s %s %s\n", Version, id, destination))
}

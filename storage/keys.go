package storage

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/samaio/protocol"
)

// Validate checks both keys against the sizes the bridge hands out.
func (k Keys) Validate() error {
	if !protocol.ValidKey(k.Public, protocol.PublicKeySize) || !protocol.ValidKey(k.Private, protocol.PrivateKeySize) {
		return ErrInvalidKeys
	}

	return nil
}

// escapePath turns a name into a gjson/sjson path matching exactly that
// key. Names like "alice.i2p" would otherwise be read as nested paths.
func escapePath(name string) string {
	var b strings.Builder

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteByte(name[i])
	}

	return b.String()
}

func encodeKeys(k Keys) ([]byte, error) {
	doc, err := sjson.SetBytes([]byte("{}"), "public", k.Public)
	if err != nil {
		return nil, err
	}

	return sjson.SetBytes(doc, "private", k.Private)
}

func decodeKeys(r gjson.Result) Keys {
	return Keys{
		Public:  r.Get("public").String(),
		Private: r.Get("private").String(),
	}
}

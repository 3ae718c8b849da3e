package protocol

import "strings"

// Field is a single name/value pair of a reply. The first Field of a Reply
// holds the two leading words, e.g. {Name: "HELLO", Value: "REPLY"}.
type Field struct {
	Name  string
	Value string
}

// String renders the field the way it appears on the wire.
func (f Field) String() string {
	if f.Value == "" {
		return f.Name
	}

	return f.Name + "=" + Quote(f.Value)
}

// Reply is a parsed reply line.
type Reply []Field

// Verb returns the first word of the reply.
func (r Reply) Verb() string {
	if len(r) == 0 {
		return ""
	}

	return r[0].Name
}

// Action returns the second word of the reply.
func (r Reply) Action() string {
	if len(r) == 0 {
		return ""
	}

	return r[0].Value
}

// Get returns the value of the first field named key, ignoring the leading
// verb/action pair.
func (r Reply) Get(key string) (string, bool) {
	if len(r) < 2 {
		return "", false
	}

	for _, f := range r[1:] {
		if f.Name == key {
			return f.Value, true
		}
	}

	return "", false
}

// Result returns the RESULT field or an empty string.
func (r Reply) Result() string {
	v, _ := r.Get(KeyResult)
	return v
}

// Matches reports whether the reply starts with name0 and value0 and, if key
// is set, carries a field named key whose value is value. Empty arguments
// match anything.
//
//   reply.Matches("HELLO", "REPLY", "RESULT", "OK")
func (r Reply) Matches(name0, value0, key, value string) bool {
	if len(r) == 0 {
		return false
	}

	if name0 != "" && r[0].Name != name0 {
		return false
	}

	if value0 != "" && r[0].Value != value0 {
		return false
	}

	if key == "" {
		return true
	}

	v, ok := r.Get(key)
	if !ok {
		return false
	}

	return value == "" || v == value
}

// ErrorReason picks the human readable failure reason of a negative reply:
// the RESULT value when it is present and not OK, otherwise fallback.
func (r Reply) ErrorReason(fallback string) string {
	if v := r.Result(); v != "" && v != ResultOK {
		return v
	}

	return fallback
}

func (r Reply) String() string {
	if len(r) == 0 {
		return ""
	}

	parts := make([]string, 0, len(r)+1)
	parts = append(parts, r[0].Name, r[0].Value)

	for _, f := range r[1:] {
		parts = append(parts, f.String())
	}

	return strings.Join(parts, " ")
}

package protocol

import (
	"io"
	"strings"
)

var (
	Terminal = []byte("\n")
)

// AppendLine appends "<verb> <action> <fields...>\n" to dst.
func AppendLine(dst []byte, verb, action string, fields ...Field) []byte {
	dst = append(dst, verb...)
	dst = append(dst, ' ')
	dst = append(dst, action...)

	for _, f := range fields {
		dst = append(dst, ' ')
		dst = append(dst, f.String()...)
	}

	return append(dst, Terminal...)
}

// WriteReply writes a single reply line.
func WriteReply(w io.Writer, verb, action string, fields ...Field) error {
	_, err := w.Write(AppendLine(nil, verb, action, fields...))
	return err
}

// WriteResult writes "<verb> <action> RESULT=<result>" followed by any
// extra fields.
func WriteResult(w io.Writer, verb, action, result string, fields ...Field) error {
	all := make([]Field, 0, len(fields)+1)
	all = append(all, Field{Name: KeyResult, Value: result})
	all = append(all, fields...)

	return WriteReply(w, verb, action, all...)
}

// Quote wraps s in double quotes when it contains whitespace, quotes or
// backslashes, so that ParseReply reads it back as a single token.
func Quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\r\n\v\f\"\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')

	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}

	b.WriteByte('"')

	return b.String()
}

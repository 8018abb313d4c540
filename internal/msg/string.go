package msg

import (
	"strings"

	"github.com/1ureka/netchan/internal/util"
)

// MaxNetString bounds any string written to a message.
const MaxNetString = 2048

// WriteString writes s followed by a NUL. Strings of MaxNetString bytes or
// more are replaced by the empty string. s is cut at an embedded NUL.
func (b *Buffer) WriteString(s string) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if len(s) >= MaxNetString {
		util.LogWarning("WriteString: overflow: %d chars", len(s))
		b.WriteUint8(0)
		return
	}

	p := b.getSpace("WriteString", len(s)+1)
	if p == nil {
		return
	}
	copy(p, s)
	p[len(s)] = 0
}

// ReadString reads up to a NUL or the end of data. At most size-1 bytes are
// kept, as if copied into a NUL-terminated destination of size bytes; the
// rest of the string is consumed. It returns the kept string and the full
// length consumed, terminator excluded.
func (b *Buffer) ReadString(size int) (string, int) {
	return b.readString(size, false)
}

// ReadStringLine is ReadString that also stops at a newline.
func (b *Buffer) ReadStringLine(size int) (string, int) {
	return b.readString(size, true)
}

func (b *Buffer) readString(size int, line bool) (string, int) {
	var sb strings.Builder
	n := 0
	for {
		c := b.ReadUint8()
		if c <= 0 || (line && c == '\n') {
			break
		}
		if n+1 < size {
			sb.WriteByte(byte(c))
		}
		n++
	}
	return sb.String(), n
}

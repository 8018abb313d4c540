package netchan

import (
	"fmt"
	"net"
	"strings"

	"github.com/1ureka/netchan/internal/protocol"
)

// OutOfBand sends a connectionless text datagram to addr.
func OutOfBand(sock Socket, addr net.Addr, format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if 4+len(text) > protocol.MaxPacketLen {
		return fmt.Errorf("out-of-band packet to %s: %d bytes exceeds %d", addr, 4+len(text), protocol.MaxPacketLen)
	}
	return sock.Send(addr, protocol.AppendOutOfBand(nil, text))
}

// IsOutOfBand reports whether a datagram bypasses sequencing.
func IsOutOfBand(packet []byte) bool { return protocol.IsOutOfBand(packet) }

// ParseOutOfBand splits the text of an out-of-band datagram into a command
// and its arguments. Double quotes group words; the quotes are removed.
// Only the first line is considered.
func ParseOutOfBand(packet []byte) (cmd string, args []string) {
	if !protocol.IsOutOfBand(packet) {
		return "", nil
	}
	text := string(packet[4:])
	if i := strings.IndexAny(text, "\n\x00"); i >= 0 {
		text = text[:i]
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}

func tokenize(s string) []string {
	var (
		tokens []string
		cur    strings.Builder
		quoted bool
		inTok  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			if quoted {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inTok = false
			}
			quoted = !quoted
		case !quoted && (ch == ' ' || ch == '\t' || ch == '\r'):
			if inTok {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteByte(ch)
			inTok = true
		}
	}
	if inTok || quoted {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

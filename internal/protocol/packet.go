// Package protocol defines the datagram header layout and the message opcodes
// exchanged between server and client.
package protocol

// Header field sizes.
const (
	SeqSize      = 4 // w1: sequence | fragment<<30 | reliable<<31
	AckSize      = 4 // w2: ack | parity<<31
	QPortSize    = 2 // client to server only
	FragmentSize = 2 // offset | more<<15, only when the fragment flag is set

	// HeaderSize is the largest header a datagram can carry.
	HeaderSize = SeqSize + AckSize + QPortSize + FragmentSize
)

// Datagram and message limits.
const (
	MaxMsgLen        = 0x8000 // largest logical message, after reassembly
	MaxReliableLen   = 0x7FFF // largest reliable payload, bounded by the prefix
	MaxPacketLen     = 4096   // largest datagram on the wire
	DefaultPacketLen = 1400   // default payload budget per datagram
	MinPacketLen     = 512    // smallest payload budget a peer may ask for

	// ReliablePrefixSize is the length word in front of reliable bytes.
	ReliablePrefixSize = 2
)

// Bit layout of the header words.
const (
	SeqMask      = 0x3FFFFFFF
	FragmentBit  = 1 << 30
	ReliableBit  = 1 << 31
	AckParityBit = 1 << 31

	FragOffsetMask = 0x7FFF
	FragMoreBit    = 1 << 15

	PrefixLenMask   = 0x7FFF
	PrefixParityBit = 1 << 15
)

// OOBMarker is the first word of an out-of-band datagram.
const OOBMarker = 0xFFFFFFFF

// Header is the decoded form of a sequenced datagram header.
type Header struct {
	Sequence  uint32
	Reliable  bool
	Ack       uint32
	AckParity bool

	HasQPort bool
	QPort    uint16

	Fragmented     bool
	FragmentOffset int
	MoreFragments  bool
}

// Size returns the encoded length of h.
func (h *Header) Size() int {
	n := SeqSize + AckSize
	if h.HasQPort {
		n += QPortSize
	}
	if h.Fragmented {
		n += FragmentSize
	}
	return n
}

// Server to client opcodes.
const (
	SvcBad uint8 = iota
	SvcNop
	SvcDisconnect
	SvcReconnect
	SvcPrint
	SvcStuffText
	SvcServerData   // protocol version, client slot, gamestate
	SvcConfigString // single configstring update
	SvcFrame        // server frame, player delta, packet entities
	SvcAmbient      // ambient entity resync
	SvcShots        // weapon fire since the last frame
)

// Client to server opcodes.
const (
	ClcBad uint8 = iota
	ClcNop
	ClcMove      // acked frame, bit-packed user commands
	ClcStringCmd // text command
)

// Version is sent in SvcServerData. Any change to the delta bit layouts
// bumps it.
const Version = 36

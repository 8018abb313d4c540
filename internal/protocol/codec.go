package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPacket is returned when a datagram ends inside its header.
var ErrShortPacket = errors.New("protocol: packet too short")

// AppendHeader serializes h after dst and returns the extended slice.
func AppendHeader(dst []byte, h *Header) []byte {
	w1 := h.Sequence & SeqMask
	if h.Fragmented {
		w1 |= FragmentBit
	}
	if h.Reliable {
		w1 |= ReliableBit
	}
	w2 := h.Ack & SeqMask
	if h.AckParity {
		w2 |= AckParityBit
	}

	dst = binary.LittleEndian.AppendUint32(dst, w1)
	dst = binary.LittleEndian.AppendUint32(dst, w2)
	if h.HasQPort {
		dst = binary.LittleEndian.AppendUint16(dst, h.QPort)
	}
	if h.Fragmented {
		f := uint16(h.FragmentOffset & FragOffsetMask)
		if h.MoreFragments {
			f |= FragMoreBit
		}
		dst = binary.LittleEndian.AppendUint16(dst, f)
	}
	return dst
}

// DecodeHeader parses the header at the start of data. hasQPort tells
// whether the sender includes a qport, which only clients do. It returns the
// header and the number of bytes consumed.
func DecodeHeader(data []byte, hasQPort bool) (Header, int, error) {
	var h Header
	if len(data) < SeqSize+AckSize {
		return h, 0, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}

	w1 := binary.LittleEndian.Uint32(data[0:4])
	w2 := binary.LittleEndian.Uint32(data[4:8])
	h.Sequence = w1 & SeqMask
	h.Fragmented = w1&FragmentBit != 0
	h.Reliable = w1&ReliableBit != 0
	h.Ack = w2 & SeqMask
	h.AckParity = w2&AckParityBit != 0
	h.HasQPort = hasQPort

	if n := h.Size(); len(data) < n {
		return h, 0, fmt.Errorf("%w: %d bytes (need %d)", ErrShortPacket, len(data), n)
	}

	n := SeqSize + AckSize
	if hasQPort {
		h.QPort = binary.LittleEndian.Uint16(data[n:])
		n += QPortSize
	}
	if h.Fragmented {
		f := binary.LittleEndian.Uint16(data[n:])
		h.FragmentOffset = int(f & FragOffsetMask)
		h.MoreFragments = f&FragMoreBit != 0
		n += FragmentSize
	}
	return h, n, nil
}

// IsOutOfBand reports whether data starts with the out-of-band marker.
func IsOutOfBand(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == OOBMarker
}

// AppendOutOfBand appends the marker and text to dst.
func AppendOutOfBand(dst []byte, text string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, OOBMarker)
	return append(dst, text...)
}

// EncodePrefix packs a reliable payload length and its parity.
func EncodePrefix(n int, parity bool) uint16 {
	p := uint16(n & PrefixLenMask)
	if parity {
		p |= PrefixParityBit
	}
	return p
}

// DecodePrefix is the inverse of EncodePrefix.
func DecodePrefix(p uint16) (n int, parity bool) {
	return int(p & PrefixLenMask), p&PrefixParityBit != 0
}

package msg

import "github.com/1ureka/netchan/internal/util"

// WriteBits packs the low |bits| bits of value at the bit cursor, LSB first.
// A negative width marks a signed field; the encoding is the same. Any byte
// write afterwards starts on the next byte boundary.
func (b *Buffer) WriteBits(value, bits int) {
	if bits == 0 || bits < -31 || bits > 32 {
		b.fail("WriteBits", ErrBadBits)
		return
	}
	if b.err != nil {
		return
	}
	if bits < 0 {
		bits = -bits
	}

	pos := b.bitPos
	if pos&7 == 0 {
		switch bits {
		case 8:
			b.WriteUint8(value)
			return
		case 16:
			b.WriteInt16(value)
			return
		case 32:
			b.WriteInt32(value)
			return
		}
	}

	if (pos+bits+7)>>3 > len(b.data) {
		if !b.AllowOverflow || (bits+7)>>3 > len(b.data) {
			b.fail("WriteBits", ErrOverflow)
			return
		}
		util.LogDebug("%s: WriteBits: overflow", b.tag)
		b.Clear()
		b.Overflowed = true
		pos = 0
	}

	v := uint32(value)
	for i := 0; i < bits; i, pos = i+1, pos+1 {
		if pos&7 == 0 {
			b.data[pos>>3] = 0
		}
		b.data[pos>>3] |= byte(v&1) << (pos & 7)
		v >>= 1
	}
	b.bitPos = pos
	b.size = (pos + 7) >> 3
}

// ReadBits reads a field written by WriteBits. A negative width sign-extends
// the result; a positive one never does, so 32 bits read back unsigned at any
// alignment. It returns -1 past the end of data.
func (b *Buffer) ReadBits(bits int) int {
	if bits == 0 || bits < -31 || bits > 32 {
		b.fail("ReadBits", ErrBadBits)
		return -1
	}

	pos := b.bitPos
	if pos&7 == 0 {
		switch bits {
		case -8:
			return b.ReadInt8()
		case 8:
			return b.ReadUint8()
		case -16:
			return b.ReadInt16()
		case 32:
			return b.ReadUint32()
		}
	}

	signed := false
	if bits < 0 {
		bits = -bits
		signed = true
	}

	if (pos+bits+7)>>3 > b.size {
		b.bitPos = pos + bits
		b.readCount = (b.bitPos + 7) >> 3
		if !b.AllowUnderflow {
			b.fail("ReadBits", ErrUnderflow)
		}
		return -1
	}

	var v uint32
	for i := 0; i < bits; i, pos = i+1, pos+1 {
		v |= uint32(b.data[pos>>3]>>(pos&7)&1) << i
	}
	b.bitPos = pos
	b.readCount = (pos + 7) >> 3

	if signed {
		if v&(1<<(bits-1)) != 0 {
			v |= ^uint32(0) << bits
		}
		return int(int32(v))
	}
	return int(v)
}

// BitPos returns the bit cursor.
func (b *Buffer) BitPos() int { return b.bitPos }

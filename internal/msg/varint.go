package msg

// MaxVarintLen is the longest encoding of a 64-bit value.
const MaxVarintLen = 10

// PutUvarint encodes v into dst, 7 bits per byte, low group first, and
// returns the number of bytes written. dst must hold MaxVarintLen bytes.
func PutUvarint(dst []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

// UvarintLen returns the encoded size of v.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func (b *Buffer) WriteUvarint(v uint64) {
	var tmp [MaxVarintLen]byte
	n := PutUvarint(tmp[:], v)
	if p := b.getSpace("WriteUvarint", n); p != nil {
		copy(p, tmp[:n])
	}
}

// ReadUvarint returns false at end of data or on a malformed encoding.
func (b *Buffer) ReadUvarint() (uint64, bool) {
	var x uint64
	var s uint
	for i := 0; i < MaxVarintLen; i++ {
		c := b.ReadUint8()
		if c < 0 {
			return 0, false
		}
		if i == MaxVarintLen-1 && c > 1 {
			b.fail("ReadUvarint", ErrVarintOverflow)
			return 0, false
		}
		if c < 0x80 {
			return x | uint64(c)<<s, true
		}
		x |= uint64(c&0x7f) << s
		s += 7
	}
	b.fail("ReadUvarint", ErrVarintOverflow)
	return 0, false
}

// WriteVarint writes a signed value with zig-zag encoding.
func (b *Buffer) WriteVarint(v int64) {
	b.WriteUvarint(uint64(v<<1) ^ uint64(v>>63))
}

func (b *Buffer) ReadVarint() (int64, bool) {
	u, ok := b.ReadUvarint()
	return int64(u>>1) ^ -int64(u&1), ok
}

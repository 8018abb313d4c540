package msg

import "encoding/binary"

// ---------------------------------------------------------------------------
// Writers
// ---------------------------------------------------------------------------

func (b *Buffer) WriteInt8(c int) {
	if p := b.getSpace("WriteInt8", 1); p != nil {
		p[0] = byte(c)
	}
}

func (b *Buffer) WriteUint8(c int) {
	if p := b.getSpace("WriteUint8", 1); p != nil {
		p[0] = byte(c)
	}
}

func (b *Buffer) WriteInt16(c int) {
	if p := b.getSpace("WriteInt16", 2); p != nil {
		binary.LittleEndian.PutUint16(p, uint16(c))
	}
}

func (b *Buffer) WriteUint16(c int) {
	if p := b.getSpace("WriteUint16", 2); p != nil {
		binary.LittleEndian.PutUint16(p, uint16(c))
	}
}

func (b *Buffer) WriteInt32(c int) {
	if p := b.getSpace("WriteInt32", 4); p != nil {
		binary.LittleEndian.PutUint32(p, uint32(c))
	}
}

func (b *Buffer) WriteUint32(c uint32) {
	if p := b.getSpace("WriteUint32", 4); p != nil {
		binary.LittleEndian.PutUint32(p, c)
	}
}

// ---------------------------------------------------------------------------
// Readers
//
// Every reader returns -1 when no more data is available.
// ---------------------------------------------------------------------------

func (b *Buffer) ReadInt8() int {
	p := b.readSpace("ReadInt8", 1)
	if p == nil {
		return -1
	}
	return int(int8(p[0]))
}

func (b *Buffer) ReadUint8() int {
	p := b.readSpace("ReadUint8", 1)
	if p == nil {
		return -1
	}
	return int(p[0])
}

func (b *Buffer) ReadInt16() int {
	p := b.readSpace("ReadInt16", 2)
	if p == nil {
		return -1
	}
	return int(int16(binary.LittleEndian.Uint16(p)))
}

func (b *Buffer) ReadUint16() int {
	p := b.readSpace("ReadUint16", 2)
	if p == nil {
		return -1
	}
	return int(binary.LittleEndian.Uint16(p))
}

// ReadUint32 returns -1 past the end of data.
func (b *Buffer) ReadUint32() int {
	p := b.readSpace("ReadUint32", 4)
	if p == nil {
		return -1
	}
	return int(binary.LittleEndian.Uint32(p))
}

// ReadInt32 cannot tell -1 apart from end of data; check Underflowed.
func (b *Buffer) ReadInt32() int {
	p := b.readSpace("ReadInt32", 4)
	if p == nil {
		return -1
	}
	return int(int32(binary.LittleEndian.Uint32(p)))
}

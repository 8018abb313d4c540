// Package msg implements the byte and bit level message codec every other
// layer serializes through: little-endian fixed integers, varints, strings,
// quantized coordinates and angles, bit-packed fields and direction indices.
//
// A Buffer is either being written (Len grows toward Cap) or being read (the
// read cursor walks toward Len). Fatal conditions are sticky: the first one is
// kept in Err and later writes are ignored, so a caller can serialize a whole
// message and check once at the end.
package msg

import (
	"github.com/1ureka/netchan/internal/util"
)

// Buffer is a fixed-capacity message buffer. It is not safe for concurrent use.
type Buffer struct {
	data      []byte
	size      int
	readCount int
	bitPos    int
	tag       string
	err       error

	// AllowOverflow makes a full buffer clear itself and set Overflowed
	// instead of failing.
	AllowOverflow bool

	// AllowUnderflow makes reads past the end return the -1 sentinel
	// without recording ErrUnderflow.
	AllowUnderflow bool

	// Overflowed is set when an overflow-allowed buffer discarded its
	// contents to make room.
	Overflowed bool
}

// New returns an empty buffer of the given capacity that allows both
// overflow and underflow.
func New(maxsize int) *Buffer {
	return &Buffer{
		data:           make([]byte, maxsize),
		AllowOverflow:  true,
		AllowUnderflow: true,
	}
}

// NewTagged returns an empty buffer that allows neither overflow nor
// underflow. The tag names the buffer in errors.
func NewTagged(maxsize int, tag string) *Buffer {
	return &Buffer{
		data: make([]byte, maxsize),
		tag:  tag,
	}
}

// NewReader returns a buffer positioned at the start of data for reading.
// The buffer aliases data.
func NewReader(data []byte) *Buffer {
	b := &Buffer{AllowUnderflow: true}
	b.Reset(data)
	return b
}

// Reset makes b a reader over data. The buffer aliases data.
func (b *Buffer) Reset(data []byte) {
	b.data = data
	b.size = len(data)
	b.readCount = 0
	b.bitPos = 0
	b.Overflowed = false
	b.err = nil
}

// Clear discards the contents and any recorded error.
func (b *Buffer) Clear() {
	b.size = 0
	b.readCount = 0
	b.bitPos = 0
	b.Overflowed = false
	b.err = nil
}

// BeginReading rewinds the read cursor.
func (b *Buffer) BeginReading() {
	b.readCount = 0
	b.bitPos = 0
}

func (b *Buffer) Tag() string    { return b.tag }
func (b *Buffer) Len() int       { return b.size }
func (b *Buffer) Cap() int       { return len(b.data) }
func (b *Buffer) ReadCount() int { return b.readCount }
func (b *Buffer) Err() error     { return b.err }

// Bytes returns the written portion of the buffer. It aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	if b.readCount >= b.size {
		return 0
	}
	return b.size - b.readCount
}

// Unread returns the unread portion of the buffer. It aliases the buffer.
func (b *Buffer) Unread() []byte {
	if b.readCount >= b.size {
		return nil
	}
	return b.data[b.readCount:b.size]
}

// Underflowed reports whether a read went past the end of the message.
func (b *Buffer) Underflowed() bool { return b.readCount > b.size }

func (b *Buffer) fail(op string, err error) {
	if b.err == nil {
		b.err = &Error{Op: op, Tag: b.tag, Err: err}
	}
}

// getSpace reserves n bytes at the write cursor. It returns nil when the
// write must be dropped.
func (b *Buffer) getSpace(op string, n int) []byte {
	if b.err != nil {
		return nil
	}

	if b.size+n > len(b.data) {
		if n > len(b.data) {
			b.fail(op, ErrMessageTooLarge)
			return nil
		}
		if !b.AllowOverflow {
			b.fail(op, ErrOverflow)
			return nil
		}
		util.LogDebug("%s: %s: overflow", b.tag, op)
		b.Clear()
		b.Overflowed = true
	}

	p := b.data[b.size : b.size+n]
	b.size += n
	b.bitPos = b.size << 3
	return p
}

// readSpace advances the read cursor by n bytes. It returns nil past the end.
func (b *Buffer) readSpace(op string, n int) []byte {
	start := b.readCount
	b.readCount += n
	b.bitPos = b.readCount << 3

	if b.readCount > b.size {
		if !b.AllowUnderflow {
			b.fail(op, ErrUnderflow)
		}
		return nil
	}
	return b.data[start:b.readCount]
}

// WriteData appends raw bytes.
func (b *Buffer) WriteData(p []byte) {
	if dst := b.getSpace("WriteData", len(p)); dst != nil {
		copy(dst, p)
	}
}

// ReadData returns the next n bytes, or nil past the end. The result aliases
// the buffer.
func (b *Buffer) ReadData(n int) []byte {
	return b.readSpace("ReadData", n)
}

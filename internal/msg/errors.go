package msg

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow is recorded when a buffer that does not allow overflow
	// runs out of space.
	ErrOverflow = errors.New("msg: write past end of buffer")

	// ErrMessageTooLarge is recorded when a single write can never fit,
	// regardless of overflow policy.
	ErrMessageTooLarge = errors.New("msg: write larger than buffer")

	// ErrUnderflow is recorded when a buffer that does not allow underflow
	// is read past its end.
	ErrUnderflow = errors.New("msg: read past end of message")

	ErrVarintOverflow = errors.New("msg: varint overflows 64 bits")
	ErrBadBits        = errors.New("msg: bad bit count")
	ErrBadDir         = errors.New("msg: direction index out of range")
)

// Error records which buffer failed and during which operation.
type Error struct {
	Op  string
	Tag string
	Err error
}

func (e *Error) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Tag, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

package netchan

import (
	"errors"
	"fmt"
)

var (
	// ErrReliableOverflow means more reliable data was queued than the
	// reliable buffer can hold before the peer acknowledged the last payload.
	ErrReliableOverflow = errors.New("netchan: reliable message overflowed")

	// ErrFragmentOverflow means a logical message is too large to be
	// described by fragment offsets.
	ErrFragmentOverflow = errors.New("netchan: message exceeds fragment limit")
)

// FatalError is the terminal state of a channel. The owning connection must
// be torn down once a channel reports one.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("netchan: %s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

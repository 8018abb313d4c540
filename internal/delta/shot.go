package delta

import (
	"errors"
	"fmt"

	"github.com/1ureka/netchan/internal/msg"
)

// MaxShots bounds the shots one frame may carry.
const MaxShots = 64

var ErrTooManyShots = errors.New("delta: too many shots in one frame")

// Shot is one weapon discharge. Dir travels as a direction table index, so
// it arrives snapped to the nearest table vector.
type Shot struct {
	Entity int
	Origin msg.Vec3
	Dir    msg.Vec3
}

// WriteShots writes a count followed by the shots. Each entity number is
// the signed difference from the previous shot's.
func WriteShots(b *msg.Buffer, shots []Shot) error {
	if len(shots) > MaxShots {
		return fmt.Errorf("%w: %d", ErrTooManyShots, len(shots))
	}

	b.WriteUvarint(uint64(len(shots)))
	prev := 0
	for i := range shots {
		s := &shots[i]
		if s.Entity < 1 || s.Entity >= MaxEdicts {
			return fmt.Errorf("shot: %w: %d", ErrBadNumber, s.Entity)
		}
		b.WriteVarint(int64(s.Entity - prev))
		b.WritePos(s.Origin)
		b.WriteDir(s.Dir)
		prev = s.Entity
	}
	return bufErr(b, "write shots")
}

// ParseShots reads a list written by WriteShots.
func ParseShots(b *msg.Buffer) ([]Shot, error) {
	n, ok := b.ReadUvarint()
	if !ok {
		return nil, truncated(b, "read shot count")
	}
	if n > MaxShots {
		return nil, fmt.Errorf("%w: %d", ErrTooManyShots, n)
	}

	shots := make([]Shot, 0, n)
	prev := 0
	for range n {
		d, ok := b.ReadVarint()
		if !ok {
			return nil, truncated(b, "read shot")
		}
		num := prev + int(d)
		if num < 1 || num >= MaxEdicts {
			return nil, fmt.Errorf("shot: %w: %d", ErrBadNumber, num)
		}
		shots = append(shots, Shot{Entity: num, Origin: b.ReadPos(), Dir: b.ReadDir()})
		prev = num
	}

	if err := bufErr(b, "read shots"); err != nil {
		return nil, err
	}
	return shots, nil
}

func truncated(b *msg.Buffer, what string) error {
	if err := bufErr(b, what); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", what, ErrTruncated)
}

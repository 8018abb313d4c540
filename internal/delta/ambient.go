package delta

import (
	"fmt"

	"github.com/1ureka/netchan/internal/msg"
)

const ambientFull = 1

// WriteAmbients writes the ambient set cur, tagged with id. With force every
// ambient is sent in full from the null state and the peer replaces its
// whole set. Otherwise only changes since last, the set the peer held as
// id-1, are sent. Both lists must be sorted by number.
func WriteAmbients(b *msg.Buffer, id int, last, cur []EntityState, force bool) error {
	if err := checkSorted(cur); err != nil {
		return err
	}
	if err := checkSorted(last); err != nil {
		return err
	}

	b.WriteUint8(id)
	if force {
		b.WriteUint8(ambientFull)
		for i := range cur {
			if err := writeAmbient(b, nil, &cur[i]); err != nil {
				return err
			}
		}
		WriteSentinel(b)
		return bufErr(b, "write ambients")
	}

	b.WriteUint8(0)
	i, j := 0, 0
	for i < len(last) || j < len(cur) {
		oldnum, newnum := noEntity, noEntity
		if i < len(last) {
			oldnum = last[i].Number
		}
		if j < len(cur) {
			newnum = cur[j].Number
		}

		var err error
		switch {
		case newnum == oldnum:
			if EntityBits(&last[i], &cur[j], FlagAmbient) != 0 {
				err = writeAmbient(b, &last[i], &cur[j])
			}
			i++
			j++
		case newnum < oldnum:
			err = writeAmbient(b, nil, &cur[j])
			j++
		default:
			err = WriteDeltaEntity(b, &last[i], nil, 0)
			i++
		}
		if err != nil {
			return err
		}
	}
	WriteSentinel(b)
	return bufErr(b, "write ambients")
}

func writeAmbient(b *msg.Buffer, from, to *EntityState) error {
	if !IsAmbientEntity(to.Number) {
		return fmt.Errorf("ambient: %w: %d", ErrBadNumber, to.Number)
	}
	return WriteDeltaEntity(b, from, to, FlagAmbient)
}

// AmbientUpdate is a parsed ambient message.
type AmbientUpdate struct {
	ID       int
	Full     bool
	Ambients []EntityState // the resulting set, sorted by number
}

// ParseAmbients reads what WriteAmbients wrote. cur is the set the peer
// holds; for a partial update the caller must check that it is the set
// tagged ID-1 before adopting the result.
func ParseAmbients(b *msg.Buffer, cur []EntityState) (AmbientUpdate, error) {
	var up AmbientUpdate
	up.ID = b.ReadUint8()
	up.Full = b.ReadUint8()&ambientFull != 0
	if err := bufErr(b, "parse ambients"); err != nil {
		return up, err
	}

	if up.Full {
		cur = nil
	}
	out := make([]EntityState, 0, len(cur))
	i := 0
	last := 0

	for {
		number, bits, err := ParseEntityBits(b)
		if err != nil {
			return up, err
		}
		if number == 0 && bits == 0 {
			break
		}
		if !IsAmbientEntity(number) {
			return up, fmt.Errorf("ambient: %w: %d", ErrBadNumber, number)
		}
		if number <= last {
			return up, fmt.Errorf("%w: %d after %d", ErrBadOrder, number, last)
		}
		last = number

		// unmentioned ambients are unchanged
		for i < len(cur) && cur[i].Number < number {
			out = append(out, cur[i])
			i++
		}
		var base *EntityState
		if i < len(cur) && cur[i].Number == number {
			base = &cur[i]
			i++
		}

		if bits&BitRemove != 0 {
			continue
		}
		s, err := ParseDeltaEntity(b, base, number, bits, FlagAmbient)
		if err != nil {
			return up, err
		}
		out = append(out, s)
	}
	out = append(out, cur[i:]...)

	up.Ambients = out
	return up, nil
}

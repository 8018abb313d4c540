package delta

import (
	"fmt"

	"github.com/1ureka/netchan/internal/msg"
	"github.com/1ureka/netchan/internal/util"
)

const noEntity = 1 << 30

// WritePacketEntities writes the change from the entity list the peer
// acknowledged to the current one, then the sentinel. Both lists must be
// sorted by number. Entities outside the packet pool are skipped.
//
// Entities in both lists are deltaed against their old state, new ones
// against their baseline with FlagNewEntity, and vanished ones get a removal
// marker. Every entity in to is mentioned, so the peer can treat an
// unmentioned entity as gone.
func WritePacketEntities(b *msg.Buffer, from, to []EntityState, baselines Baselines, flags EntityFlags) error {
	if err := checkSorted(to); err != nil {
		return err
	}
	if err := checkSorted(from); err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(from) || j < len(to) {
		oldnum, newnum := noEntity, noEntity
		if i < len(from) {
			oldnum = from[i].Number
		}
		if j < len(to) {
			newnum = to[j].Number
			if !IsPacketEntity(newnum) {
				util.LogDebug("packet entities: skipping entity %d outside the packet pool", newnum)
				j++
				continue
			}
		}

		var err error
		switch {
		case newnum == oldnum:
			err = WriteDeltaEntity(b, &from[i], &to[j], flags)
			i++
			j++
		case newnum < oldnum:
			err = WriteDeltaEntity(b, baselines.Get(newnum), &to[j], flags|FlagNewEntity)
			j++
		default:
			err = WriteDeltaEntity(b, &from[i], nil, 0)
			i++
		}
		if err != nil {
			return err
		}
	}

	WriteSentinel(b)
	return bufErr(b, "write packet entities")
}

// ParsePacketEntities reads what WritePacketEntities wrote and returns the
// new sorted entity list. from is the list the delta was made against.
func ParsePacketEntities(b *msg.Buffer, from []EntityState, baselines Baselines, flags EntityFlags) ([]EntityState, error) {
	out := make([]EntityState, 0, len(from))
	i := 0
	last := 0

	for {
		number, bits, err := ParseEntityBits(b)
		if err != nil {
			return nil, err
		}
		if number == 0 {
			if bits != 0 {
				return nil, fmt.Errorf("%w: 0 with bits %#x", ErrBadNumber, bits)
			}
			break
		}
		if number <= last {
			return nil, fmt.Errorf("%w: %d after %d", ErrBadOrder, number, last)
		}
		last = number

		for i < len(from) && from[i].Number < number {
			i++
		}

		base := baselines.Get(number)
		f := flags | FlagNewEntity
		if i < len(from) && from[i].Number == number {
			base = &from[i]
			f = flags
			i++
		}

		if bits&BitRemove != 0 {
			continue
		}

		st, err := ParseDeltaEntity(b, base, number, bits, f)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func checkSorted(list []EntityState) error {
	for k := 1; k < len(list); k++ {
		if list[k].Number <= list[k-1].Number {
			return fmt.Errorf("%w: %d after %d", ErrBadOrder, list[k].Number, list[k-1].Number)
		}
	}
	return nil
}

package delta

import (
	"fmt"
	"slices"

	"github.com/1ureka/netchan/internal/msg"
)

// MaxConfigStrings bounds configstring indices. The index value itself ends
// the configstring list on the wire.
const MaxConfigStrings = 2048

// MaxConfigStringLen is the longest configstring a peer will read.
const MaxConfigStringLen = msg.MaxNetString

// Gamestate is everything a joining peer needs before the first delta.
type Gamestate struct {
	ConfigStrings  [MaxConfigStrings]string
	Baselines      Baselines
	AmbientStateID int
	Ambients       []EntityState // sorted by number
}

// NewGamestate returns an empty gamestate.
func NewGamestate() *Gamestate {
	return &Gamestate{Baselines: make(Baselines)}
}

// SortedBaselines returns the baselines ordered by entity number.
func (gs *Gamestate) SortedBaselines() []EntityState {
	list := make([]EntityState, 0, len(gs.Baselines))
	for _, s := range gs.Baselines {
		list = append(list, s)
	}
	slices.SortFunc(list, func(a, b EntityState) int { return a.Number - b.Number })
	return list
}

// WriteGamestate writes configstrings, baselines and ambients, each list
// ending in its terminator. Baselines and ambients are full deltas from the
// null state.
func WriteGamestate(b *msg.Buffer, gs *Gamestate) error {
	for i, cs := range gs.ConfigStrings {
		if cs == "" {
			continue
		}
		b.WriteUint16(i)
		b.WriteString(cs)
	}
	b.WriteUint16(MaxConfigStrings)

	for _, s := range gs.SortedBaselines() {
		if err := WriteDeltaEntity(b, nil, &s, 0); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	WriteSentinel(b)

	if err := checkSorted(gs.Ambients); err != nil {
		return err
	}
	b.WriteUint8(gs.AmbientStateID)
	b.WriteUint16(len(gs.Ambients))
	for i := range gs.Ambients {
		if !IsAmbientEntity(gs.Ambients[i].Number) {
			return fmt.Errorf("ambient: %w: %d", ErrBadNumber, gs.Ambients[i].Number)
		}
		if err := WriteDeltaEntity(b, nil, &gs.Ambients[i], FlagAmbient); err != nil {
			return fmt.Errorf("ambient: %w", err)
		}
	}
	WriteSentinel(b)

	return bufErr(b, "write gamestate")
}

// ParseGamestate reads what WriteGamestate wrote.
func ParseGamestate(b *msg.Buffer) (*Gamestate, error) {
	gs := NewGamestate()

	for {
		index := b.ReadUint16()
		if err := bufErr(b, "parse configstrings"); err != nil {
			return nil, err
		}
		if index == MaxConfigStrings {
			break
		}
		if index < 0 || index > MaxConfigStrings {
			return nil, fmt.Errorf("%w: %d", ErrConfigIndex, index)
		}
		gs.ConfigStrings[index], _ = b.ReadString(MaxConfigStringLen)
	}

	for {
		number, bits, err := ParseEntityBits(b)
		if err != nil {
			return nil, err
		}
		if number == 0 && bits == 0 {
			break
		}
		s, err := ParseDeltaEntity(b, nil, number, bits, 0)
		if err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
		gs.Baselines[number] = s
	}

	gs.AmbientStateID = b.ReadUint8()
	count := b.ReadUint16()
	if err := bufErr(b, "parse ambients"); err != nil {
		return nil, err
	}

	gs.Ambients = make([]EntityState, 0, count)
	for {
		number, bits, err := ParseEntityBits(b)
		if err != nil {
			return nil, err
		}
		if number == 0 && bits == 0 {
			break
		}
		if !IsAmbientEntity(number) {
			return nil, fmt.Errorf("ambient: %w: %d", ErrBadNumber, number)
		}
		s, err := ParseDeltaEntity(b, nil, number, bits, FlagAmbient)
		if err != nil {
			return nil, fmt.Errorf("ambient: %w", err)
		}
		gs.Ambients = append(gs.Ambients, s)
	}
	if len(gs.Ambients) != count {
		return nil, fmt.Errorf("%w: %d ambients, header says %d", ErrTruncated, len(gs.Ambients), count)
	}

	return gs, nil
}

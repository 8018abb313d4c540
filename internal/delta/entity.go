package delta

import (
	"fmt"

	"github.com/1ureka/netchan/internal/msg"
)

// Entity header bits. The header is one to four bytes; each MoreBits bit
// announces the next byte.
const (
	BitOrigin1   uint32 = 1 << 0
	BitOrigin2   uint32 = 1 << 1
	BitAngle2    uint32 = 1 << 2
	BitAngle3    uint32 = 1 << 3
	BitFrame8    uint32 = 1 << 4
	BitEvent     uint32 = 1 << 5
	BitRemove    uint32 = 1 << 6
	BitMoreBits1 uint32 = 1 << 7

	BitNumber16   uint32 = 1 << 8
	BitOrigin3    uint32 = 1 << 9
	BitAngle1     uint32 = 1 << 10
	BitModel      uint32 = 1 << 11
	BitRenderFX8  uint32 = 1 << 12
	BitSoundPitch uint32 = 1 << 13
	BitEffects8   uint32 = 1 << 14
	BitMoreBits2  uint32 = 1 << 15

	BitSkin8      uint32 = 1 << 16
	BitFrame16    uint32 = 1 << 17
	BitRenderFX16 uint32 = 1 << 18
	BitEffects16  uint32 = 1 << 19
	BitModel2     uint32 = 1 << 20
	BitModel3     uint32 = 1 << 21
	BitModel4     uint32 = 1 << 22
	BitMoreBits3  uint32 = 1 << 23

	BitOldOrigin uint32 = 1 << 24
	BitSkin16    uint32 = 1 << 25
	BitSound     uint32 = 1 << 26
	BitSolid     uint32 = 1 << 27
)

// EntityFlags modify how an entity delta is written or read.
type EntityFlags uint8

const (
	// FlagForce sends every field regardless of change.
	FlagForce EntityFlags = 1 << iota

	// FlagNewEntity marks an entity the peer did not have; OldOrigin is
	// sent when it differs from the base origin and defaults to it on read.
	FlagNewEntity

	// FlagFirstPerson leaves out origin and angles, which the peer predicts.
	FlagFirstPerson

	// FlagAmbient sends origins in whole units and angles in eight bits.
	FlagAmbient
)

var nullEntity EntityState

// ---------------------------------------------------------------------------
// Field schema
// ---------------------------------------------------------------------------

type fieldKind uint8

const (
	kindByte      fieldKind = iota
	kindFrame               // 8 or 16 bits by value
	kindSized               // 8, 16 or 32 bits by value
	kindCoord               // one origin axis
	kindAngle               // one angle axis
	kindOldOrigin           // all three axes
	kindEvent               // byte, zero compressed
	kindLong
)

// entityField describes one field of the entity record. lo is the field's
// bit; hi is the second width bit of kindFrame and kindSized fields, where
// lo alone means 8 bits, hi alone 16 and both 32.
type entityField struct {
	name string
	lo   uint32
	hi   uint32
	kind fieldKind
	axis int
	num  func(*EntityState) *int
	word func(*EntityState) *uint32
}

// entityFields is in wire order.
var entityFields = []entityField{
	{name: "model", lo: BitModel, kind: kindByte, num: func(s *EntityState) *int { return &s.ModelIndex }},
	{name: "model2", lo: BitModel2, kind: kindByte, num: func(s *EntityState) *int { return &s.ModelIndex2 }},
	{name: "model3", lo: BitModel3, kind: kindByte, num: func(s *EntityState) *int { return &s.ModelIndex3 }},
	{name: "model4", lo: BitModel4, kind: kindByte, num: func(s *EntityState) *int { return &s.ModelIndex4 }},
	{name: "frame", lo: BitFrame8, hi: BitFrame16, kind: kindFrame, num: func(s *EntityState) *int { return &s.Frame }},
	{name: "skin", lo: BitSkin8, hi: BitSkin16, kind: kindSized, word: func(s *EntityState) *uint32 { return &s.Skin }},
	{name: "effects", lo: BitEffects8, hi: BitEffects16, kind: kindSized, word: func(s *EntityState) *uint32 { return &s.Effects }},
	{name: "renderfx", lo: BitRenderFX8, hi: BitRenderFX16, kind: kindSized, word: func(s *EntityState) *uint32 { return &s.RenderFX }},
	{name: "origin1", lo: BitOrigin1, kind: kindCoord, axis: 0},
	{name: "origin2", lo: BitOrigin2, kind: kindCoord, axis: 1},
	{name: "origin3", lo: BitOrigin3, kind: kindCoord, axis: 2},
	{name: "angle1", lo: BitAngle1, kind: kindAngle, axis: 0},
	{name: "angle2", lo: BitAngle2, kind: kindAngle, axis: 1},
	{name: "angle3", lo: BitAngle3, kind: kindAngle, axis: 2},
	{name: "oldorigin", lo: BitOldOrigin, kind: kindOldOrigin},
	{name: "sound", lo: BitSound, kind: kindByte, num: func(s *EntityState) *int { return &s.Sound }},
	{name: "soundpitch", lo: BitSoundPitch, kind: kindByte, num: func(s *EntityState) *int { return &s.SoundPitch }},
	{name: "event", lo: BitEvent, kind: kindEvent, num: func(s *EntityState) *int { return &s.Event }},
	{name: "solid", lo: BitSolid, kind: kindLong, word: func(s *EntityState) *uint32 { return &s.Solid }},
}

// fieldBits is every bit owned by a field.
var fieldBits = func() uint32 {
	var m uint32
	for _, f := range entityFields {
		m |= f.lo | f.hi
	}
	return m
}()

func sizeBits(v, lo, hi uint32) uint32 {
	switch {
	case v&0xFFFF0000 != 0:
		return lo | hi
	case v&0x0000FF00 != 0:
		return hi
	}
	return lo
}

func coordKey(f float32, flags EntityFlags) int {
	if flags&FlagAmbient != 0 {
		return int(int16(int32(f)))
	}
	return msg.CoordToShort(f)
}

func angleKey(f float32, flags EntityFlags) int {
	if flags&FlagAmbient != 0 {
		return msg.AngleToByte(f)
	}
	return msg.AngleToShort(f)
}

func posEqual(a, b msg.Vec3, flags EntityFlags) bool {
	return coordKey(a[0], flags) == coordKey(b[0], flags) &&
		coordKey(a[1], flags) == coordKey(b[1], flags) &&
		coordKey(a[2], flags) == coordKey(b[2], flags)
}

// bits returns the header bits f contributes for the change from -> to.
func (f *entityField) bits(from, to *EntityState, flags EntityFlags) uint32 {
	force := flags&FlagForce != 0
	firstPerson := flags&FlagFirstPerson != 0

	switch f.kind {
	case kindByte, kindLong:
		if f.num != nil {
			if force || *f.num(from) != *f.num(to) {
				return f.lo
			}
		} else if force || *f.word(from) != *f.word(to) {
			return f.lo
		}

	case kindFrame:
		if v := *f.num(to); force || v != *f.num(from) {
			if v&0xFF00 != 0 {
				return f.hi
			}
			return f.lo
		}

	case kindSized:
		if v := *f.word(to); force || v != *f.word(from) {
			return sizeBits(v, f.lo, f.hi)
		}

	case kindCoord:
		if !firstPerson && (force || coordKey(from.Origin[f.axis], flags) != coordKey(to.Origin[f.axis], flags)) {
			return f.lo
		}

	case kindAngle:
		if !firstPerson && (force || angleKey(from.Angles[f.axis], flags) != angleKey(to.Angles[f.axis], flags)) {
			return f.lo
		}

	case kindOldOrigin:
		send := to.RenderFX&RFFrameLerp != 0 ||
			(to.RenderFX&RFBeam != 0 && !posEqual(to.OldOrigin, from.OldOrigin, flags))
		if !firstPerson {
			if force || (flags&FlagNewEntity != 0 && !posEqual(to.OldOrigin, from.Origin, flags)) {
				send = true
			}
		}
		if send {
			return f.lo
		}

	case kindEvent:
		if *f.num(to) != 0 {
			return f.lo
		}
	}
	return 0
}

func writeCoord(b *msg.Buffer, v float32, flags EntityFlags) {
	if flags&FlagAmbient != 0 {
		b.WriteInt16(coordKey(v, flags))
		return
	}
	b.WriteCoord(v)
}

func readCoord(b *msg.Buffer, flags EntityFlags) float32 {
	if flags&FlagAmbient != 0 {
		return float32(b.ReadInt16())
	}
	return b.ReadCoord()
}

func (f *entityField) write(b *msg.Buffer, to *EntityState, bits uint32, flags EntityFlags) {
	sel := bits & (f.lo | f.hi)
	if sel == 0 {
		return
	}

	switch f.kind {
	case kindByte, kindEvent:
		b.WriteUint8(*f.num(to))

	case kindFrame:
		if sel == f.lo {
			b.WriteUint8(*f.num(to))
		} else {
			b.WriteUint16(*f.num(to))
		}

	case kindSized:
		v := *f.word(to)
		switch sel {
		case f.lo | f.hi:
			b.WriteUint32(v)
		case f.lo:
			b.WriteUint8(int(v))
		default:
			b.WriteUint16(int(v))
		}

	case kindCoord:
		writeCoord(b, to.Origin[f.axis], flags)

	case kindAngle:
		if flags&FlagAmbient != 0 {
			b.WriteAngle(to.Angles[f.axis])
		} else {
			b.WriteAngle16(to.Angles[f.axis])
		}

	case kindOldOrigin:
		for i := range to.OldOrigin {
			writeCoord(b, to.OldOrigin[i], flags)
		}

	case kindLong:
		b.WriteUint32(*f.word(to))
	}
}

func (f *entityField) read(b *msg.Buffer, to *EntityState, bits uint32, flags EntityFlags) {
	sel := bits & (f.lo | f.hi)
	if sel == 0 {
		return
	}

	switch f.kind {
	case kindByte, kindEvent:
		*f.num(to) = b.ReadUint8()

	case kindFrame:
		if sel == f.lo {
			*f.num(to) = b.ReadUint8()
		} else {
			*f.num(to) = b.ReadUint16()
		}

	case kindSized:
		switch sel {
		case f.lo | f.hi:
			*f.word(to) = uint32(b.ReadInt32())
		case f.lo:
			*f.word(to) = uint32(b.ReadUint8())
		default:
			*f.word(to) = uint32(b.ReadUint16())
		}

	case kindCoord:
		to.Origin[f.axis] = readCoord(b, flags)

	case kindAngle:
		if flags&FlagAmbient != 0 {
			to.Angles[f.axis] = b.ReadAngle()
		} else {
			to.Angles[f.axis] = b.ReadAngle16()
		}

	case kindOldOrigin:
		for i := range to.OldOrigin {
			to.OldOrigin[i] = readCoord(b, flags)
		}

	case kindLong:
		*f.word(to) = uint32(b.ReadInt32())
	}
}

// ---------------------------------------------------------------------------
// Entity delta
// ---------------------------------------------------------------------------

// EntityBits returns the field bits WriteDeltaEntity would send for the
// change from -> to. A nil from is the null baseline.
func EntityBits(from, to *EntityState, flags EntityFlags) uint32 {
	if from == nil {
		from = &nullEntity
	}
	var bits uint32
	for i := range entityFields {
		bits |= entityFields[i].bits(from, to, flags)
	}
	return bits
}

func writeEntityHeader(b *msg.Buffer, bits uint32, number int) {
	if number&0xFF00 != 0 {
		bits |= BitNumber16
	}

	switch {
	case bits&0xFF000000 != 0:
		bits |= BitMoreBits3 | BitMoreBits2 | BitMoreBits1
	case bits&0x00FF0000 != 0:
		bits |= BitMoreBits2 | BitMoreBits1
	case bits&0x0000FF00 != 0:
		bits |= BitMoreBits1
	}

	b.WriteUint8(int(bits & 0xFF))
	if bits&BitMoreBits1 != 0 {
		b.WriteUint8(int(bits >> 8 & 0xFF))
	}
	if bits&BitMoreBits2 != 0 {
		b.WriteUint8(int(bits >> 16 & 0xFF))
	}
	if bits&BitMoreBits3 != 0 {
		b.WriteUint8(int(bits >> 24 & 0xFF))
	}

	if bits&BitNumber16 != 0 {
		b.WriteUint16(number)
	} else {
		b.WriteUint8(number)
	}
}

// WriteDeltaEntity writes the difference between from and to. A nil from is
// the null baseline; a nil to writes a removal of from. An entity with no
// changes still writes its header and number so the peer knows it persists.
func WriteDeltaEntity(b *msg.Buffer, from, to *EntityState, flags EntityFlags) error {
	if to == nil {
		if from == nil {
			return ErrNilEntity
		}
		if from.Number < 1 || from.Number >= MaxEdicts {
			return fmt.Errorf("%w: %d", ErrBadNumber, from.Number)
		}
		writeEntityHeader(b, BitRemove, from.Number)
		return bufErr(b, "write entity removal")
	}

	if to.Number < 1 || to.Number >= MaxEdicts {
		return fmt.Errorf("%w: %d", ErrBadNumber, to.Number)
	}
	if from == nil {
		from = &nullEntity
	}

	bits := EntityBits(from, to, flags)
	writeEntityHeader(b, bits, to.Number)
	for i := range entityFields {
		entityFields[i].write(b, to, bits, flags)
	}
	return bufErr(b, "write entity")
}

// WriteSentinel ends a list of entity deltas.
func WriteSentinel(b *msg.Buffer) {
	b.WriteUint8(0)
	b.WriteUint8(0)
}

// ParseEntityBits reads an entity header. A zero number with zero bits is
// the end of the list.
func ParseEntityBits(b *msg.Buffer) (number int, bits uint32, err error) {
	bits = uint32(b.ReadUint8())
	if bits&BitMoreBits1 != 0 {
		bits |= uint32(b.ReadUint8()) << 8
	}
	if bits&BitMoreBits2 != 0 {
		bits |= uint32(b.ReadUint8()) << 16
	}
	if bits&BitMoreBits3 != 0 {
		bits |= uint32(b.ReadUint8()) << 24
	}

	if bits&BitNumber16 != 0 {
		number = b.ReadUint16()
	} else {
		number = b.ReadUint8()
	}

	if err := bufErr(b, "parse entity header"); err != nil {
		return 0, 0, err
	}
	return number, bits, nil
}

// ParseDeltaEntity applies the fields named by bits to a copy of from. A nil
// from is the null baseline. Fields not in bits keep their from value except
// Event, which is always reset.
func ParseDeltaEntity(b *msg.Buffer, from *EntityState, number int, bits uint32, flags EntityFlags) (EntityState, error) {
	if number < 1 || number >= MaxEdicts {
		return EntityState{}, fmt.Errorf("%w: %d", ErrBadNumber, number)
	}
	if from == nil {
		from = &nullEntity
	}

	to := *from
	to.Number = number
	to.Event = 0

	if bits&fieldBits != 0 {
		for i := range entityFields {
			entityFields[i].read(b, &to, bits, flags)
		}
	}

	if flags&FlagNewEntity != 0 && bits&BitOldOrigin == 0 {
		to.OldOrigin = from.Origin
	}

	if err := bufErr(b, fmt.Sprintf("parse entity %d", number)); err != nil {
		return EntityState{}, err
	}
	return to, nil
}

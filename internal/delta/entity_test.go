package delta_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
)

// sampleEntity has every field set to a value that survives quantization.
func sampleEntity(n int) delta.EntityState {
	return delta.EntityState{
		Number:      n,
		Origin:      msg.Vec3{100.5, -20.125, 64},
		Angles:      msg.Vec3{45, 90, -45},
		ModelIndex:  3,
		ModelIndex2: 4,
		Frame:       12,
		Skin:        2,
		Effects:     0x40,
		Solid:       delta.PackBBox(msg.Vec3{-16, -16, -24}, msg.Vec3{16, 16, 32}),
		Sound:       9,
		SoundPitch:  100,
	}
}

// roundTrip writes one entity delta and parses it back against the same base.
func roundTrip(t *testing.T, from, to *delta.EntityState, flags delta.EntityFlags) (delta.EntityState, uint32, []byte) {
	t.Helper()

	b := msg.NewTagged(1024, "test")
	if err := delta.WriteDeltaEntity(b, from, to, flags); err != nil {
		t.Fatalf("WriteDeltaEntity failed: %v", err)
	}
	data := bytes.Clone(b.Bytes())

	r := msg.NewReader(data)
	number, bits, err := delta.ParseEntityBits(r)
	if err != nil {
		t.Fatalf("ParseEntityBits failed: %v", err)
	}
	if number != to.Number {
		t.Fatalf("number = %d, want %d", number, to.Number)
	}
	got, err := delta.ParseDeltaEntity(r, from, number, bits, flags)
	if err != nil {
		t.Fatalf("ParseDeltaEntity failed: %v", err)
	}
	if r.Remaining() != 0 {
		t.Errorf("%d bytes left after parsing", r.Remaining())
	}
	return got, bits, data
}

// headerMask strips the bits that only describe the header layout.
const headerMask = delta.BitMoreBits1 | delta.BitMoreBits2 | delta.BitMoreBits3 | delta.BitNumber16

func TestEntityOriginAndFrame(t *testing.T) {
	a := delta.EntityState{Number: 5, ModelIndex: 1, Skin: 7}
	b := a
	b.Origin = msg.Vec3{10, 0, 0}
	b.Frame = 3

	got, bits, data := roundTrip(t, &a, &b, 0)

	if want := delta.BitOrigin1 | delta.BitFrame8; bits != want {
		t.Errorf("bits = %#x, want %#x", bits, want)
	}
	// header, number, frame, origin x
	if want := []byte{0x11, 0x05, 0x03, 0x50, 0x00}; !bytes.Equal(data, want) {
		t.Errorf("encoded = % x, want % x", data, want)
	}
	if got != b {
		t.Errorf("parsed %+v, want %+v", got, b)
	}
}

func TestEntityZeroDelta(t *testing.T) {
	testCases := []struct {
		name   string
		number int
		size   int
	}{
		{"8 bit number", 5, 2},
		{"16 bit number", 300, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := sampleEntity(tc.number)
			got, bits, data := roundTrip(t, &s, &s, 0)

			if bits&^headerMask != 0 {
				t.Errorf("bits = %#x, want no field bits", bits)
			}
			if len(data) != tc.size {
				t.Errorf("encoded %d bytes, want %d", len(data), tc.size)
			}
			if got != s {
				t.Errorf("parsed %+v, want %+v", got, s)
			}
		})
	}
}

func TestEntityFieldWidths(t *testing.T) {
	testCases := []struct {
		name   string
		change func(s *delta.EntityState)
		bits   uint32
		header int
	}{
		{"skin 8", func(s *delta.EntityState) { s.Skin = 0x12 }, delta.BitSkin8, 3},
		{"skin 16", func(s *delta.EntityState) { s.Skin = 0x1234 }, delta.BitSkin16, 4},
		{"skin 32", func(s *delta.EntityState) { s.Skin = 0x12345678 }, delta.BitSkin8 | delta.BitSkin16, 4},
		{"effects 32", func(s *delta.EntityState) { s.Effects = 0x80000000 }, delta.BitEffects8 | delta.BitEffects16, 3},
		{"renderfx 16", func(s *delta.EntityState) { s.RenderFX = 0x100 }, delta.BitRenderFX16, 3},
		{"frame 16", func(s *delta.EntityState) { s.Frame = 300 }, delta.BitFrame16, 3},
		{"model", func(s *delta.EntityState) { s.ModelIndex = 200 }, delta.BitModel, 2},
		{"model4", func(s *delta.EntityState) { s.ModelIndex4 = 1 }, delta.BitModel4, 3},
		{"solid", func(s *delta.EntityState) { s.Solid = delta.PackedBSP }, delta.BitSolid, 4},
		{"sound", func(s *delta.EntityState) { s.Sound = 17 }, delta.BitSound, 4},
		{"sound pitch", func(s *delta.EntityState) { s.SoundPitch = 3 }, delta.BitSoundPitch, 2},
		{"event", func(s *delta.EntityState) { s.Event = 2 }, delta.BitEvent, 1},
		{"angles", func(s *delta.EntityState) { s.Angles[0] = 90; s.Angles[2] = 45 }, delta.BitAngle1 | delta.BitAngle3, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			from := delta.EntityState{Number: 8}
			to := from
			tc.change(&to)

			got, bits, data := roundTrip(t, &from, &to, 0)
			if bits&^headerMask != tc.bits {
				t.Errorf("bits = %#x, want %#x", bits&^headerMask, tc.bits)
			}
			if got != to {
				t.Errorf("parsed %+v, want %+v", got, to)
			}

			// header length follows the highest bit in use
			r := msg.NewReader(data)
			delta.ParseEntityBits(r)
			if n := r.ReadCount() - 1; n != tc.header {
				t.Errorf("header is %d bytes, want %d", n, tc.header)
			}
		})
	}
}

func TestEntityForce(t *testing.T) {
	s := sampleEntity(42)
	got, bits, _ := roundTrip(t, nil, &s, delta.FlagForce)

	want := delta.BitOrigin1 | delta.BitOrigin2 | delta.BitOrigin3 |
		delta.BitAngle1 | delta.BitAngle2 | delta.BitAngle3 |
		delta.BitModel | delta.BitModel2 | delta.BitModel3 | delta.BitModel4 |
		delta.BitFrame8 | delta.BitSkin8 | delta.BitEffects8 | delta.BitRenderFX8 |
		delta.BitOldOrigin | delta.BitSound | delta.BitSoundPitch | delta.BitSolid
	if bits&^headerMask != want {
		t.Errorf("bits = %#x, want %#x", bits&^headerMask, want)
	}
	if got != s {
		t.Errorf("parsed %+v, want %+v", got, s)
	}

	// forcing an unchanged entity resends it whole
	_, bits, _ = roundTrip(t, &s, &s, delta.FlagForce)
	if bits&^headerMask != want {
		t.Errorf("forced unchanged bits = %#x, want %#x", bits&^headerMask, want)
	}
}

func TestEntityNewEntityOldOrigin(t *testing.T) {
	base := delta.EntityState{Number: 20, Origin: msg.Vec3{8, 8, 8}}

	to := base
	to.Origin = msg.Vec3{16, 8, 8}
	to.OldOrigin = base.Origin
	got, bits, _ := roundTrip(t, &base, &to, delta.FlagNewEntity)
	if bits&delta.BitOldOrigin != 0 {
		t.Error("OldOrigin sent although it matches the base origin")
	}
	if got.OldOrigin != base.Origin {
		t.Errorf("OldOrigin = %v, want base origin %v", got.OldOrigin, base.Origin)
	}

	to.OldOrigin = msg.Vec3{1, 2, 3}
	got, bits, _ = roundTrip(t, &base, &to, delta.FlagNewEntity)
	if bits&delta.BitOldOrigin == 0 {
		t.Error("OldOrigin not sent for a new entity that moved")
	}
	if got != to {
		t.Errorf("parsed %+v, want %+v", got, to)
	}
}

func TestEntityOldOriginRenderFX(t *testing.T) {
	from := delta.EntityState{Number: 30, OldOrigin: msg.Vec3{5, 5, 5}}

	testCases := []struct {
		name     string
		renderfx uint32
		old      msg.Vec3
		want     bool
	}{
		{"plain entity", 0, msg.Vec3{9, 9, 9}, false},
		{"frame lerp unchanged", delta.RFFrameLerp, msg.Vec3{5, 5, 5}, true},
		{"beam unchanged", delta.RFBeam, msg.Vec3{5, 5, 5}, false},
		{"beam moved", delta.RFBeam, msg.Vec3{5, 6, 5}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := from
			f.RenderFX = tc.renderfx
			to := f
			to.OldOrigin = tc.old

			bits := delta.EntityBits(&f, &to, 0)
			if got := bits&delta.BitOldOrigin != 0; got != tc.want {
				t.Errorf("OldOrigin sent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEntityFirstPerson(t *testing.T) {
	from := delta.EntityState{Number: 1}
	to := from
	to.Origin = msg.Vec3{50, 50, 50}
	to.Angles = msg.Vec3{0, 90, 0}
	to.Frame = 4

	got, bits, _ := roundTrip(t, &from, &to, delta.FlagFirstPerson)
	if bits&^headerMask != delta.BitFrame8 {
		t.Errorf("bits = %#x, want only the frame", bits)
	}
	if got.Origin != from.Origin || got.Angles != from.Angles {
		t.Errorf("origin and angles changed: %v %v", got.Origin, got.Angles)
	}
}

func TestEntityAmbientPrecision(t *testing.T) {
	from := delta.EntityState{Number: 1100}
	to := from
	to.Origin = msg.Vec3{100.75, -3.5, 0.25}
	to.Angles = msg.Vec3{0, 90, 0}

	got, bits, data := roundTrip(t, &from, &to, delta.FlagAmbient)

	if want := delta.BitOrigin1 | delta.BitOrigin2 | delta.BitAngle2; bits&^headerMask != want {
		t.Errorf("bits = %#x, want %#x", bits&^headerMask, want)
	}
	if got.Origin != (msg.Vec3{100, -3, 0}) {
		t.Errorf("origin = %v, want whole units", got.Origin)
	}
	if got.Angles[1] != 90 {
		t.Errorf("yaw = %v, want 90", got.Angles[1])
	}
	// two byte header, 16 bit number, two shorts, one angle byte
	if len(data) != 2+2+4+1 {
		t.Errorf("encoded %d bytes, want 9", len(data))
	}
}

func TestEntityRemoval(t *testing.T) {
	testCases := []struct {
		number int
		data   []byte
	}{
		{7, []byte{0x40, 0x07}},
		{512, []byte{0xC0, 0x01, 0x00, 0x02}},
	}

	for _, tc := range testCases {
		b := msg.New(16)
		s := delta.EntityState{Number: tc.number}
		if err := delta.WriteDeltaEntity(b, &s, nil, 0); err != nil {
			t.Fatalf("WriteDeltaEntity failed: %v", err)
		}
		if !bytes.Equal(b.Bytes(), tc.data) {
			t.Errorf("removal of %d = % x, want % x", tc.number, b.Bytes(), tc.data)
		}

		number, bits, err := delta.ParseEntityBits(msg.NewReader(b.Bytes()))
		if err != nil || number != tc.number || bits&delta.BitRemove == 0 {
			t.Errorf("ParseEntityBits = (%d, %#x, %v)", number, bits, err)
		}
	}
}

func TestEntityBadNumber(t *testing.T) {
	for _, n := range []int{0, -1, delta.MaxEdicts} {
		s := delta.EntityState{Number: n}
		if err := delta.WriteDeltaEntity(msg.New(64), nil, &s, 0); !errors.Is(err, delta.ErrBadNumber) {
			t.Errorf("write number %d: err = %v, want ErrBadNumber", n, err)
		}
		if err := delta.WriteDeltaEntity(msg.New(64), &s, nil, 0); !errors.Is(err, delta.ErrBadNumber) {
			t.Errorf("remove number %d: err = %v, want ErrBadNumber", n, err)
		}
		if _, err := delta.ParseDeltaEntity(msg.NewReader(nil), nil, n, 0, 0); !errors.Is(err, delta.ErrBadNumber) {
			t.Errorf("parse number %d: err = %v, want ErrBadNumber", n, err)
		}
	}

	if err := delta.WriteDeltaEntity(msg.New(64), nil, nil, 0); !errors.Is(err, delta.ErrNilEntity) {
		t.Errorf("err = %v, want ErrNilEntity", err)
	}
}

func TestEntityEventReset(t *testing.T) {
	from := delta.EntityState{Number: 3, Event: 5}
	got, _, _ := roundTrip(t, &from, &delta.EntityState{Number: 3}, 0)
	if got.Event != 0 {
		t.Errorf("Event = %d, want 0", got.Event)
	}
}

func TestEntityTruncated(t *testing.T) {
	from := delta.EntityState{Number: 5}
	to := sampleEntity(5)

	b := msg.New(256)
	delta.WriteDeltaEntity(b, &from, &to, 0)
	data := b.Bytes()[:b.Len()-1]

	r := msg.NewReader(data)
	number, bits, err := delta.ParseEntityBits(r)
	if err != nil {
		t.Fatalf("ParseEntityBits failed: %v", err)
	}
	if _, err := delta.ParseDeltaEntity(r, &from, number, bits, 0); !errors.Is(err, delta.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestBBox(t *testing.T) {
	mins, maxs := msg.Vec3{-16, -16, -24}, msg.Vec3{16, 16, 32}
	gotMins, gotMaxs := delta.UnpackBBox(delta.PackBBox(mins, maxs))
	if gotMins != mins || gotMaxs != maxs {
		t.Errorf("bbox = %v %v, want %v %v", gotMins, gotMaxs, mins, maxs)
	}

	// oversized boxes clamp
	_, gotMaxs = delta.UnpackBBox(delta.PackBBox(msg.Vec3{-300, -300, -300}, msg.Vec3{300, 300, 300}))
	if gotMaxs[0] != 255 || gotMaxs[2] != 255-32 {
		t.Errorf("clamped maxs = %v", gotMaxs)
	}
}

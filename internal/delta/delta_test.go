package delta_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/1ureka/netchan/internal/delta"
	"github.com/1ureka/netchan/internal/msg"
)

// ---------------------------------------------------------------------------
// Packet entities
// ---------------------------------------------------------------------------

func TestPacketEntities(t *testing.T) {
	baselines := delta.Baselines{
		7: {Number: 7, ModelIndex: 5, Origin: msg.Vec3{0, 0, 0}},
	}
	from := []delta.EntityState{
		{Number: 1, ModelIndex: 1, Origin: msg.Vec3{1, 1, 1}},
		{Number: 5, ModelIndex: 2, Frame: 4},
		{Number: 9, ModelIndex: 3},
	}
	to := []delta.EntityState{
		{Number: 1, ModelIndex: 1, Origin: msg.Vec3{2, 1, 1}},
		{Number: 5, ModelIndex: 2, Frame: 4},
		{Number: 7, ModelIndex: 5, Origin: msg.Vec3{64, 0, 0}, Skin: 1},
		{Number: 300, ModelIndex: 6, Effects: 0x8000},
	}

	b := msg.NewTagged(1400, "frame")
	if err := delta.WritePacketEntities(b, from, to, baselines, 0); err != nil {
		t.Fatalf("WritePacketEntities failed: %v", err)
	}

	got, err := delta.ParsePacketEntities(msg.NewReader(b.Bytes()), from, baselines, 0)
	if err != nil {
		t.Fatalf("ParsePacketEntities failed: %v", err)
	}
	if !slices.Equal(got, to) {
		t.Errorf("parsed\n%+v\nwant\n%+v", got, to)
	}
}

func TestPacketEntitiesSkipsOtherPools(t *testing.T) {
	to := []delta.EntityState{
		{Number: 2, ModelIndex: 1},
		{Number: 1500, ModelIndex: 1},
		{Number: 2100, ModelIndex: 1},
	}

	b := msg.New(256)
	if err := delta.WritePacketEntities(b, nil, to, nil, 0); err != nil {
		t.Fatalf("WritePacketEntities failed: %v", err)
	}
	got, err := delta.ParsePacketEntities(msg.NewReader(b.Bytes()), nil, nil, 0)
	if err != nil {
		t.Fatalf("ParsePacketEntities failed: %v", err)
	}
	if len(got) != 1 || got[0].Number != 2 {
		t.Errorf("parsed %+v, want only entity 2", got)
	}
}

func TestPacketEntitiesUnmentionedAreGone(t *testing.T) {
	// the receiver holds an entity the writer's base did not have
	held := []delta.EntityState{
		{Number: 3, ModelIndex: 1},
		{Number: 4, ModelIndex: 2},
	}
	to := []delta.EntityState{{Number: 4, ModelIndex: 2}}

	b := msg.New(256)
	if err := delta.WritePacketEntities(b, to, to, nil, 0); err != nil {
		t.Fatalf("WritePacketEntities failed: %v", err)
	}
	got, err := delta.ParsePacketEntities(msg.NewReader(b.Bytes()), held, nil, 0)
	if err != nil {
		t.Fatalf("ParsePacketEntities failed: %v", err)
	}
	if !slices.Equal(got, to) {
		t.Errorf("parsed %+v, want %+v", got, to)
	}
}

func TestPacketEntitiesErrors(t *testing.T) {
	unsorted := []delta.EntityState{{Number: 5}, {Number: 2}}
	if err := delta.WritePacketEntities(msg.New(64), nil, unsorted, nil, 0); !errors.Is(err, delta.ErrBadOrder) {
		t.Errorf("unsorted write: err = %v, want ErrBadOrder", err)
	}

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"descending numbers", []byte{0x00, 0x05, 0x00, 0x02, 0x00, 0x00}, delta.ErrBadOrder},
		{"number zero with bits", []byte{0x10, 0x00, 0x01}, delta.ErrBadNumber},
		{"missing sentinel", []byte{0x00, 0x05}, delta.ErrTruncated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := delta.ParsePacketEntities(msg.NewReader(tc.data), nil, nil, 0)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Player state
// ---------------------------------------------------------------------------

func samplePlayer() delta.PlayerState {
	ps := delta.PlayerState{
		PMove: delta.PMove{
			Type:        1,
			Origin:      msg.Vec3{128, -64.5, 24.125},
			Velocity:    msg.Vec3{100, -50.5, 0.125},
			Flags:       4,
			Time:        10,
			Gravity:     800,
			DeltaAngles: msg.Vec3{0, 90, 0},
		},
		ViewAngles: msg.Vec3{-45, 90, 45},
		ViewOffset: msg.Vec3{0, 0, 22},
		KickAngles: msg.Vec3{1.25, -2, 0},
		Gun: [2]delta.GunState{
			{Index: 3, Frame: 7, Spin: 45},
			{Index: 4, Frame: 1},
		},
		Blend:   [4]float32{1, 0, 0, 1},
		FOV:     90,
		RDFlags: 1,
		Reverb:  3,
	}
	ps.Stats[0] = 100
	ps.Stats[5] = -3
	ps.Stats[31] = 7
	return ps
}

func TestPlayerRoundTrip(t *testing.T) {
	ps := samplePlayer()

	b := msg.NewTagged(512, "player")
	eff, _, err := delta.WriteDeltaPlayer(b, nil, &ps, 0)
	if err != nil {
		t.Fatalf("WriteDeltaPlayer failed: %v", err)
	}
	if eff != ps {
		t.Errorf("effective state differs without ignore flags")
	}

	got, _, err := delta.ParseDeltaPlayer(msg.NewReader(b.Bytes()), nil)
	if err != nil {
		t.Fatalf("ParseDeltaPlayer failed: %v", err)
	}
	if got != ps {
		t.Errorf("parsed\n%+v\nwant\n%+v", got, ps)
	}
}

func TestPlayerDeltaSize(t *testing.T) {
	from := samplePlayer()

	testCases := []struct {
		name   string
		change func(ps *delta.PlayerState)
		bits   delta.PlayerBits
		size   int
	}{
		{"unchanged", func(ps *delta.PlayerState) {}, delta.PlayerBits{}, 2},
		{"one stat", func(ps *delta.PlayerState) { ps.Stats[3] = 9 },
			delta.PlayerBits{Flags: delta.PSExtraBits, Extra: delta.PSXStats}, 2 + 1 + 4 + 2},
		{"origin height", func(ps *delta.PlayerState) { ps.PMove.Origin[2] = 40 },
			delta.PlayerBits{Flags: delta.PSExtraBits, Extra: delta.PSXOrigin2}, 2 + 1 + 2},
		{"fov", func(ps *delta.PlayerState) { ps.FOV = 110 },
			delta.PlayerBits{Flags: delta.PSFOV}, 2 + 1},
		{"sub-quantum move", func(ps *delta.PlayerState) { ps.PMove.Origin[0] += 0.01 }, delta.PlayerBits{}, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			to := from
			tc.change(&to)

			b := msg.New(512)
			_, bits, err := delta.WriteDeltaPlayer(b, &from, &to, 0)
			if err != nil {
				t.Fatalf("WriteDeltaPlayer failed: %v", err)
			}
			if bits != tc.bits {
				t.Errorf("bits = %+v, want %+v", bits, tc.bits)
			}
			if b.Len() != tc.size {
				t.Errorf("encoded %d bytes, want %d", b.Len(), tc.size)
			}
		})
	}
}

func TestPlayerIgnoreFlags(t *testing.T) {
	from := samplePlayer()

	testCases := []struct {
		name    string
		flags   delta.PlayerFlags
		change  func(ps *delta.PlayerState)
		blocked delta.PlayerBits
	}{
		{"gun index", delta.IgnoreGunIndex,
			func(ps *delta.PlayerState) { ps.Gun[0].Index = 9; ps.Gun[1].Index = 9 },
			delta.PlayerBits{Flags: delta.PSWeaponIndex, Extra: delta.PSXGun2}},
		{"gun frames", delta.IgnoreGunFrames,
			func(ps *delta.PlayerState) { ps.Gun[0].Frame = 2; ps.Gun[0].Spin = 90 },
			delta.PlayerBits{Flags: delta.PSWeaponFrame, Extra: delta.PSXGunSpin}},
		{"blend", delta.IgnoreBlend,
			func(ps *delta.PlayerState) { ps.Blend = [4]float32{0, 1, 0, 1} },
			delta.PlayerBits{Flags: delta.PSBlend}},
		{"view angles", delta.IgnoreViewAngles,
			func(ps *delta.PlayerState) { ps.ViewAngles = msg.Vec3{0, 45, 0} },
			delta.PlayerBits{Flags: delta.PSViewAngles, Extra: delta.PSXViewAngle2}},
		{"delta angles", delta.IgnoreDeltaAngles,
			func(ps *delta.PlayerState) { ps.PMove.DeltaAngles = msg.Vec3{45, 0, 0} },
			delta.PlayerBits{Flags: delta.PSDeltaAngles}},
		{"prediction", delta.IgnorePrediction,
			func(ps *delta.PlayerState) {
				ps.PMove.Velocity = msg.Vec3{1, 2, 3}
				ps.PMove.Time = 99
				ps.PMove.Flags = 1
				ps.PMove.Gravity = 400
			},
			delta.PlayerBits{Flags: delta.PSVelocity | delta.PSTime | delta.PSFlags | delta.PSGravity, Extra: delta.PSXVelocity2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			to := from
			tc.change(&to)
			to.FOV = 120
			orig := to

			b := msg.New(512)
			eff, bits, err := delta.WriteDeltaPlayer(b, &from, &to, tc.flags)
			if err != nil {
				t.Fatalf("WriteDeltaPlayer failed: %v", err)
			}

			if bits.Flags&tc.blocked.Flags != 0 || bits.Extra&tc.blocked.Extra != 0 {
				t.Errorf("ignored group sent: bits = %+v", bits)
			}
			if bits.Flags&delta.PSFOV == 0 {
				t.Error("unrelated change not sent")
			}
			if to != orig {
				t.Error("WriteDeltaPlayer modified its input")
			}

			want := from
			want.FOV = 120
			if eff != want {
				t.Errorf("effective state\n%+v\nwant\n%+v", eff, want)
			}

			got, _, err := delta.ParseDeltaPlayer(msg.NewReader(b.Bytes()), &from)
			if err != nil {
				t.Fatalf("ParseDeltaPlayer failed: %v", err)
			}
			if got != eff {
				t.Errorf("parsed state differs from the effective state")
			}
		})
	}
}

func TestPlayerTruncated(t *testing.T) {
	ps := samplePlayer()
	b := msg.New(512)
	delta.WriteDeltaPlayer(b, nil, &ps, 0)

	_, _, err := delta.ParseDeltaPlayer(msg.NewReader(b.Bytes()[:b.Len()-1]), nil)
	if !errors.Is(err, delta.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

// ---------------------------------------------------------------------------
// User commands
// ---------------------------------------------------------------------------

func TestUserCmdSequence(t *testing.T) {
	cmds := []delta.UserCmd{
		{Angles: [3]int16{100, -200, 0}, Forward: 400, Msec: 16},
		{Angles: [3]int16{110, -190, 0}, Forward: 400, Msec: 16},
		{Angles: [3]int16{110, -190, 0}, Forward: 400, Msec: 16},
		{Angles: [3]int16{-30000, 20000, 5}, Side: -511, Up: 200, Buttons: delta.ButtonAttack | delta.ButtonAny, Msec: 33},
		{Angles: [3]int16{-29900, 20000, 5}, Side: -511, Buttons: delta.ButtonUse, Msec: 33},
	}

	b := msg.New(256)
	var from *delta.UserCmd
	for i := range cmds {
		delta.WriteDeltaUserCmd(b, from, &cmds[i])
		from = &cmds[i]
	}

	r := msg.NewReader(b.Bytes())
	from = nil
	for i := range cmds {
		got := delta.ReadDeltaUserCmd(r, from)
		if got != cmds[i] {
			t.Errorf("cmd %d = %+v, want %+v", i, got, cmds[i])
		}
		from = &cmds[i]
	}
}

func TestUserCmdEncoding(t *testing.T) {
	from := delta.UserCmd{Forward: 100, Msec: 16}

	testCases := []struct {
		name string
		cmd  delta.UserCmd
		want delta.UserCmd
		bits int
	}{
		{"unchanged", from, from, 0},
		{"clamped move", delta.UserCmd{Forward: 2000, Side: -2000, Msec: 16},
			delta.UserCmd{Forward: 511, Side: -512, Msec: 16}, delta.CmdForward | delta.CmdSide},
		{"unknown buttons dropped", delta.UserCmd{Forward: 100, Msec: 16, Buttons: 0x40 | delta.ButtonUse},
			delta.UserCmd{Forward: 100, Msec: 16, Buttons: delta.ButtonUse}, delta.CmdButtons},
		{"only unknown buttons", delta.UserCmd{Forward: 100, Msec: 16, Buttons: 0x10}, from, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := msg.New(64)
			bits := delta.WriteDeltaUserCmd(b, &from, &tc.cmd)
			if bits != tc.bits {
				t.Errorf("bits = %#x, want %#x", bits, tc.bits)
			}
			if bits == 0 && b.BitPos() != 1 {
				t.Errorf("unchanged command took %d bits, want 1", b.BitPos())
			}

			got := delta.ReadDeltaUserCmd(msg.NewReader(b.Bytes()), &from)
			if got != tc.want {
				t.Errorf("read %+v, want %+v", got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Gamestate and ambients
// ---------------------------------------------------------------------------

func TestGamestateRoundTrip(t *testing.T) {
	gs := delta.NewGamestate()
	gs.ConfigStrings[0] = "demo"
	gs.ConfigStrings[5] = "models/box.md2"
	gs.ConfigStrings[delta.MaxConfigStrings-1] = "last"
	gs.Baselines[3] = delta.EntityState{Number: 3, ModelIndex: 2, Origin: msg.Vec3{10.5, 0, -8}}
	gs.Baselines[700] = delta.EntityState{Number: 700}
	gs.AmbientStateID = 4
	gs.Ambients = []delta.EntityState{
		{Number: 1024, ModelIndex: 1, Origin: msg.Vec3{100, 200, -16}, Angles: msg.Vec3{0, 90, 0}},
		{Number: 1500, ModelIndex: 2, Skin: 3},
	}

	b := msg.NewTagged(8192, "gamestate")
	if err := delta.WriteGamestate(b, gs); err != nil {
		t.Fatalf("WriteGamestate failed: %v", err)
	}

	got, err := delta.ParseGamestate(msg.NewReader(b.Bytes()))
	if err != nil {
		t.Fatalf("ParseGamestate failed: %v", err)
	}
	if got.ConfigStrings != gs.ConfigStrings {
		t.Error("configstrings differ")
	}
	if len(got.Baselines) != len(gs.Baselines) {
		t.Fatalf("got %d baselines, want %d", len(got.Baselines), len(gs.Baselines))
	}
	for n, s := range gs.Baselines {
		if got.Baselines[n] != s {
			t.Errorf("baseline %d = %+v, want %+v", n, got.Baselines[n], s)
		}
	}
	if got.AmbientStateID != gs.AmbientStateID {
		t.Errorf("AmbientStateID = %d, want %d", got.AmbientStateID, gs.AmbientStateID)
	}
	if !slices.Equal(got.Ambients, gs.Ambients) {
		t.Errorf("ambients = %+v, want %+v", got.Ambients, gs.Ambients)
	}
}

func TestGamestateRejectsNonAmbient(t *testing.T) {
	gs := delta.NewGamestate()
	gs.Ambients = []delta.EntityState{{Number: 12}}
	if err := delta.WriteGamestate(msg.New(1024), gs); !errors.Is(err, delta.ErrBadNumber) {
		t.Errorf("err = %v, want ErrBadNumber", err)
	}
}

func TestGamestateBadIndex(t *testing.T) {
	data := []byte{0x01, 0x10, 'x', 0x00} // index 4097
	if _, err := delta.ParseGamestate(msg.NewReader(data)); !errors.Is(err, delta.ErrConfigIndex) {
		t.Errorf("err = %v, want ErrConfigIndex", err)
	}
}

func TestAmbientUpdates(t *testing.T) {
	v1 := []delta.EntityState{
		{Number: 1030, ModelIndex: 1},
		{Number: 1040, ModelIndex: 2, Origin: msg.Vec3{8, 8, 0}},
		{Number: 1050, ModelIndex: 3},
	}
	v2 := []delta.EntityState{
		{Number: 1030, ModelIndex: 1},
		{Number: 1040, ModelIndex: 2, Origin: msg.Vec3{16, 8, 0}},
		{Number: 1060, ModelIndex: 4},
	}

	t.Run("full", func(t *testing.T) {
		b := msg.New(512)
		if err := delta.WriteAmbients(b, 7, nil, v1, true); err != nil {
			t.Fatalf("WriteAmbients failed: %v", err)
		}
		// a full update ignores whatever the peer held
		stale := []delta.EntityState{{Number: 1025, ModelIndex: 9}}
		up, err := delta.ParseAmbients(msg.NewReader(b.Bytes()), stale)
		if err != nil {
			t.Fatalf("ParseAmbients failed: %v", err)
		}
		if up.ID != 7 || !up.Full {
			t.Errorf("update id %d full %v, want 7 true", up.ID, up.Full)
		}
		if !slices.Equal(up.Ambients, v1) {
			t.Errorf("ambients = %+v, want %+v", up.Ambients, v1)
		}
	})

	t.Run("partial", func(t *testing.T) {
		b := msg.New(512)
		if err := delta.WriteAmbients(b, 8, v1, v2, false); err != nil {
			t.Fatalf("WriteAmbients failed: %v", err)
		}
		up, err := delta.ParseAmbients(msg.NewReader(b.Bytes()), v1)
		if err != nil {
			t.Fatalf("ParseAmbients failed: %v", err)
		}
		if up.ID != 8 || up.Full {
			t.Errorf("update id %d full %v, want 8 false", up.ID, up.Full)
		}
		if !slices.Equal(up.Ambients, v2) {
			t.Errorf("ambients = %+v, want %+v", up.Ambients, v2)
		}
	})

	t.Run("unchanged", func(t *testing.T) {
		b := msg.New(512)
		if err := delta.WriteAmbients(b, 9, v2, v2, false); err != nil {
			t.Fatalf("WriteAmbients failed: %v", err)
		}
		// id, flags and the sentinel
		if b.Len() != 4 {
			t.Errorf("encoded %d bytes, want 4", b.Len())
		}
		up, err := delta.ParseAmbients(msg.NewReader(b.Bytes()), v2)
		if err != nil {
			t.Fatalf("ParseAmbients failed: %v", err)
		}
		if !slices.Equal(up.Ambients, v2) {
			t.Errorf("ambients = %+v, want %+v", up.Ambients, v2)
		}
	})

	t.Run("outside pool", func(t *testing.T) {
		bad := []delta.EntityState{{Number: 40}}
		if err := delta.WriteAmbients(msg.New(64), 1, nil, bad, true); !errors.Is(err, delta.ErrBadNumber) {
			t.Errorf("err = %v, want ErrBadNumber", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Shots
// ---------------------------------------------------------------------------

func TestShotsRoundTrip(t *testing.T) {
	dir := func(i int) msg.Vec3 {
		d, _ := msg.ByteToDir(i)
		return d
	}
	shots := []delta.Shot{
		{Entity: 3, Origin: msg.Vec3{10, -20.5, 22}, Dir: dir(0)},
		{Entity: 3, Origin: msg.Vec3{10.125, -20.5, 22}, Dir: dir(17)},
		{Entity: 1, Origin: msg.Vec3{-300, 0, 0}, Dir: dir(161)},
		{Entity: 900, Origin: msg.Vec3{4095, 4095, -4096}, Dir: dir(80)},
	}

	b := msg.New(256)
	if err := delta.WriteShots(b, shots); err != nil {
		t.Fatalf("WriteShots: %v", err)
	}
	b.WriteUint8(0xAB)

	r := msg.NewReader(b.Bytes())
	got, err := delta.ParseShots(r)
	if err != nil {
		t.Fatalf("ParseShots: %v", err)
	}
	if !slices.Equal(got, shots) {
		t.Errorf("shots = %v, want %v", got, shots)
	}
	if v := r.ReadUint8(); v != 0xAB {
		t.Errorf("trailing byte = %#x, want 0xab", v)
	}
}

func TestShotsEmpty(t *testing.T) {
	b := msg.New(8)
	if err := delta.WriteShots(b, nil); err != nil {
		t.Fatalf("WriteShots: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
	got, err := delta.ParseShots(msg.NewReader(b.Bytes()))
	if err != nil || len(got) != 0 {
		t.Errorf("ParseShots = %v, %v", got, err)
	}
}

func TestShotsErrors(t *testing.T) {
	t.Run("write too many", func(t *testing.T) {
		shots := make([]delta.Shot, delta.MaxShots+1)
		for i := range shots {
			shots[i].Entity = 1
		}
		err := delta.WriteShots(msg.New(1024), shots)
		if !errors.Is(err, delta.ErrTooManyShots) {
			t.Errorf("err = %v, want ErrTooManyShots", err)
		}
	})

	t.Run("write bad entity", func(t *testing.T) {
		err := delta.WriteShots(msg.New(64), []delta.Shot{{Entity: 0}})
		if !errors.Is(err, delta.ErrBadNumber) {
			t.Errorf("err = %v, want ErrBadNumber", err)
		}
	})

	testCases := []struct {
		name  string
		build func(b *msg.Buffer)
		want  error
	}{
		{"count too large", func(b *msg.Buffer) { b.WriteUvarint(delta.MaxShots + 1) }, delta.ErrTooManyShots},
		{"entity zero", func(b *msg.Buffer) {
			b.WriteUvarint(1)
			b.WriteVarint(0)
			b.WritePos(msg.Vec3{})
			b.WriteDir(msg.Vec3{})
		}, delta.ErrBadNumber},
		{"entity below zero", func(b *msg.Buffer) {
			b.WriteUvarint(2)
			b.WriteVarint(5)
			b.WritePos(msg.Vec3{})
			b.WriteDir(msg.Vec3{})
			b.WriteVarint(-9)
		}, delta.ErrBadNumber},
		{"empty", func(b *msg.Buffer) {}, delta.ErrTruncated},
		{"cut after count", func(b *msg.Buffer) { b.WriteUvarint(1) }, delta.ErrTruncated},
		{"bad direction", func(b *msg.Buffer) {
			b.WriteUvarint(1)
			b.WriteVarint(1)
			b.WritePos(msg.Vec3{})
			b.WriteUint8(msg.NumVertexNormals)
		}, msg.ErrBadDir},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := msg.New(64)
			tc.build(b)
			_, err := delta.ParseShots(msg.NewReader(b.Bytes()))
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

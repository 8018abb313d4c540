package delta

import (
	"github.com/1ureka/netchan/internal/msg"
)

// Primary player flags, always sent as 16 bits.
const (
	PSType        uint16 = 1 << 0
	PSOrigin      uint16 = 1 << 1 // x and y
	PSVelocity    uint16 = 1 << 2 // x and y
	PSTime        uint16 = 1 << 3
	PSFlags       uint16 = 1 << 4
	PSGravity     uint16 = 1 << 5
	PSDeltaAngles uint16 = 1 << 6
	PSViewOffset  uint16 = 1 << 7
	PSViewAngles  uint16 = 1 << 8 // pitch and yaw
	PSKickAngles  uint16 = 1 << 9
	PSBlend       uint16 = 1 << 10
	PSFOV         uint16 = 1 << 11
	PSWeaponIndex uint16 = 1 << 12 // first gun
	PSWeaponFrame uint16 = 1 << 13 // first gun
	PSRDFlags     uint16 = 1 << 14
	PSExtraBits   uint16 = 1 << 15
)

// Extended player flags, sent as a byte after the primary flags when
// PSExtraBits is set.
const (
	PSXOrigin2    uint8 = 1 << 0
	PSXVelocity2  uint8 = 1 << 1
	PSXViewAngle2 uint8 = 1 << 2
	PSXGunSpin    uint8 = 1 << 3
	PSXGun2       uint8 = 1 << 4 // second gun index and frame
	PSXStats      uint8 = 1 << 5
	PSXReverb     uint8 = 1 << 6
)

// PlayerFlags suppress groups of player fields. An ignored group keeps the
// base value on both sides.
type PlayerFlags uint8

const (
	IgnoreGunIndex PlayerFlags = 1 << iota
	IgnoreGunFrames
	IgnoreBlend
	IgnoreViewAngles
	IgnoreDeltaAngles
	IgnorePrediction // velocity, time, flags and gravity
)

// PlayerBits are the two flag words of a player delta.
type PlayerBits struct {
	Flags uint16
	Extra uint8
}

var nullPlayer PlayerState

func byteEqual(a, b int) bool { return uint8(a) == uint8(b) }

func playerBits(from, to *PlayerState) PlayerBits {
	var pb PlayerBits
	fp, tp := &from.PMove, &to.PMove

	if !byteEqual(tp.Type, fp.Type) {
		pb.Flags |= PSType
	}
	if !msg.CoordEqual(tp.Origin[0], fp.Origin[0]) || !msg.CoordEqual(tp.Origin[1], fp.Origin[1]) {
		pb.Flags |= PSOrigin
	}
	if !msg.CoordEqual(tp.Origin[2], fp.Origin[2]) {
		pb.Extra |= PSXOrigin2
	}
	if !msg.CoordEqual(tp.Velocity[0], fp.Velocity[0]) || !msg.CoordEqual(tp.Velocity[1], fp.Velocity[1]) {
		pb.Flags |= PSVelocity
	}
	if !msg.CoordEqual(tp.Velocity[2], fp.Velocity[2]) {
		pb.Extra |= PSXVelocity2
	}
	if !byteEqual(tp.Time, fp.Time) {
		pb.Flags |= PSTime
	}
	if !byteEqual(tp.Flags, fp.Flags) {
		pb.Flags |= PSFlags
	}
	if int16(tp.Gravity) != int16(fp.Gravity) {
		pb.Flags |= PSGravity
	}
	if !angles16Equal(tp.DeltaAngles, fp.DeltaAngles) {
		pb.Flags |= PSDeltaAngles
	}

	if !msg.OffsetEqual(to.ViewOffset, from.ViewOffset) {
		pb.Flags |= PSViewOffset
	}
	if !msg.Angle16Equal(to.ViewAngles[0], from.ViewAngles[0]) || !msg.Angle16Equal(to.ViewAngles[1], from.ViewAngles[1]) {
		pb.Flags |= PSViewAngles
	}
	if !msg.Angle16Equal(to.ViewAngles[2], from.ViewAngles[2]) {
		pb.Extra |= PSXViewAngle2
	}
	if !msg.OffsetEqual(to.KickAngles, from.KickAngles) {
		pb.Flags |= PSKickAngles
	}
	if !msg.BlendEqual(to.Blend, from.Blend) {
		pb.Flags |= PSBlend
	}
	if !byteEqual(to.FOV, from.FOV) {
		pb.Flags |= PSFOV
	}
	if !byteEqual(to.RDFlags, from.RDFlags) {
		pb.Flags |= PSRDFlags
	}

	if !byteEqual(to.Gun[0].Index, from.Gun[0].Index) {
		pb.Flags |= PSWeaponIndex
	}
	if !byteEqual(to.Gun[0].Frame, from.Gun[0].Frame) {
		pb.Flags |= PSWeaponFrame
	}
	if !msg.Angle16Equal(to.Gun[0].Spin, from.Gun[0].Spin) || !msg.Angle16Equal(to.Gun[1].Spin, from.Gun[1].Spin) {
		pb.Extra |= PSXGunSpin
	}
	if !byteEqual(to.Gun[1].Index, from.Gun[1].Index) || !byteEqual(to.Gun[1].Frame, from.Gun[1].Frame) {
		pb.Extra |= PSXGun2
	}

	if to.Stats != from.Stats {
		pb.Extra |= PSXStats
	}
	if !byteEqual(to.Reverb, from.Reverb) {
		pb.Extra |= PSXReverb
	}

	if pb.Extra != 0 {
		pb.Flags |= PSExtraBits
	}
	return pb
}

func angles16Equal(a, b msg.Vec3) bool {
	return msg.Angle16Equal(a[0], b[0]) && msg.Angle16Equal(a[1], b[1]) && msg.Angle16Equal(a[2], b[2])
}

// applyIgnore returns to with every ignored group replaced by its from value.
func applyIgnore(from, to *PlayerState, flags PlayerFlags) PlayerState {
	eff := *to
	if flags&IgnorePrediction != 0 {
		eff.PMove.Velocity = from.PMove.Velocity
		eff.PMove.Time = from.PMove.Time
		eff.PMove.Flags = from.PMove.Flags
		eff.PMove.Gravity = from.PMove.Gravity
	}
	if flags&IgnoreDeltaAngles != 0 {
		eff.PMove.DeltaAngles = from.PMove.DeltaAngles
	}
	if flags&IgnoreViewAngles != 0 {
		eff.ViewAngles = from.ViewAngles
	}
	if flags&IgnoreBlend != 0 {
		eff.Blend = from.Blend
	}
	if flags&IgnoreGunIndex != 0 {
		eff.Gun[0].Index = from.Gun[0].Index
		eff.Gun[1].Index = from.Gun[1].Index
	}
	if flags&IgnoreGunFrames != 0 {
		for i := range eff.Gun {
			eff.Gun[i].Frame = from.Gun[i].Frame
			eff.Gun[i].Spin = from.Gun[i].Spin
		}
	}
	return eff
}

// WriteDeltaPlayer writes the difference between from and to. A nil from is
// the null state. Groups named in flags are not sent.
//
// It returns the state the peer will hold after parsing, which differs from
// to in the ignored groups; callers store it as the next base. to is not
// modified.
func WriteDeltaPlayer(b *msg.Buffer, from, to *PlayerState, flags PlayerFlags) (PlayerState, PlayerBits, error) {
	if from == nil {
		from = &nullPlayer
	}
	eff := applyIgnore(from, to, flags)
	pb := playerBits(from, &eff)

	b.WriteUint16(int(pb.Flags))
	if pb.Flags&PSExtraBits != 0 {
		b.WriteUint8(int(pb.Extra))
	}

	pm := &eff.PMove
	if pb.Flags&PSType != 0 {
		b.WriteUint8(pm.Type)
	}
	if pb.Flags&PSOrigin != 0 {
		b.WriteCoord(pm.Origin[0])
		b.WriteCoord(pm.Origin[1])
	}
	if pb.Extra&PSXOrigin2 != 0 {
		b.WriteCoord(pm.Origin[2])
	}
	if pb.Flags&PSVelocity != 0 {
		b.WriteCoord(pm.Velocity[0])
		b.WriteCoord(pm.Velocity[1])
	}
	if pb.Extra&PSXVelocity2 != 0 {
		b.WriteCoord(pm.Velocity[2])
	}
	if pb.Flags&PSTime != 0 {
		b.WriteUint8(pm.Time)
	}
	if pb.Flags&PSFlags != 0 {
		b.WriteUint8(pm.Flags)
	}
	if pb.Flags&PSGravity != 0 {
		b.WriteInt16(pm.Gravity)
	}
	if pb.Flags&PSDeltaAngles != 0 {
		for _, a := range pm.DeltaAngles {
			b.WriteAngle16(a)
		}
	}

	if pb.Flags&PSViewOffset != 0 {
		b.WriteOffset(eff.ViewOffset)
	}
	if pb.Flags&PSViewAngles != 0 {
		b.WriteAngle16(eff.ViewAngles[0])
		b.WriteAngle16(eff.ViewAngles[1])
	}
	if pb.Extra&PSXViewAngle2 != 0 {
		b.WriteAngle16(eff.ViewAngles[2])
	}
	if pb.Flags&PSKickAngles != 0 {
		b.WriteOffset(eff.KickAngles)
	}
	if pb.Flags&PSBlend != 0 {
		for _, c := range eff.Blend {
			b.WriteUint8(msg.BlendToByte(c))
		}
	}
	if pb.Flags&PSFOV != 0 {
		b.WriteUint8(eff.FOV)
	}
	if pb.Flags&PSRDFlags != 0 {
		b.WriteUint8(eff.RDFlags)
	}

	if pb.Flags&PSWeaponIndex != 0 {
		b.WriteUint8(eff.Gun[0].Index)
	}
	if pb.Flags&PSWeaponFrame != 0 {
		b.WriteUint8(eff.Gun[0].Frame)
	}
	if pb.Extra&PSXGunSpin != 0 {
		b.WriteAngle16(eff.Gun[0].Spin)
		b.WriteAngle16(eff.Gun[1].Spin)
	}
	if pb.Extra&PSXGun2 != 0 {
		b.WriteUint8(eff.Gun[1].Index)
		b.WriteUint8(eff.Gun[1].Frame)
	}

	if pb.Extra&PSXStats != 0 {
		var statbits uint32
		for i := range eff.Stats {
			if eff.Stats[i] != from.Stats[i] {
				statbits |= 1 << i
			}
		}
		b.WriteUint32(statbits)
		for i := range eff.Stats {
			if statbits&(1<<i) != 0 {
				b.WriteInt16(int(eff.Stats[i]))
			}
		}
	}
	if pb.Extra&PSXReverb != 0 {
		b.WriteUint8(eff.Reverb)
	}

	return eff, pb, bufErr(b, "write player")
}

// ParseDeltaPlayer reads a player delta and applies it to a copy of from.
// A nil from is the null state.
func ParseDeltaPlayer(b *msg.Buffer, from *PlayerState) (PlayerState, PlayerBits, error) {
	if from == nil {
		from = &nullPlayer
	}
	to := *from

	var pb PlayerBits
	pb.Flags = uint16(b.ReadUint16())
	if pb.Flags&PSExtraBits != 0 {
		pb.Extra = uint8(b.ReadUint8())
	}

	pm := &to.PMove
	if pb.Flags&PSType != 0 {
		pm.Type = b.ReadUint8()
	}
	if pb.Flags&PSOrigin != 0 {
		pm.Origin[0] = b.ReadCoord()
		pm.Origin[1] = b.ReadCoord()
	}
	if pb.Extra&PSXOrigin2 != 0 {
		pm.Origin[2] = b.ReadCoord()
	}
	if pb.Flags&PSVelocity != 0 {
		pm.Velocity[0] = b.ReadCoord()
		pm.Velocity[1] = b.ReadCoord()
	}
	if pb.Extra&PSXVelocity2 != 0 {
		pm.Velocity[2] = b.ReadCoord()
	}
	if pb.Flags&PSTime != 0 {
		pm.Time = b.ReadUint8()
	}
	if pb.Flags&PSFlags != 0 {
		pm.Flags = b.ReadUint8()
	}
	if pb.Flags&PSGravity != 0 {
		pm.Gravity = b.ReadInt16()
	}
	if pb.Flags&PSDeltaAngles != 0 {
		for i := range pm.DeltaAngles {
			pm.DeltaAngles[i] = b.ReadAngle16()
		}
	}

	if pb.Flags&PSViewOffset != 0 {
		to.ViewOffset = b.ReadOffset()
	}
	if pb.Flags&PSViewAngles != 0 {
		to.ViewAngles[0] = b.ReadAngle16()
		to.ViewAngles[1] = b.ReadAngle16()
	}
	if pb.Extra&PSXViewAngle2 != 0 {
		to.ViewAngles[2] = b.ReadAngle16()
	}
	if pb.Flags&PSKickAngles != 0 {
		to.KickAngles = b.ReadOffset()
	}
	if pb.Flags&PSBlend != 0 {
		for i := range to.Blend {
			to.Blend[i] = msg.ByteToBlend(b.ReadUint8())
		}
	}
	if pb.Flags&PSFOV != 0 {
		to.FOV = b.ReadUint8()
	}
	if pb.Flags&PSRDFlags != 0 {
		to.RDFlags = b.ReadUint8()
	}

	if pb.Flags&PSWeaponIndex != 0 {
		to.Gun[0].Index = b.ReadUint8()
	}
	if pb.Flags&PSWeaponFrame != 0 {
		to.Gun[0].Frame = b.ReadUint8()
	}
	if pb.Extra&PSXGunSpin != 0 {
		to.Gun[0].Spin = b.ReadAngle16()
		to.Gun[1].Spin = b.ReadAngle16()
	}
	if pb.Extra&PSXGun2 != 0 {
		to.Gun[1].Index = b.ReadUint8()
		to.Gun[1].Frame = b.ReadUint8()
	}

	if pb.Extra&PSXStats != 0 {
		statbits := uint32(b.ReadInt32())
		for i := range to.Stats {
			if statbits&(1<<i) != 0 {
				to.Stats[i] = int16(b.ReadInt16())
			}
		}
	}
	if pb.Extra&PSXReverb != 0 {
		to.Reverb = b.ReadUint8()
	}

	if err := bufErr(b, "parse player"); err != nil {
		return PlayerState{}, pb, err
	}
	return to, pb, nil
}

// Package delta encodes and decodes compact differences between two
// snapshots of entity and player state, and the gamestate message that gives
// a joining peer its first reference point.
//
// Every bit assignment in this package is part of the wire protocol. A
// change to any of them must bump protocol.Version.
package delta

import (
	"errors"
	"fmt"

	"github.com/1ureka/netchan/internal/msg"
)

// Entity number pools.
const (
	MaxEdicts = 4096

	PacketEntityMin  = 1
	PacketEntityMax  = 1023
	AmbientEntityMin = 1024
	AmbientEntityMax = 2047
	PrivateEntityMin = 2048
	PrivateEntityMax = MaxEdicts - 1
)

// IsPacketEntity reports whether n is sent as a per-peer packet entity.
func IsPacketEntity(n int) bool { return n >= PacketEntityMin && n <= PacketEntityMax }

// IsAmbientEntity reports whether n is resynced to every peer as an ambient.
func IsAmbientEntity(n int) bool { return n >= AmbientEntityMin && n <= AmbientEntityMax }

// IsPrivateEntity reports whether n is server-side only and never sent.
func IsPrivateEntity(n int) bool { return n >= PrivateEntityMin && n <= PrivateEntityMax }

// Render flags the delta encoder looks at.
const (
	RFFrameLerp = 64  // OldOrigin is the interpolation start; always sent
	RFBeam      = 128 // OldOrigin is the beam end; sent when it moves
)

var (
	ErrBadNumber   = errors.New("delta: bad entity number")
	ErrNilEntity   = errors.New("delta: removal of nil entity")
	ErrBadOrder    = errors.New("delta: entities out of order")
	ErrTruncated   = errors.New("delta: message ended inside a delta")
	ErrConfigIndex = errors.New("delta: configstring index out of range")
)

// EntityState is one entity as the peer sees it.
type EntityState struct {
	Number    int
	Origin    msg.Vec3
	Angles    msg.Vec3
	OldOrigin msg.Vec3

	ModelIndex  int
	ModelIndex2 int
	ModelIndex3 int
	ModelIndex4 int

	Frame    int
	Skin     uint32
	Effects  uint32
	RenderFX uint32

	Solid      uint32 // PackBBox result, or 0 for non-solid
	Sound      int
	SoundPitch int
	Event      int // one-shot, cleared on every parse
}

// Baselines maps entity numbers to the state new entities are deltaed from.
type Baselines map[int]EntityState

// Get returns the baseline for n, or nil when there is none.
func (bl Baselines) Get(n int) *EntityState {
	if s, ok := bl[n]; ok {
		return &s
	}
	return nil
}

// MaxStats is the length of the player stat array.
const MaxStats = 32

// PMove is the part of the player state the client predicts.
type PMove struct {
	Type        int
	Origin      msg.Vec3
	Velocity    msg.Vec3
	Flags       int
	Time        int
	Gravity     int
	DeltaAngles msg.Vec3
}

// GunState is one view weapon.
type GunState struct {
	Index int
	Frame int
	Spin  float32
}

// PlayerState is the authoritative state of one player.
type PlayerState struct {
	PMove PMove

	ViewAngles msg.Vec3
	ViewOffset msg.Vec3
	KickAngles msg.Vec3

	Gun [2]GunState

	Blend   [4]float32
	FOV     int
	RDFlags int
	Stats   [MaxStats]int16
	Reverb  int
}

// UserCmd is one client movement command.
type UserCmd struct {
	Angles  [3]int16
	Forward int16
	Side    int16
	Up      int16
	Buttons uint8
	Msec    uint8
}

// Button bits that survive the three bit wire encoding.
const (
	ButtonAttack = 1
	ButtonUse    = 2
	ButtonAny    = 128
)

func bufErr(b *msg.Buffer, what string) error {
	if err := b.Err(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if b.Underflowed() {
		return fmt.Errorf("%s: %w", what, ErrTruncated)
	}
	return nil
}

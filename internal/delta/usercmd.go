package delta

import "github.com/1ureka/netchan/internal/msg"

// User command bits.
const (
	CmdAngle1  = 1 << 0
	CmdAngle2  = 1 << 1
	CmdAngle3  = 1 << 2
	CmdForward = 1 << 3
	CmdSide    = 1 << 4
	CmdUp      = 1 << 5
	CmdButtons = 1 << 6
	CmdMsec    = 1 << 7
)

// moveBits is the signed width of forward, side and up moves.
const moveBits = 10

var nullUserCmd UserCmd

func clampMove(v int16) int {
	return min(max(int(v), -(1<<(moveBits-1))), 1<<(moveBits-1)-1)
}

// WriteDeltaUserCmd bit-packs cmd as a change from from, which may be nil.
// Moves are clamped to ten bits and only the buttons named by ButtonAttack,
// ButtonUse and ButtonAny survive. It returns the bits that were sent.
func WriteDeltaUserCmd(b *msg.Buffer, from, cmd *UserCmd) int {
	if from == nil {
		from = &nullUserCmd
	}

	bits := 0
	if cmd.Angles[0] != from.Angles[0] {
		bits |= CmdAngle1
	}
	if cmd.Angles[1] != from.Angles[1] {
		bits |= CmdAngle2
	}
	if cmd.Angles[2] != from.Angles[2] {
		bits |= CmdAngle3
	}
	if clampMove(cmd.Forward) != clampMove(from.Forward) {
		bits |= CmdForward
	}
	if clampMove(cmd.Side) != clampMove(from.Side) {
		bits |= CmdSide
	}
	if clampMove(cmd.Up) != clampMove(from.Up) {
		bits |= CmdUp
	}
	if packButtons(cmd.Buttons) != packButtons(from.Buttons) {
		bits |= CmdButtons
	}
	if cmd.Msec != from.Msec {
		bits |= CmdMsec
	}

	if bits == 0 {
		b.WriteBits(0, 1)
		return 0
	}

	b.WriteBits(1, 1)
	b.WriteBits(bits, 8)

	for i, bit := range [2]int{CmdAngle1, CmdAngle2} {
		if bits&bit == 0 {
			continue
		}
		if d := int(cmd.Angles[i]) - int(from.Angles[i]); d >= -128 && d <= 127 {
			b.WriteBits(1, 1)
			b.WriteBits(d, -8)
		} else {
			b.WriteBits(0, 1)
			b.WriteBits(int(cmd.Angles[i]), -16)
		}
	}
	if bits&CmdAngle3 != 0 {
		b.WriteBits(int(cmd.Angles[2]), -16)
	}

	if bits&CmdForward != 0 {
		b.WriteBits(clampMove(cmd.Forward), -moveBits)
	}
	if bits&CmdSide != 0 {
		b.WriteBits(clampMove(cmd.Side), -moveBits)
	}
	if bits&CmdUp != 0 {
		b.WriteBits(clampMove(cmd.Up), -moveBits)
	}

	if bits&CmdButtons != 0 {
		b.WriteBits(packButtons(cmd.Buttons), 3)
	}
	if bits&CmdMsec != 0 {
		b.WriteBits(int(cmd.Msec), 8)
	}
	return bits
}

// ReadDeltaUserCmd reads a command written by WriteDeltaUserCmd against the
// same from.
func ReadDeltaUserCmd(b *msg.Buffer, from *UserCmd) UserCmd {
	if from == nil {
		from = &nullUserCmd
	}
	to := *from

	if b.ReadBits(1) != 1 {
		return to
	}
	bits := b.ReadBits(8)

	for i, bit := range [2]int{CmdAngle1, CmdAngle2} {
		if bits&bit == 0 {
			continue
		}
		if b.ReadBits(1) == 1 {
			to.Angles[i] += int16(b.ReadBits(-8))
		} else {
			to.Angles[i] = int16(b.ReadBits(-16))
		}
	}
	if bits&CmdAngle3 != 0 {
		to.Angles[2] = int16(b.ReadBits(-16))
	}

	if bits&CmdForward != 0 {
		to.Forward = int16(b.ReadBits(-moveBits))
	}
	if bits&CmdSide != 0 {
		to.Side = int16(b.ReadBits(-moveBits))
	}
	if bits&CmdUp != 0 {
		to.Up = int16(b.ReadBits(-moveBits))
	}

	if bits&CmdButtons != 0 {
		to.Buttons = unpackButtons(b.ReadBits(3))
	}
	if bits&CmdMsec != 0 {
		to.Msec = uint8(b.ReadBits(8))
	}
	return to
}

func packButtons(v uint8) int   { return int(v&3 | v>>5&4) }
func unpackButtons(v int) uint8 { return uint8(v&3 | (v&4)<<5) }

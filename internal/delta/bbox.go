package delta

import "github.com/1ureka/netchan/internal/msg"

// PackedBSP marks a brush model. Its bounds come from the model, not from
// the packed value.
const PackedBSP = 0xFFFFFF

// PackBBox packs a bounding box that is symmetric around the origin on x
// and y into 24 bits: half width, depth below the origin and height above
// it, in whole units, each clamped to 1..255.
func PackBBox(mins, maxs msg.Vec3) uint32 {
	x := clampUnit(maxs[0])
	zd := clampUnit(-mins[2])
	zu := clampUnit(maxs[2] + 32)
	return x | zd<<8 | zu<<16
}

// UnpackBBox is the inverse of PackBBox.
func UnpackBBox(v uint32) (mins, maxs msg.Vec3) {
	x := float32(v & 255)
	zd := float32(v >> 8 & 255)
	zu := float32(v>>16&255) - 32

	mins = msg.Vec3{-x, -x, -zd}
	maxs = msg.Vec3{x, x, zu}
	return mins, maxs
}

func clampUnit(f float32) uint32 {
	switch {
	case f < 1:
		return 1
	case f > 255:
		return 255
	}
	return uint32(f)
}

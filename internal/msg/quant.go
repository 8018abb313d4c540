package msg

// Vec3 is a world-space vector.
type Vec3 [3]float32

// ---------------------------------------------------------------------------
// Quantization
//
// Coordinates are 13.3 fixed point in an int16. Angles are fractions of a
// full turn in 8 or 16 bits. Offsets (view offset, kick angles) are int8 in
// quarter units, blend components are bytes.
// ---------------------------------------------------------------------------

func CoordToShort(f float32) int { return int(int16(int32(f * 8))) }
func ShortToCoord(s int) float32 { return float32(s) * (1.0 / 8) }

func AngleToByte(f float32) int  { return int(f*256/360) & 255 }
func ByteToAngle(b int) float32  { return float32(b) * (360.0 / 256) }
func AngleToShort(f float32) int { return int(f*65536/360) & 65535 }
func ShortToAngle(s int) float32 { return float32(int16(s)) * (360.0 / 65536) }

func OffsetToChar(f float32) int { return int(clamp(f, -32, 127.0/4) * 4) }
func CharToOffset(c int) float32 { return float32(c) * 0.25 }
func BlendToByte(f float32) int  { return int(clamp(f, 0, 1) * 255) }
func ByteToBlend(b int) float32  { return float32(b) / 255 }

func clamp(f, lo, hi float32) float32 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// CoordEqual reports whether a and b quantize to the same coordinate.
func CoordEqual(a, b float32) bool { return CoordToShort(a) == CoordToShort(b) }

func PosEqual(a, b Vec3) bool {
	return CoordEqual(a[0], b[0]) && CoordEqual(a[1], b[1]) && CoordEqual(a[2], b[2])
}

func Angle16Equal(a, b float32) bool { return AngleToShort(a) == AngleToShort(b) }

func OffsetEqual(a, b Vec3) bool {
	return OffsetToChar(a[0]) == OffsetToChar(b[0]) &&
		OffsetToChar(a[1]) == OffsetToChar(b[1]) &&
		OffsetToChar(a[2]) == OffsetToChar(b[2])
}

func BlendEqual(a, b [4]float32) bool {
	for i := range a {
		if BlendToByte(a[i]) != BlendToByte(b[i]) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Buffer helpers
// ---------------------------------------------------------------------------

func (b *Buffer) WriteCoord(f float32) { b.WriteInt16(CoordToShort(f)) }
func (b *Buffer) ReadCoord() float32   { return ShortToCoord(b.ReadInt16()) }

func (b *Buffer) WritePos(v Vec3) {
	b.WriteCoord(v[0])
	b.WriteCoord(v[1])
	b.WriteCoord(v[2])
}

func (b *Buffer) ReadPos() Vec3 {
	return Vec3{b.ReadCoord(), b.ReadCoord(), b.ReadCoord()}
}

func (b *Buffer) WriteAngle(f float32)   { b.WriteUint8(AngleToByte(f)) }
func (b *Buffer) ReadAngle() float32     { return ByteToAngle(b.ReadInt8()) }
func (b *Buffer) WriteAngle16(f float32) { b.WriteInt16(AngleToShort(f)) }
func (b *Buffer) ReadAngle16() float32   { return ShortToAngle(b.ReadInt16()) }

func (b *Buffer) WriteOffset(v Vec3) {
	b.WriteInt8(OffsetToChar(v[0]))
	b.WriteInt8(OffsetToChar(v[1]))
	b.WriteInt8(OffsetToChar(v[2]))
}

func (b *Buffer) ReadOffset() Vec3 {
	return Vec3{
		CharToOffset(b.ReadInt8()),
		CharToOffset(b.ReadInt8()),
		CharToOffset(b.ReadInt8()),
	}
}

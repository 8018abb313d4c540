package msg

import "math"

// NumVertexNormals is the size of the direction table.
const NumVertexNormals = 162

// byteDirs is a twice-subdivided icosahedron projected onto the unit sphere.
// Its order is part of the wire format.
var byteDirs = buildDirs()

func buildDirs() [NumVertexNormals]Vec3 {
	t := (1 + math.Sqrt(5)) / 2

	verts := [][3]float64{
		{-1, t, 0}, {1, t, 0}, {-1, -t, 0}, {1, -t, 0},
		{0, -1, t}, {0, 1, t}, {0, -1, -t}, {0, 1, -t},
		{t, 0, -1}, {t, 0, 1}, {-t, 0, -1}, {-t, 0, 1},
	}
	faces := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for i := range verts {
		verts[i] = normalize(verts[i])
	}

	for level := 0; level < 2; level++ {
		mid := make(map[[2]int]int)
		midpoint := func(a, b int) int {
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if i, ok := mid[key]; ok {
				return i
			}
			va, vb := verts[a], verts[b]
			verts = append(verts, normalize([3]float64{
				(va[0] + vb[0]) / 2,
				(va[1] + vb[1]) / 2,
				(va[2] + vb[2]) / 2,
			}))
			mid[key] = len(verts) - 1
			return len(verts) - 1
		}

		next := make([][3]int, 0, len(faces)*4)
		for _, f := range faces {
			a := midpoint(f[0], f[1])
			b := midpoint(f[1], f[2])
			c := midpoint(f[2], f[0])
			next = append(next,
				[3]int{f[0], a, c},
				[3]int{f[1], b, a},
				[3]int{f[2], c, b},
				[3]int{a, b, c},
			)
		}
		faces = next
	}

	var dirs [NumVertexNormals]Vec3
	for i := range dirs {
		v := verts[i]
		dirs[i] = Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	return dirs
}

func normalize(v [3]float64) [3]float64 {
	l := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	return [3]float64{v[0] / l, v[1] / l, v[2] / l}
}

// DirToByte returns the index of the table direction closest to v.
// The zero vector maps to 0.
func DirToByte(v Vec3) int {
	if v == (Vec3{}) {
		return 0
	}

	best := 0
	bestd := float32(-2)
	for i, d := range byteDirs {
		dot := v[0]*d[0] + v[1]*d[1] + v[2]*d[2]
		if dot > bestd {
			bestd = dot
			best = i
		}
	}
	return best
}

// ByteToDir returns the table direction at index i.
func ByteToDir(i int) (Vec3, bool) {
	if i < 0 || i >= NumVertexNormals {
		return Vec3{}, false
	}
	return byteDirs[i], true
}

func (b *Buffer) WriteDir(v Vec3) { b.WriteUint8(DirToByte(v)) }

// ReadDir records ErrBadDir for an index outside the table.
func (b *Buffer) ReadDir() Vec3 {
	i := b.ReadUint8()
	d, ok := ByteToDir(i)
	if !ok {
		b.fail("ReadDir", ErrBadDir)
	}
	return d
}

package voxel

// Gray returns the reflected binary Gray code of i.
func Gray(i int) int { return i ^ (i >> 1) }

// InverseGray returns the level index whose Gray code is g.
func InverseGray(g int) int {
	i := 0
	for ; g != 0; g >>= 1 {
		i ^= g
	}
	return i
}

// GrayTable lists the codes of levels 0 .. 2^bits-1.
func GrayTable(bits int) []int {
	t := make([]int, 1<<bits)
	for i := range t {
		t[i] = Gray(i)
	}
	return t
}

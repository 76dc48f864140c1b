package filehelper

// Fill sets n elements of a starting at offset to c, stopping at the end
// of a.
func Fill[T any](a []T, c T, n int, offset int) {
	count := n
	if len(a)-offset < n {
		count = len(a) - offset
	}
	for i := offset; i < offset+count; i++ {
		a[i] = c
	}
}

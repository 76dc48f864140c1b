package ldpc

// Unpack expands bytes into bits, most significant bit first.
func Unpack(data []byte) []uint8 {
	bits := make([]uint8, len(data)*8)
	for i, b := range data {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (b >> (7 - j)) & 1
		}
	}
	return bits
}

// Pack is the inverse of Unpack. A trailing partial byte is zero filled.
func Pack(bits []uint8) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		out[i/8] |= (b & 1) << (7 - i%8)
	}
	return out
}

package tdf

// appendVarint writes an integer: the first byte holds six bits of magnitude
// plus the sign (0x40) and continuation (0x80) flags, each later byte holds
// seven bits plus continuation.
func appendVarint(dst []byte, v Integer) []byte {
	mag := v.Magnitude
	first := byte(mag & 0x3F)
	if v.Negative && mag != 0 {
		first |= 0x40
	}
	mag >>= 6
	if mag != 0 {
		first |= 0x80
	}
	dst = append(dst, first)

	for mag != 0 {
		b := byte(mag & 0x7F)
		mag >>= 7
		if mag != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

func appendUvarint(dst []byte, v uint64) []byte {
	return appendVarint(dst, Integer{Magnitude: v})
}

// varintLen returns the encoded size of v.
func varintLen(v uint64) int {
	n := 1
	v >>= 6
	for v != 0 {
		n++
		v >>= 7
	}
	return n
}

package tdf

import "fmt"

// LabelSize is the wire size of a packed struct label.
const LabelSize = 3

// ValidLabel reports whether s can be packed: 1 to 4 characters in the
// range '@' (0x40) to '_' (0x5F), which covers A-Z.
func ValidLabel(s string) bool {
	if len(s) == 0 || len(s) > 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x40 || s[i] > 0x5F {
			return false
		}
	}
	return true
}

// PackLabel compresses a label into three bytes, six bits per character.
func PackLabel(s string) ([LabelSize]byte, error) {
	var out [LabelSize]byte
	if !ValidLabel(s) {
		return out, fmt.Errorf("%w: label %q", ErrInvalidValue, s)
	}

	var c [4]byte
	copy(c[:], s)

	out[0] = (c[0]&0x40)<<1 | (c[0]&0x10)<<2 | (c[0]&0x0F)<<2 | (c[1]&0x40)>>5 | (c[1]&0x10)>>4
	out[1] = (c[1]&0x0F)<<4 | (c[2]&0x40)>>3 | (c[2]&0x10)>>2 | (c[2]&0x0C)>>2
	out[2] = (c[2]&0x03)<<6 | (c[3]&0x40)>>1 | c[3]&0x1F
	return out, nil
}

// UnpackLabel expands three packed bytes into a label. It rejects characters
// outside the label alphabet and gaps such as "A\x00B".
func UnpackLabel(b [LabelSize]byte) (string, error) {
	var c [4]byte
	c[0] = (b[0]&0x80)>>1 | (b[0]&0x40)>>2 | (b[0]&0x30)>>2 | (b[0]&0x0C)>>2
	c[1] = (b[0]&0x02)<<5 | (b[0]&0x01)<<4 | (b[1]&0xF0)>>4
	c[2] = (b[1]&0x08)<<3 | (b[1]&0x04)<<2 | (b[1]&0x03)<<2 | (b[2]&0xC0)>>6
	c[3] = (b[2]&0x20)<<1 | b[2]&0x1F

	n := 0
	for i, ch := range c {
		if ch == 0 {
			for _, rest := range c[i+1:] {
				if rest != 0 {
					return "", fmt.Errorf("gap in label bytes % x", b)
				}
			}
			break
		}
		if ch < 0x40 || ch > 0x5F {
			return "", fmt.Errorf("label character 0x%02x out of range", ch)
		}
		n++
	}
	if n == 0 {
		return "", fmt.Errorf("empty label")
	}
	return string(c[:n]), nil
}

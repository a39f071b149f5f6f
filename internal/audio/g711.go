package audio

var (
	ulawTable [256]int16
	alawTable [256]int16
)

func init() {
	for i := range 256 {
		ulawTable[i] = expandUlaw(byte(i))
		alawTable[i] = expandAlaw(byte(i))
	}
}

func expandUlaw(b byte) int16 {
	b = ^b
	sign := int16(1)
	if b&0x80 != 0 {
		sign = -1
		b &= 0x7F
	}
	exponent := int16((b >> 4) & 0x07)
	mantissa := int16(b & 0x0F)
	sample := (mantissa<<3 + 0x84) << exponent
	return sign * (sample - 0x84)
}

func expandAlaw(b byte) int16 {
	b ^= 0x55
	sign := int16(1)
	if b&0x80 == 0 {
		sign = -1
	}
	b &= 0x7F
	exponent := int16((b >> 4) & 0x07)
	mantissa := int16(b & 0x0F)
	if exponent == 0 {
		return sign * (mantissa<<4 + 8)
	}
	return sign * ((mantissa<<4 + 0x108) << (exponent - 1))
}

func decodeG711Ulaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = ulawTable[b]
	}
	return samples
}

func decodeG711Alaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = alawTable[b]
	}
	return samples
}

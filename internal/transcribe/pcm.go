package transcribe

// EncodePCM16 quantizes mono float32 samples to 16-bit signed little-endian
// PCM. Samples are clamped to [-1, 1] and scaled asymmetrically: 0x8000
// for negative values, 0x7FFF for positive, the standard PCM16 convention.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}

		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}

		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

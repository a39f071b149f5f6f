package audio

import "math"

// Resample converts int16 PCM samples from srcRate to dstRate using linear
// interpolation with a windowed-sinc anti-aliasing filter. Returns the input
// unchanged if the rates already match.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate {
		return samples
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}

	cutoff := float64(min(srcRate, dstRate)) / 2.0

	// Downsampling: filter before interpolation so frequencies above the new
	// Nyquist don't alias.
	if srcRate > dstRate {
		in = lowPass(in, cutoff, float64(srcRate), 31)
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float64, outLen)

	for i := range outLen {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := srcIdx - float64(idx)
		out[i] = interpolate(in, idx, frac)
	}

	// Upsampling: filter after interpolation to remove imaging artifacts.
	if dstRate > srcRate {
		out = lowPass(out, cutoff, float64(dstRate), 31)
	}

	result := make([]int16, len(out))
	for i, v := range out {
		clamped := max(math.MinInt16, min(math.MaxInt16, v))
		result[i] = int16(clamped)
	}
	return result
}

// lowPass applies a windowed-sinc FIR low-pass filter via convolution. Only
// the kernel taps overlapping the valid input range contribute.
func lowPass(samples []float64, cutoff, sampleRate float64, taps int) []float64 {
	kernel := sincKernel(cutoff, sampleRate, taps)
	half := taps / 2
	out := make([]float64, len(samples))

	for i := range samples {
		jStart := max(0, half-i)
		jEnd := min(taps, len(samples)-i+half)
		var sum float64
		for j := jStart; j < jEnd; j++ {
			sum += samples[i+j-half] * kernel[j]
		}
		out[i] = sum
	}

	return out
}

// sincKernel generates a normalized windowed-sinc FIR kernel using a Blackman
// window, unity gain at DC.
func sincKernel(cutoff, sampleRate float64, taps int) []float64 {
	fc := cutoff / sampleRate
	half := taps / 2
	kernel := make([]float64, taps)

	var sum float64
	for i := range taps {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2.0 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		w := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1)) +
			0.08*math.Cos(4.0*math.Pi*float64(i)/float64(taps-1))
		kernel[i] = sinc * w
		sum += kernel[i]
	}

	for i := range kernel {
		kernel[i] /= sum
	}

	return kernel
}

func interpolate(samples []float64, idx int, frac float64) float64 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}

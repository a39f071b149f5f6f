package audio

import "math"

// RMS computes the root-mean-square energy of int16 PCM samples, on the raw
// int16 amplitude scale. An empty chunk has zero energy.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var acc float64
	for _, s := range samples {
		v := float64(s)
		acc += v * v
	}
	return math.Sqrt(acc / float64(len(samples)))
}

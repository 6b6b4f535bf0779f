package audio

import "math"

// levelGain maps speech RMS into the roughly 0..2 range the mic meter expects.
const levelGain = 4.0

// InputLevel computes the normalized loudness of a capture block.
func InputLevel(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum/float64(len(samples))) * levelGain
}

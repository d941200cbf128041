package audio

import "math"

// NormalizeDecibels maps a dBFS power level onto a perceptually linear 0..1
// meter: clamp the -50..0 dB window to 0..1 and take the square root.
func NormalizeDecibels(db float32) float32 {
	linear := (db + 50) / 50
	if linear < 0 {
		linear = 0
	} else if linear > 1 {
		linear = 1
	}
	return float32(math.Sqrt(float64(linear)))
}

// Decibels returns the RMS power of the samples in dBFS, floored at -200 dB
// for silence.
func Decibels(samples []float32) float32 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	n := len(samples)
	if n == 0 {
		n = 1
	}
	rms := math.Sqrt(sum / float64(n))
	return float32(20 * math.Log10(math.Max(rms, 1e-10)))
}

// Level computes the normalized 0..1 audio level of a sample block.
func Level(samples []float32) float32 {
	return NormalizeDecibels(Decibels(samples))
}

// RMS returns the root mean square amplitude of the samples.
func RMS(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	n := len(samples)
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

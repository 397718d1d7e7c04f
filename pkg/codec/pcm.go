package codec

import (
	"encoding/binary"
	"math"
)

// PCM16FromFloat quantizes float samples in [-1, 1] to signed 16-bit PCM.
// Out-of-range input is clamped; NaN becomes silence.
func PCM16FromFloat(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, x := range samples {
		out[i] = quantize(x)
	}
	return out
}

func quantize(x float32) int16 {
	if x != x { // NaN
		return 0
	}
	v := math.Round(float64(x) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Int16ToBytes encodes samples as little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// BytesToInt16 decodes little-endian PCM16. A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// PeakAmplitude returns the largest absolute sample value.
func PeakAmplitude(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Levels splits samples into bars buckets and returns the mean absolute
// amplitude of each, clamped to [0, 1]. Used to drive level meters.
func Levels(samples []float32, bars int) []float64 {
	if bars <= 0 {
		return nil
	}
	levels := make([]float64, bars)
	step := len(samples) / bars
	if step == 0 {
		return levels
	}
	for i := 0; i < bars; i++ {
		var sum float64
		for _, s := range samples[i*step : (i+1)*step] {
			sum += math.Abs(float64(s))
		}
		levels[i] = math.Min(1, sum/float64(step))
	}
	return levels
}

package audioio

// Resample converts samples from one rate to another using linear interpolation.
// This is a simple resampler suitable for speech audio.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return samples
	}

	if len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)

	if newLen == 0 {
		return []float32{}
	}

	result := make([]float32, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := samples[srcIdx]
			s2 := samples[srcIdx+1]
			result[i] = s1 + frac*(s2-s1)
		}
	}

	return result
}

// ResampleFrame returns f converted to toRate. Frames already at toRate are
// returned unchanged.
func ResampleFrame(f Frame, toRate int) Frame {
	if f.SampleRate == toRate || f.SampleRate == 0 {
		return f
	}
	return Frame{
		Samples:    Resample(f.Samples, f.SampleRate, toRate),
		SampleRate: toRate,
		Captured:   f.Captured,
	}
}

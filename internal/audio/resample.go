package audio

// Resample performs simple linear interpolation resampling.
// Used when the speaker cannot run at the stream's output rate.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := float32(srcPos - float64(idx0))
		output[i] = samples[idx0]*(1-fraction) + samples[idx1]*fraction
	}

	return output
}

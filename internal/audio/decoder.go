package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedAudio is returned when an inbound chunk cannot be decoded
var ErrMalformedAudio = errors.New("malformed audio chunk")

// Buffer is a decoded mono audio buffer ready for scheduling
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length in seconds
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// DecodePCM16 decodes a base64 PCM16LE mono chunk at sampleRate into a Buffer
func DecodePCM16(data string, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrMalformedAudio, sampleRate)
	}

	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}

	samples, err := PCM16LEToFloat(pcm)
	if err != nil {
		return nil, err
	}

	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// PCM16LEToFloat converts little-endian 16-bit PCM into float samples in [-1, 1)
func PCM16LEToFloat(pcm []byte) ([]float32, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: empty PCM data", ErrMalformedAudio)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: PCM data length must be even (16-bit samples)", ErrMalformedAudio)
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		// Little-endian 16-bit signed integer
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(sample) / 32768.0
	}
	return samples, nil
}

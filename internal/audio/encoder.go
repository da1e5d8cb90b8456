package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodedPacket is one captured frame in wire form: PCM16LE mono, base64 text,
// tagged with a MIME type that carries the sample rate.
type EncodedPacket struct {
	MIMEType string
	Data     string // Base64 encoded PCM16LE
	PCMBytes int    // Size of the PCM payload before base64
}

// PCMMimeType returns the MIME descriptor for raw PCM16 audio at the given rate
func PCMMimeType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// FrameEncoder converts captured float frames into EncodedPackets.
// The sample rate is fixed at construction so every packet of a session
// carries the same descriptor.
type FrameEncoder struct {
	sampleRate int
	mimeType   string
}

// NewFrameEncoder creates an encoder for frames captured at sampleRate
func NewFrameEncoder(sampleRate int) *FrameEncoder {
	return &FrameEncoder{
		sampleRate: sampleRate,
		mimeType:   PCMMimeType(sampleRate),
	}
}

// SampleRate returns the rate the encoder tags packets with
func (e *FrameEncoder) SampleRate() int {
	return e.sampleRate
}

// Encode converts one frame. It never fails: NaN and out-of-range samples are clamped.
func (e *FrameEncoder) Encode(frame []float32) EncodedPacket {
	pcm := SamplesToPCM16LE(FloatToInt16(frame))
	return EncodedPacket{
		MIMEType: e.mimeType,
		Data:     base64.StdEncoding.EncodeToString(pcm),
		PCMBytes: len(pcm),
	}
}

// FloatToInt16 clamps each sample to [-1, 1] and scales it to the int16 range.
// Negative samples scale by 32768 and non-negative by 32767 so +1.0 does not overflow.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToInt16(s)
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// SamplesToPCM16LE writes samples as little-endian 16-bit PCM
func SamplesToPCM16LE(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}

package audio

import "math"

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
}

// DefaultVADConfig returns a default VAD configuration tuned for 4096-sample frames at 16kHz
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   3, // ~768ms of silence (3 frames * 256ms)
	}
}

// VADResult is the outcome of processing one frame
type VADResult struct {
	Speaking      bool
	SpeechStarted bool
	SpeechEnded   bool
}

// VADDetector performs energy-based Voice Activity Detection on captured frames
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes a PCM16 frame and reports speech transitions
func (v *VADDetector) ProcessFrame(samples []int16) VADResult {
	var res VADResult

	if CalculateRMS(samples) > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.isSpeaking {
			res.SpeechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			res.SpeechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	res.Speaking = v.isSpeaking
	return res
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

package vad

import "github.com/barnacle-voice/barnacle-core/core/audio"

// ChunkSize is the number of samples each classification call consumes
// (32ms at 16kHz).
const ChunkSize = 512

type EventKind int

const (
	EventNone EventKind = iota
	EventSpeechStart
	EventSpeechEnd
)

type Result struct {
	Event       EventKind
	Probability float64
}

type Config struct {
	// SpeechThreshold is the RMS level at which speech may start.
	SpeechThreshold float64
	// SilenceThreshold is the RMS level below which speech may end. Kept
	// below SpeechThreshold so the detector doesn't flicker.
	SilenceThreshold float64
	// StartChunks is how many consecutive speech chunks trigger speech-start.
	StartChunks int
	// EndChunks is how many consecutive silent chunks trigger speech-end
	// (~480ms at the default chunk size).
	EndChunks int
}

func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		StartChunks:      2,
		EndChunks:        15,
	}
}

// Detector is an energy-based voice activity detector with hysteresis.
// State is per-utterance; recreate or Reset it for each turn.
type Detector struct {
	config Config

	speechActive bool
	speechCount  int
	silenceCount int
}

func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// ProcessChunk classifies one fixed-size sample chunk and reports a
// speech-start/speech-end transition when one fires.
func (d *Detector) ProcessChunk(chunk []float32) Result {
	level := audio.RMS(chunk)

	probability := level / (2 * d.config.SpeechThreshold)
	if probability > 1 {
		probability = 1
	}

	result := Result{Event: EventNone, Probability: probability}

	if d.speechActive {
		if level < d.config.SilenceThreshold {
			d.silenceCount++
			d.speechCount = 0
			if d.silenceCount >= d.config.EndChunks {
				d.speechActive = false
				d.silenceCount = 0
				result.Event = EventSpeechEnd
			}
		} else {
			d.silenceCount = 0
		}
	} else {
		if level >= d.config.SpeechThreshold {
			d.speechCount++
			d.silenceCount = 0
			if d.speechCount >= d.config.StartChunks {
				d.speechActive = true
				d.speechCount = 0
				result.Event = EventSpeechStart
			}
		} else {
			d.speechCount = 0
		}
	}

	return result
}

func (d *Detector) IsSpeechActive() bool { return d.speechActive }

func (d *Detector) Reset() {
	d.speechActive = false
	d.speechCount = 0
	d.silenceCount = 0
}

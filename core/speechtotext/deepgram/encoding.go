package deepgram

import (
	"fmt"

	"github.com/barnacle-voice/barnacle-core/core/audio"
)

// wireEncoding maps a capture format onto the encoding and sample_rate
// query values Deepgram's listen endpoint accepts. Companded formats are
// telephony rates only.
func wireEncoding(info audio.EncodingInfo) (name string, sampleRate int, err error) {
	switch info.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
		sampleRate = info.SampleRate
	default:
		return "", 0, fmt.Errorf("unsupported sample rate %d", info.SampleRate)
	}

	switch info.Format {
	case audio.EncodingLinear16:
		name = "linear16"
	case audio.EncodingALaw, audio.EncodingMulaw:
		name = info.Format.Name()
		if sampleRate != 8000 {
			return "", 0, fmt.Errorf("%s audio must be 8kHz, got %d", name, sampleRate)
		}
	default:
		return "", 0, fmt.Errorf("unsupported encoding %q", info.Format.Name())
	}

	return name, sampleRate, nil
}

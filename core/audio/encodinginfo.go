package audio

// DefaultSampleRate is the rate the transcription pipeline works at.
const DefaultSampleRate = 16000

// Format identifies the PCM encoding of raw capture or playback bytes.
type Format string

const (
	EncodingLinear16 Format = "linear16"
	EncodingALaw     Format = "alaw"
	EncodingMulaw    Format = "mulaw"
)

// DefaultFormat is what the desktop capture clients deliver.
const DefaultFormat = EncodingLinear16

func (f Format) Name() string { return string(f) }

// ByteSize is the width of one sample, 0 for unknown formats.
func (f Format) ByteSize() int {
	switch f {
	case EncodingLinear16:
		return 2
	case EncodingALaw, EncodingMulaw:
		return 1
	}
	return 0
}

// EncodingInfo describes the byte stream a capture client produces.
type EncodingInfo struct {
	SampleRate int
	Format     Format
}

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format == ""
}

// SilenceValue is the byte that encodes digital silence in this format.
func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

package audio

import "sync"

// defaultMaxBufferedSamples bounds the delay a slow consumer can build up.
// At 16kHz this is roughly 30 seconds of audio.
const defaultMaxBufferedSamples = 30 * DefaultSampleRate

// SampleBuffer is the single synchronization point between the audio
// callback (producer) and the VAD/ASR consumer loop. Append never blocks;
// when the bound is exceeded the oldest samples are dropped so the capture
// callback is never stalled by a wedged consumer.
type SampleBuffer struct {
	mu         sync.Mutex
	samples    []float32
	maxSamples int
}

func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{maxSamples: defaultMaxBufferedSamples}
}

func (b *SampleBuffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, samples...)
	if overflow := len(b.samples) - b.maxSamples; overflow > 0 {
		b.samples = b.samples[overflow:]
	}
}

// TryDrain removes and returns exactly n samples, or reports false when
// fewer than n are buffered. Callers poll rather than block.
func (b *SampleBuffer) TryDrain(n int) ([]float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) < n {
		return nil, false
	}

	chunk := make([]float32, n)
	copy(chunk, b.samples[:n])
	b.samples = b.samples[n:]
	return chunk, true
}

func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.samples)
}

func (b *SampleBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = nil
}

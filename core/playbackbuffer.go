package conversation

import "sync"

// playbackBuffer queues synthesized audio clips between the synthesis
// worker and the playback worker, preserving sentence order even when
// synthesis finishes out of pace with playback.
type playbackBuffer struct {
	mu           sync.Mutex
	clips        [][]byte
	consumed     int
	allLoaded    bool
	stopped      bool
	updateSignal chan struct{}
}

func newPlaybackBuffer() *playbackBuffer {
	return &playbackBuffer{
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *playbackBuffer) AddClip(clip []byte) {
	b.mu.Lock()
	b.clips = append(b.clips, clip)
	b.mu.Unlock()
	b.signalUpdate()
}

// AllLoaded marks that no more clips will be added.
func (b *playbackBuffer) AllLoaded() {
	b.mu.Lock()
	b.allLoaded = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *playbackBuffer) Clips(yield func(clip []byte) bool) {
	for {
		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			return
		}

		if b.consumed < len(b.clips) {
			clip := b.clips[b.consumed]
			b.consumed++
			b.mu.Unlock()
			if !yield(clip) {
				return
			}
			continue
		}

		if b.allLoaded {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

func (b *playbackBuffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *playbackBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}

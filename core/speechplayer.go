package conversation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
)

const (
	// playbackCompleteTimeout bounds how long a turn waits for queued
	// speech to finish playing before giving up.
	playbackCompleteTimeout = 30 * time.Second
	playbackPollInterval    = 100 * time.Millisecond
)

// speechPlayer streams sentence chunks through the synthesizer and plays
// the results in submission order. Synthesis of the next chunk overlaps
// playback of the current one; ordering is preserved by the clip queue.
type speechPlayer struct {
	synth texttospeech.Synthesizer
	sink  AudioSink

	chunks *chunkQueue
	buffer *playbackBuffer

	scheduled   atomic.Int32
	completed   atomic.Int32
	streamEnded atomic.Bool
	connected   atomic.Bool

	wg sync.WaitGroup
}

func newSpeechPlayer(synth texttospeech.Synthesizer, sink AudioSink) *speechPlayer {
	return &speechPlayer{
		synth:  synth,
		sink:   sink,
		chunks: newChunkQueue(),
		buffer: newPlaybackBuffer(),
	}
}

// Connect starts the synthesis and playback workers. Safe to call once per
// player.
func (p *speechPlayer) Connect(ctx context.Context) {
	if !p.connected.CompareAndSwap(false, true) {
		return
	}

	p.wg.Add(2)
	go p.synthesizeWorker(ctx)
	go p.playbackWorker(ctx)
}

func (p *speechPlayer) synthesizeWorker(ctx context.Context) {
	defer p.wg.Done()

	for chunk := range p.chunks.Chunks {
		pcm, err := p.synth.Synthesize(ctx, chunk)
		if err != nil {
			logger.WarnContext(ctx, "Failed to synthesize chunk", "error", err)
			p.completed.Add(1)
			continue
		}
		p.buffer.AddClip(pcm)
	}
	p.buffer.AllLoaded()
}

func (p *speechPlayer) playbackWorker(ctx context.Context) {
	defer p.wg.Done()

	for clip := range p.buffer.Clips {
		if err := p.sink.Play(ctx, clip); err != nil {
			logger.WarnContext(ctx, "Failed to play clip", "error", err)
		}
		p.completed.Add(1)
	}
}

// SendChunk queues one sentence chunk for synthesis.
func (p *speechPlayer) SendChunk(text string) {
	p.scheduled.Add(1)
	p.chunks.AddChunk(text)
}

// EndStream marks that no more chunks are coming.
func (p *speechPlayer) EndStream() {
	p.streamEnded.Store(true)
	p.chunks.Complete()
}

// WaitForPlaybackComplete blocks until every scheduled chunk has played,
// the deadline passes, or the context is cancelled.
func (p *speechPlayer) WaitForPlaybackComplete(ctx context.Context) error {
	deadline := time.NewTimer(playbackCompleteTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(playbackPollInterval)
	defer ticker.Stop()

	for {
		if p.streamEnded.Load() && p.completed.Load() >= p.scheduled.Load() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("playback did not complete within %s", playbackCompleteTimeout)
		case <-ticker.C:
		}
	}
}

// Disconnect tears the player down, discarding any unplayed audio.
func (p *speechPlayer) Disconnect() {
	p.chunks.Clear()
	p.buffer.Stop()
	if p.connected.Load() {
		p.sink.StopPlayback()
		p.sink.ClearBuffer()
	}
	p.wg.Wait()
}

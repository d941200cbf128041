package conversation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	// failOn marks texts whose synthesis should fail.
	failOn map[string]bool
	// jitter adds random latency so synthesis finishes out of pace with
	// playback.
	jitter time.Duration
}

func (s *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.jitter))))
	}

	s.mu.Lock()
	s.calls = append(s.calls, text)
	fail := s.failOn[text]
	s.mu.Unlock()

	if fail {
		return nil, errors.New("synthesis rejected")
	}
	return []byte(text), nil
}

type fakeSink struct {
	mu     sync.Mutex
	played []string
}

func (s *fakeSink) Play(_ context.Context, pcm []byte) error {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	s.played = append(s.played, string(pcm))
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) StopPlayback() {}
func (s *fakeSink) ClearBuffer()  {}

func (s *fakeSink) playedChunks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

func TestSpeechPlayerPlaysChunksInOrder(t *testing.T) {
	synth := &fakeSynth{jitter: 5 * time.Millisecond}
	sink := &fakeSink{}
	player := newSpeechPlayer(synth, sink)

	chunks := []string{
		"First sentence.",
		"Second sentence.",
		"Third sentence.",
		"Fourth sentence.",
		"Fifth sentence.",
	}

	player.Connect(context.Background())
	for _, chunk := range chunks {
		player.SendChunk(chunk)
	}
	player.EndStream()

	if err := player.WaitForPlaybackComplete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	player.Disconnect()

	played := sink.playedChunks()
	if len(played) != len(chunks) {
		t.Fatalf("expected %d played chunks, got %d", len(chunks), len(played))
	}
	for i := range chunks {
		if played[i] != chunks[i] {
			t.Errorf("position %d: expected %q, got %q", i, chunks[i], played[i])
		}
	}
}

func TestSpeechPlayerSkipsFailedChunks(t *testing.T) {
	synth := &fakeSynth{failOn: map[string]bool{"Bad chunk.": true}}
	sink := &fakeSink{}
	player := newSpeechPlayer(synth, sink)

	player.Connect(context.Background())
	player.SendChunk("Good chunk.")
	player.SendChunk("Bad chunk.")
	player.SendChunk("Another good chunk.")
	player.EndStream()

	if err := player.WaitForPlaybackComplete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	player.Disconnect()

	played := sink.playedChunks()
	want := []string{"Good chunk.", "Another good chunk."}
	if len(played) != len(want) {
		t.Fatalf("expected %d played chunks, got %d: %v", len(want), len(played), played)
	}
	for i := range want {
		if played[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], played[i])
		}
	}
}

func TestSpeechPlayerWaitHonorsContext(t *testing.T) {
	synth := &fakeSynth{}
	sink := &fakeSink{}
	player := newSpeechPlayer(synth, sink)

	player.Connect(context.Background())
	player.SendChunk("Never ending.")
	// No EndStream, so playback can never complete.

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := player.WaitForPlaybackComplete(ctx); err == nil {
		t.Fatal("expected context error")
	}
	player.Disconnect()
}

func TestSpeechPlayerDisconnectWithoutConnect(t *testing.T) {
	player := newSpeechPlayer(&fakeSynth{}, &fakeSink{})
	player.Disconnect()
}

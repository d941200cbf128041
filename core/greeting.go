package conversation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
)

// DefaultGreetingText is spoken at the start of a turn when greeting
// playback is requested.
const DefaultGreetingText = "Boom, I'm here"

// GreetingCache keeps the synthesized greeting on disk so repeated turns
// do not pay for synthesis of the same audio.
type GreetingCache struct {
	// Text is the greeting to synthesize; defaults to
	// [DefaultGreetingText].
	Text string
	// Dir is the cache directory; defaults to the user cache dir.
	Dir string
}

func (g *GreetingCache) text() string {
	if g.Text == "" {
		return DefaultGreetingText
	}
	return g.Text
}

func (g *GreetingCache) path() (string, error) {
	dir := g.Dir
	if dir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate cache dir: %w", err)
		}
		dir = filepath.Join(cacheDir, "barnacle")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	return filepath.Join(dir, "greeting.pcm"), nil
}

func (g *GreetingCache) IsCached() bool {
	path, err := g.path()
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// EnsureCached synthesizes and stores the greeting if it is not on disk
// yet.
func (g *GreetingCache) EnsureCached(ctx context.Context, synth texttospeech.Synthesizer) error {
	if g.IsCached() {
		return nil
	}

	pcm, err := synth.Synthesize(ctx, g.text())
	if err != nil {
		return fmt.Errorf("failed to synthesize greeting: %w", err)
	}

	path, err := g.path()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pcm, 0o644); err != nil {
		return fmt.Errorf("failed to store greeting: %w", err)
	}
	return nil
}

// Play plays the cached greeting through the sink.
func (g *GreetingCache) Play(ctx context.Context, sink AudioSink) error {
	path, err := g.path()
	if err != nil {
		return err
	}
	pcm, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cached greeting: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, playbackCompleteTimeout)
	defer cancel()
	if err := sink.Play(ctx, pcm); err != nil {
		return fmt.Errorf("failed to play greeting: %w", err)
	}
	return nil
}

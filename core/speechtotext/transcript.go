package speechtotext

import (
	"strings"
	"sync"
)

// Transcript accumulates committed segments and one volatile partial. The
// display text is the committed text with the partial appended; committing a
// segment clears the partial.
type Transcript struct {
	mu        sync.Mutex
	committed string
	partial   string
}

func (t *Transcript) SetPartial(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = text
}

func (t *Transcript) Commit(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	text = strings.TrimSpace(text)
	if text != "" {
		if t.committed == "" {
			t.committed = text
		} else {
			t.committed += " " + text
		}
	}
	t.partial = ""
}

func (t *Transcript) DisplayText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(strings.TrimSpace(t.committed) + " " + t.partial)
}

// Final is the transcript to hand to the conversation once recording stops.
// Any leftover partial is promoted so trailing words are not lost.
func (t *Transcript) Final() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(strings.TrimSpace(t.committed) + " " + t.partial)
}

func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = ""
	t.partial = ""
}

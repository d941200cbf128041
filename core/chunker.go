package conversation

import (
	"strings"
	"unicode"
)

const sentenceBoundaries = ".!?;:\n"

// sentenceChunker gathers streamed text deltas into sentence-sized chunks
// for synthesis. A chunk is emitted once the buffer contains a sentence
// boundary; everything up to and including the last boundary goes out as
// one chunk and the remainder stays buffered.
type sentenceChunker struct {
	buffer strings.Builder
}

// Add appends a delta and returns the chunk it completed, if any.
func (c *sentenceChunker) Add(delta string) (string, bool) {
	c.buffer.WriteString(delta)

	text := c.buffer.String()
	boundary := strings.LastIndexAny(text, sentenceBoundaries)
	if boundary < 0 {
		return "", false
	}

	head := text[:boundary+1]
	rest := text[boundary+1:]
	c.buffer.Reset()
	c.buffer.WriteString(rest)

	return emitSpeakable(head)
}

// Flush drains whatever is left; called once the stream ends.
func (c *sentenceChunker) Flush() (string, bool) {
	text := c.buffer.String()
	c.buffer.Reset()
	return emitSpeakable(text)
}

func (c *sentenceChunker) Reset() {
	c.buffer.Reset()
}

// emitSpeakable trims the chunk and drops it entirely when it carries
// nothing pronounceable, like bare punctuation or whitespace.
func emitSpeakable(chunk string) (string, bool) {
	chunk = strings.TrimSpace(chunk)
	if !isSpeakable(chunk) {
		return "", false
	}
	return chunk, true
}

func isSpeakable(chunk string) bool {
	for _, r := range chunk {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

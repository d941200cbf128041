package conversation

import (
	"strings"
	"sync"
)

// chunkQueue hands sentence chunks from the response stream to the speech
// worker in order, blocking the consumer until more text or the completion
// signal arrives.
type chunkQueue struct {
	mu             sync.Mutex
	chunks         []string
	chunksConsumed int
	complete       bool
	updateSignal   chan struct{}
	cleared        bool
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{
		updateSignal: make(chan struct{}, 1),
	}
}

func (q *chunkQueue) AddChunk(chunk string) {
	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()
	q.signalUpdate()
}

// Complete marks that no more chunks will be added.
func (q *chunkQueue) Complete() {
	q.mu.Lock()
	q.complete = true
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *chunkQueue) Chunks(yield func(string) bool) {
	for {
		q.mu.Lock()
		if q.cleared {
			q.mu.Unlock()
			return
		}

		if q.chunksConsumed < len(q.chunks) {
			chunk := q.chunks[q.chunksConsumed]
			q.chunksConsumed++
			q.mu.Unlock()
			if !yield(chunk) {
				return
			}
			continue
		}

		if q.complete {
			q.mu.Unlock()
			return
		}

		q.mu.Unlock()
		<-q.updateSignal
	}
}

func (q *chunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

func (q *chunkQueue) String() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return strings.Join(q.chunks, " ")
}

func (q *chunkQueue) Clear() {
	q.mu.Lock()
	q.cleared = true
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *chunkQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}

package conversation

import (
	"bytes"
	"testing"
	"time"
)

func TestChunkQueueDeliversInOrder(t *testing.T) {
	q := newChunkQueue()
	q.AddChunk("first")
	q.AddChunk("second")
	q.Complete()

	var got []string
	for chunk := range q.Chunks {
		got = append(got, chunk)
	}

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected chunks %v", got)
	}
}

func TestChunkQueueBlocksUntilChunkArrives(t *testing.T) {
	q := newChunkQueue()

	received := make(chan string, 1)
	go func() {
		for chunk := range q.Chunks {
			received <- chunk
			return
		}
	}()

	select {
	case chunk := <-received:
		t.Fatalf("expected the consumer to block, got %q", chunk)
	case <-time.After(20 * time.Millisecond):
	}

	q.AddChunk("late")
	select {
	case chunk := <-received:
		if chunk != "late" {
			t.Errorf("expected %q, got %q", "late", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the chunk")
	}
}

func TestChunkQueueClearUnblocksConsumer(t *testing.T) {
	q := newChunkQueue()

	done := make(chan struct{})
	go func() {
		for range q.Chunks {
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Clear()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected clear to end the iteration")
	}
}

func TestChunkQueueString(t *testing.T) {
	q := newChunkQueue()
	q.AddChunk("Hello there.")
	q.AddChunk("How are you?")

	if got := q.String(); got != "Hello there. How are you?" {
		t.Errorf("unexpected string %q", got)
	}
	if q.Len() != 2 {
		t.Errorf("expected 2 chunks, got %d", q.Len())
	}
}

func TestPlaybackBufferDeliversInOrder(t *testing.T) {
	b := newPlaybackBuffer()
	b.AddClip([]byte{1})
	b.AddClip([]byte{2})
	b.AllLoaded()

	var got [][]byte
	for clip := range b.Clips {
		got = append(got, clip)
	}

	if len(got) != 2 || !bytes.Equal(got[0], []byte{1}) || !bytes.Equal(got[1], []byte{2}) {
		t.Errorf("unexpected clips %v", got)
	}
}

func TestPlaybackBufferStopUnblocksConsumer(t *testing.T) {
	b := newPlaybackBuffer()
	b.AddClip([]byte{1})

	done := make(chan int)
	go func() {
		count := 0
		for range b.Clips {
			count++
		}
		done <- count
	}()

	time.Sleep(10 * time.Millisecond)
	b.Stop()

	select {
	case count := <-done:
		if count != 1 {
			t.Errorf("expected 1 clip before stop, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("expected stop to end the iteration")
	}
}

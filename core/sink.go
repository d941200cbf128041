package conversation

import "context"

// AudioSink plays mono 16-bit PCM at the pipeline rate. Play blocks until
// the buffer has been consumed by the device or the context is cancelled.
// Implemented by the platform audio clients.
type AudioSink interface {
	Play(ctx context.Context, pcm []byte) error
	StopPlayback()
	ClearBuffer()
}

// Package conversation orchestrates one voice turn end to end: capture and
// transcribe the user's speech, stream the assistant's reply, and speak it
// back sentence by sentence while the rest of the response is still
// arriving.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/codes"

	"github.com/barnacle-voice/barnacle-core/core/assistant"
	"github.com/barnacle-voice/barnacle-core/core/speechtotext"
	"github.com/barnacle-voice/barnacle-core/core/texttospeech"
)

const (
	// sessionStartAttempts and sessionStartBackoff govern retries when the
	// audio device refuses to start; the backoff grows with each attempt.
	sessionStartAttempts = 3
	sessionStartBackoff  = 300 * time.Millisecond

	// liveUpdateInterval is how often level and countdown meters are
	// pushed to the callbacks while listening.
	liveUpdateInterval = 50 * time.Millisecond
)

// ErrTurnInProgress is returned when a turn is started while another one is
// still running.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// Callbacks observe the engine. All callbacks fire from the turn's
// goroutines and must not block.
type Callbacks struct {
	OnPhaseChange func(phase Phase)
	// OnTranscriptUpdate receives the live display text while listening
	// and the final transcript once.
	OnTranscriptUpdate func(text string)
	// OnResponseUpdate receives the accumulated assistant text as it
	// streams in.
	OnResponseUpdate func(text string)
	// OnAudioLevel receives the input meter and the end-of-utterance
	// countdown progress while listening.
	OnAudioLevel func(level float32, silenceProgress float64)
}

// Controller runs voice turns. One turn at a time; construct with
// [NewController] and drive it with [Controller.RunTurn] or
// [Controller.StartTurn].
type Controller struct {
	backend  speechtotext.Backend
	gateway  *assistant.Client
	synth    texttospeech.Synthesizer
	sink     AudioSink
	greeting *GreetingCache

	callbacks Callbacks

	mu            sync.Mutex
	phase         Phase
	messages      []assistant.Message
	failureReason string
	cancelTurn    context.CancelFunc

	turnActive atomic.Bool
}

type Option func(*Controller)

// WithSynthesizer enables spoken responses. Without it (or without a
// sink) turns complete silently with text only.
func WithSynthesizer(synth texttospeech.Synthesizer) Option {
	return func(c *Controller) { c.synth = synth }
}

func WithAudioSink(sink AudioSink) Option {
	return func(c *Controller) { c.sink = sink }
}

func WithGreeting(greeting *GreetingCache) Option {
	return func(c *Controller) { c.greeting = greeting }
}

func WithCallbacks(callbacks Callbacks) Option {
	return func(c *Controller) { c.callbacks = callbacks }
}

func NewController(backend speechtotext.Backend, gateway *assistant.Client, opts ...Option) *Controller {
	controller := &Controller{
		backend: backend,
		gateway: gateway,
		phase:   PhaseIdle,
	}
	for _, opt := range opts {
		opt(controller)
	}
	return controller
}

// Snapshot is a point-in-time copy of the engine state, safe to keep.
type Snapshot struct {
	Phase           Phase
	Messages        []assistant.Message
	DisplayText     string
	AudioLevel      float32
	SilenceProgress float64
	FailureReason   string
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snapshot := Snapshot{
		Phase:         c.phase,
		FailureReason: c.failureReason,
	}
	if err := copier.Copy(&snapshot.Messages, &c.messages); err != nil {
		logger.Warn("Failed to copy messages", "error", err)
	}
	c.mu.Unlock()

	snapshot.DisplayText = c.backend.DisplayText()
	snapshot.AudioLevel = c.backend.AudioLevel()
	snapshot.SilenceProgress = c.backend.SilenceProgress()
	return snapshot
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Messages returns a deep copy of the conversation history.
func (c *Controller) Messages() []assistant.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var messages []assistant.Message
	if err := copier.Copy(&messages, &c.messages); err != nil {
		logger.Warn("Failed to copy messages", "error", err)
	}
	return messages
}

func (c *Controller) setPhase(phase Phase) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()

	if c.callbacks.OnPhaseChange != nil {
		c.callbacks.OnPhaseChange(phase)
	}
}

func (c *Controller) appendMessage(message assistant.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, message)
	c.mu.Unlock()
}

func (c *Controller) history() []assistant.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]assistant.Message(nil), c.messages...)
}

func (c *Controller) fail(reason string, err error) error {
	c.mu.Lock()
	c.failureReason = reason
	c.mu.Unlock()
	c.setPhase(PhaseFailed)
	return fmt.Errorf("%s: %w", reason, err)
}

// StartTurn runs a turn in the background. Failures land in the Failed
// phase and the log.
func (c *Controller) StartTurn(ctx context.Context, playGreeting bool) {
	go func() {
		if err := c.RunTurn(ctx, playGreeting); err != nil {
			logger.WarnContext(ctx, "Turn failed", "error", err)
		}
	}()
}

// StopListening forces the end of the listening phase, as if the silence
// countdown had elapsed. Ignored in any other phase.
func (c *Controller) StopListening() {
	if c.Phase() == PhaseListening {
		c.backend.Stop()
	}
}

// CancelTurn aborts the running turn, stops any playback, and returns the
// engine to idle.
func (c *Controller) CancelTurn() {
	c.mu.Lock()
	cancel := c.cancelTurn
	c.cancelTurn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.sink != nil {
		c.sink.StopPlayback()
		c.sink.ClearBuffer()
	}
	c.backend.Reset()
	c.setPhase(PhaseIdle)
}

// RunTurn drives one full turn and blocks until it settles. An empty
// transcript ends the turn quietly without contacting the assistant.
func (c *Controller) RunTurn(ctx context.Context, playGreeting bool) error {
	if !c.turnActive.CompareAndSwap(false, true) {
		return ErrTurnInProgress
	}
	defer c.turnActive.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.failureReason = ""
	c.cancelTurn = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelTurn = nil
		c.mu.Unlock()
	}()

	ctx, span := tracer.Start(ctx, "conversation.turn")
	defer span.End()

	speak := c.synth != nil && c.sink != nil

	if playGreeting && speak && c.greeting != nil {
		c.setPhase(PhaseGreeting)
		c.playGreeting(ctx)
	}

	transcript, err := c.listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.setPhase(PhaseIdle)
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "listening failed")
		return c.fail("could not capture speech", err)
	}

	if transcript == "" {
		c.setPhase(PhaseIdle)
		return nil
	}

	c.appendMessage(assistant.Message{Role: assistant.RoleUser, Content: transcript})

	c.setPhase(PhaseProcessing)
	responseText, player, err := c.respond(ctx)
	if err != nil {
		if player != nil {
			player.Disconnect()
		}
		if ctx.Err() != nil {
			c.setPhase(PhaseIdle)
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "response failed")
		return c.fail("could not get a response", err)
	}

	c.appendMessage(assistant.Message{Role: assistant.RoleAssistant, Content: responseText})
	if c.callbacks.OnResponseUpdate != nil {
		c.callbacks.OnResponseUpdate(responseText)
	}

	if player != nil {
		if player.scheduled.Load() > 0 {
			c.setPhase(PhaseSpeaking)
			player.EndStream()
			if err := player.WaitForPlaybackComplete(ctx); err != nil {
				logger.WarnContext(ctx, "Playback did not complete", "error", err)
			}
		}
		player.Disconnect()
	}

	c.setPhase(PhaseFinished)
	c.setPhase(PhaseIdle)
	return nil
}

// playGreeting is best effort; a missing or failed greeting never blocks
// the turn.
func (c *Controller) playGreeting(ctx context.Context) {
	if err := c.greeting.EnsureCached(ctx, c.synth); err != nil {
		logger.WarnContext(ctx, "Failed to cache greeting", "error", err)
		return
	}
	if err := c.greeting.Play(ctx, c.sink); err != nil {
		logger.WarnContext(ctx, "Failed to play greeting", "error", err)
	}
}

func (c *Controller) listen(ctx context.Context) (string, error) {
	c.setPhase(PhaseListening)

	finalCh := make(chan string, 1)
	opts := []speechtotext.TranscriptionOption{
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			finalCh <- transcript
		}),
	}
	if c.callbacks.OnTranscriptUpdate != nil {
		opts = append(opts, speechtotext.WithPartialCallback(c.callbacks.OnTranscriptUpdate))
	}

	var startErr error
	for attempt := 1; attempt <= sessionStartAttempts; attempt++ {
		startErr = c.backend.Start(ctx, opts...)
		if startErr == nil || attempt == sessionStartAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * sessionStartBackoff):
		}
	}
	if startErr != nil {
		return "", startErr
	}

	liveCtx, stopLive := context.WithCancel(ctx)
	defer stopLive()
	if c.callbacks.OnAudioLevel != nil {
		go c.liveUpdates(liveCtx)
	}

	var transcript string
	select {
	case transcript = <-finalCh:
	case <-ctx.Done():
		c.backend.Reset()
		return "", ctx.Err()
	}
	stopLive()

	if err := c.backend.Err(); err != nil {
		c.backend.Reset()
		return "", err
	}
	c.backend.Reset()

	transcript = strings.TrimSpace(transcript)
	if transcript != "" && c.callbacks.OnTranscriptUpdate != nil {
		c.callbacks.OnTranscriptUpdate(transcript)
	}
	return transcript, nil
}

func (c *Controller) liveUpdates(ctx context.Context) {
	ticker := time.NewTicker(liveUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.callbacks.OnAudioLevel(c.backend.AudioLevel(), c.backend.SilenceProgress())
		}
	}
}

// respond streams the assistant's reply, feeding completed sentences to the
// speech player as they form. When the stream dies before producing any
// text, one non-streaming retry is made.
func (c *Controller) respond(ctx context.Context) (string, *speechPlayer, error) {
	speak := c.synth != nil && c.sink != nil
	var player *speechPlayer
	if speak {
		player = newSpeechPlayer(c.synth, c.sink)
	}

	chunker := sentenceChunker{}
	sendChunk := func(chunk string) {
		player.Connect(ctx)
		player.SendChunk(chunk)
	}

	var deltas strings.Builder
	var fullText string
	var streamErr error
	for event, err := range c.gateway.StreamMessage(ctx, c.history()) {
		if err != nil {
			streamErr = err
			break
		}
		switch event.Kind {
		case assistant.EventTextDelta:
			deltas.WriteString(event.Text)
			if c.callbacks.OnResponseUpdate != nil {
				c.callbacks.OnResponseUpdate(deltas.String())
			}
			if speak {
				if chunk, ok := chunker.Add(event.Text); ok {
					sendChunk(chunk)
				}
			}
		case assistant.EventTextDone:
			// The authoritative full text; supersedes the deltas.
			fullText = event.Text
		}
	}

	responseText := deltas.String()
	if fullText != "" {
		responseText = fullText
	}

	if streamErr != nil {
		if strings.TrimSpace(responseText) != "" {
			// Keep what already streamed; the user heard part of it.
			logger.WarnContext(ctx, "Response stream ended early", "error", streamErr)
		} else {
			logger.WarnContext(ctx, "Response stream failed, retrying without streaming", "error", streamErr)
			text, err := c.gateway.SendMessage(ctx, c.history())
			if err != nil {
				return "", player, err
			}
			responseText = text
			if speak && text != assistant.ResponsePlaceholder {
				if chunk, ok := chunker.Add(text); ok {
					sendChunk(chunk)
				}
			}
		}
	}

	if speak {
		if chunk, ok := chunker.Flush(); ok {
			sendChunk(chunk)
		}
	}

	if strings.TrimSpace(responseText) == "" {
		responseText = assistant.ResponsePlaceholder
	}

	return responseText, player, nil
}

package vad

import (
	"sync"
	"time"
)

// TickInterval is the cadence at which callers are expected to Evaluate the
// endpointer.
const TickInterval = 100 * time.Millisecond

type EndpointConfig struct {
	// CommittedTimeout is the silence required after the last committed
	// transcript segment before the utterance is finalized.
	CommittedTimeout time.Duration
	// PartialTimeout is the silence required when only uncommitted partial
	// text exists, measured from the later of speech-end and the last
	// partial update.
	PartialTimeout time.Duration
	// MaxRecording caps total recording time regardless of VAD state.
	MaxRecording time.Duration
}

func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		CommittedTimeout: 2 * time.Second,
		PartialTimeout:   1500 * time.Millisecond,
		MaxRecording:     60 * time.Second,
	}
}

type StopReason int

const (
	StopNone StopReason = iota
	StopSilence
	StopMaxDuration
)

// Endpointer decides when an utterance has ended. It is a small state
// machine evaluated on a periodic tick instead of a pile of one-shot
// timers: backends feed it activity timestamps and poll Evaluate.
type Endpointer struct {
	mu sync.Mutex

	config EndpointConfig

	startedAt    time.Time
	speechActive bool
	speechEndAt  time.Time
	lastPartial  time.Time
	lastCommit   time.Time
	hasPartial   bool
	hasCommit    bool
}

func NewEndpointer(config EndpointConfig) *Endpointer {
	if config.CommittedTimeout <= 0 {
		config.CommittedTimeout = DefaultEndpointConfig().CommittedTimeout
	}
	if config.PartialTimeout <= 0 {
		config.PartialTimeout = DefaultEndpointConfig().PartialTimeout
	}
	if config.MaxRecording <= 0 {
		config.MaxRecording = DefaultEndpointConfig().MaxRecording
	}
	return &Endpointer{config: config}
}

func (e *Endpointer) Start(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.startedAt = now
	e.speechActive = false
	e.speechEndAt = time.Time{}
	e.lastPartial = time.Time{}
	e.lastCommit = time.Time{}
	e.hasPartial = false
	e.hasCommit = false
}

func (e *Endpointer) NoteSpeechStart(time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.speechActive = true
	e.speechEndAt = time.Time{}
}

func (e *Endpointer) NoteSpeechEnd(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.speechActive = false
	e.speechEndAt = now
}

func (e *Endpointer) NotePartial(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hasPartial = true
	e.lastPartial = now
}

func (e *Endpointer) NoteCommit(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hasCommit = true
	e.lastCommit = now
	e.hasPartial = false
	e.lastPartial = time.Time{}
}

// Evaluate computes the silence progress toward end-of-utterance and
// whether finalize should fire. Committed text counts down from the last
// commit; partial-only counts down from the later of speech-end and the
// last partial update; with neither there is no countdown. The recording
// cap applies regardless.
func (e *Endpointer) Evaluate(now time.Time) (progress float64, reason StopReason) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.startedAt.IsZero() && now.Sub(e.startedAt) >= e.config.MaxRecording {
		return 1, StopMaxDuration
	}

	if e.speechActive {
		return 0, StopNone
	}

	var since time.Time
	var timeout time.Duration
	switch {
	case e.hasCommit:
		since = e.lastCommit
		timeout = e.config.CommittedTimeout
	case e.hasPartial:
		since = e.speechEndAt
		if e.lastPartial.After(since) {
			since = e.lastPartial
		}
		timeout = e.config.PartialTimeout
	default:
		return 0, StopNone
	}

	if since.IsZero() {
		return 0, StopNone
	}

	elapsed := now.Sub(since)
	progress = float64(elapsed) / float64(timeout)
	if progress >= 1 {
		return 1, StopSilence
	}
	if progress < 0 {
		progress = 0
	}
	return progress, StopNone
}

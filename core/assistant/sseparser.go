package assistant

import (
	"encoding/json"
	"strings"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"
)

type EventKind int

const (
	// EventTextDelta carries an incremental piece of the response text.
	EventTextDelta EventKind = iota
	// EventTextDone carries the complete response text and supersedes any
	// accumulated deltas.
	EventTextDone
	// EventDone marks the end of the stream.
	EventDone
)

type Event struct {
	Kind EventKind
	Text string
}

// sseParser assembles server-sent event records from individual lines. A
// record is flushed on a blank line; a new "event:" line flushes the
// previous record first, since some gateways omit the blank separator.
// Multi-line data is joined with newlines.
type sseParser struct {
	eventName string
	dataLines []string
}

func (p *sseParser) ParseLine(line string) []Event {
	line = strings.TrimRight(line, "\r")

	switch {
	case strings.TrimSpace(line) == "":
		return p.flush()

	case strings.HasPrefix(line, eventPrefix):
		events := p.flush()
		p.eventName = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
		return events

	case strings.HasPrefix(line, dataPrefix):
		p.dataLines = append(p.dataLines, strings.TrimSpace(strings.TrimPrefix(line, dataPrefix)))
		return nil
	}

	// Comments and unknown fields are dropped.
	return nil
}

// Flush finalizes any record left when the stream ends without a trailing
// blank line.
func (p *sseParser) Flush() []Event {
	return p.flush()
}

func (p *sseParser) flush() []Event {
	if p.eventName == "" && len(p.dataLines) == 0 {
		return nil
	}

	eventName := p.eventName
	data := strings.Join(p.dataLines, "\n")
	p.eventName = ""
	p.dataLines = nil

	if data == "[DONE]" {
		return []Event{{Kind: EventDone}}
	}

	switch eventName {
	case "response.output_text.delta":
		var payload struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Warn("Failed to unmarshal text delta", "error", err)
			return nil
		}
		return []Event{{Kind: EventTextDelta, Text: payload.Delta}}

	case "response.output_text.done":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Warn("Failed to unmarshal text done", "error", err)
			return nil
		}
		return []Event{{Kind: EventTextDone, Text: payload.Text}}

	case "response.completed":
		return []Event{{Kind: EventDone}}
	}

	return nil
}

package assistant

import (
	"reflect"
	"testing"
)

func parseAll(t *testing.T, lines []string) []Event {
	t.Helper()
	parser := sseParser{}
	var events []Event
	for _, line := range lines {
		events = append(events, parser.ParseLine(line)...)
	}
	events = append(events, parser.Flush()...)
	return events
}

func TestParserTextDelta(t *testing.T) {
	events := parseAll(t, []string{
		"event: response.output_text.delta",
		`data: {"delta":"Hello"}`,
		"",
		"event: response.output_text.delta",
		`data: {"delta":", world"}`,
		"",
	})

	want := []Event{
		{Kind: EventTextDelta, Text: "Hello"},
		{Kind: EventTextDelta, Text: ", world"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestParserImplicitFlushOnNewEvent(t *testing.T) {
	// No blank separator between records; the next event line flushes the
	// previous record.
	events := parseAll(t, []string{
		"event: response.output_text.delta",
		`data: {"delta":"Hi"}`,
		"event: response.completed",
		"data: {}",
		"",
	})

	want := []Event{
		{Kind: EventTextDelta, Text: "Hi"},
		{Kind: EventDone},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestParserDoneSentinel(t *testing.T) {
	events := parseAll(t, []string{
		"data: [DONE]",
		"",
	})

	if len(events) != 1 || events[0].Kind != EventDone {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestParserTextDone(t *testing.T) {
	events := parseAll(t, []string{
		"event: response.output_text.done",
		`data: {"text":"The full response."}`,
		"",
	})

	want := []Event{{Kind: EventTextDone, Text: "The full response."}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestParserMultiLineData(t *testing.T) {
	parser := sseParser{}
	parser.ParseLine("event: response.output_text.done")
	parser.ParseLine(`data: {"text":`)
	parser.ParseLine(`data: "joined"}`)
	events := parser.ParseLine("")

	want := []Event{{Kind: EventTextDone, Text: "joined"}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestParserDropsUnknownEvents(t *testing.T) {
	events := parseAll(t, []string{
		"event: response.created",
		`data: {"id":"resp_1"}`,
		"",
		"event: response.output_item.added",
		"data: {}",
		"",
		": keep-alive comment",
		"",
	})

	if len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}
}

func TestParserFlushWithoutTrailingBlankLine(t *testing.T) {
	parser := sseParser{}
	parser.ParseLine("event: response.output_text.delta")
	parser.ParseLine(`data: {"delta":"tail"}`)

	events := parser.Flush()
	want := []Event{{Kind: EventTextDelta, Text: "tail"}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestParserMalformedDataDropped(t *testing.T) {
	events := parseAll(t, []string{
		"event: response.output_text.delta",
		"data: not json",
		"",
	})

	if len(events) != 0 {
		t.Errorf("expected malformed record dropped, got %+v", events)
	}
}

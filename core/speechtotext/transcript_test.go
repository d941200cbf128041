package speechtotext

import "testing"

func TestTranscriptCommitClearsPartial(t *testing.T) {
	transcript := &Transcript{}

	transcript.SetPartial("hello wor")
	if got := transcript.DisplayText(); got != "hello wor" {
		t.Errorf("expected partial to show, got %q", got)
	}

	transcript.Commit("hello world")
	if got := transcript.DisplayText(); got != "hello world" {
		t.Errorf("expected committed text only, got %q", got)
	}

	transcript.SetPartial("how are")
	if got := transcript.DisplayText(); got != "hello world how are" {
		t.Errorf("expected committed plus partial, got %q", got)
	}
}

func TestTranscriptCommitJoinsWithSpaces(t *testing.T) {
	transcript := &Transcript{}
	transcript.Commit("first segment")
	transcript.Commit("second segment")

	if got := transcript.Final(); got != "first segment second segment" {
		t.Errorf("unexpected final transcript %q", got)
	}
}

func TestTranscriptFinalPromotesPartial(t *testing.T) {
	transcript := &Transcript{}
	transcript.Commit("see you")
	transcript.SetPartial("tomorrow")

	if got := transcript.Final(); got != "see you tomorrow" {
		t.Errorf("expected partial promoted into final, got %q", got)
	}
}

func TestTranscriptEmpty(t *testing.T) {
	transcript := &Transcript{}
	if got := transcript.Final(); got != "" {
		t.Errorf("expected empty final, got %q", got)
	}

	transcript.Commit("   ")
	if got := transcript.Final(); got != "" {
		t.Errorf("expected whitespace commit to be ignored, got %q", got)
	}
}

// Command barnacle is a terminal front end for the conversation engine:
// press space to talk, watch the live transcript and the streamed reply,
// and hear the answer spoken when a speech provider is configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/barnacle-voice/barnacle-core/config"
	conversation "github.com/barnacle-voice/barnacle-core/core"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default: ./barnacle.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	events := make(chan tea.Msg, 64)
	engine, err := config.Build(cfg, config.WithCallbacks(conversation.Callbacks{
		OnPhaseChange:      func(phase conversation.Phase) { send(events, phaseMsg(phase)) },
		OnTranscriptUpdate: func(text string) { send(events, transcriptMsg(text)) },
		OnResponseUpdate:   func(text string) { send(events, responseMsg(text)) },
		OnAudioLevel: func(level float32, silenceProgress float64) {
			send(events, levelMsg{level: float64(level), silence: silenceProgress})
		},
	}))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer engine.Close()

	program := tea.NewProgram(newModel(engine.Controller, events), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// send drops events when the UI falls behind; level updates arrive every
// 50ms and must never block the capture path.
func send(events chan<- tea.Msg, msg tea.Msg) {
	select {
	case events <- msg:
	default:
	}
}

type (
	phaseMsg      conversation.Phase
	transcriptMsg string
	responseMsg   string
	levelMsg      struct {
		level   float64
		silence float64
	}
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)
	phaseStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type model struct {
	controller *conversation.Controller
	events     chan tea.Msg

	phase      conversation.Phase
	transcript string
	response   string
	level      float64
	silence    float64
	greeted    bool
	width      int

	levelBar   progress.Model
	silenceBar progress.Model
}

func newModel(controller *conversation.Controller, events chan tea.Msg) model {
	return model{
		controller: controller,
		events:     events,
		phase:      conversation.PhaseIdle,
		width:      80,
		levelBar:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		silenceBar: progress.New(progress.WithSolidFill("243"), progress.WithoutPercentage()),
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.controller.CancelTurn()
			return m, tea.Quit
		case " ":
			switch m.phase {
			case conversation.PhaseIdle, conversation.PhaseFailed:
				m.transcript = ""
				m.response = ""
				m.controller.StartTurn(context.Background(), !m.greeted)
				m.greeted = true
			case conversation.PhaseListening:
				m.controller.StopListening()
			}
		case "c":
			m.controller.CancelTurn()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		barWidth := max(10, msg.Width-20)
		m.levelBar.Width = barWidth
		m.silenceBar.Width = barWidth
		return m, nil

	case phaseMsg:
		m.phase = conversation.Phase(msg)
		if m.phase != conversation.PhaseListening {
			m.level = 0
			m.silence = 0
		}
		return m, waitForEvent(m.events)

	case transcriptMsg:
		m.transcript = string(msg)
		return m, waitForEvent(m.events)

	case responseMsg:
		m.response = string(msg)
		return m, waitForEvent(m.events)

	case levelMsg:
		m.level = msg.level
		m.silence = msg.silence
		return m, waitForEvent(m.events)
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("barnacle"))
	b.WriteString("  ")
	b.WriteString(m.phaseView())
	b.WriteString("\n\n")

	wrapWidth := max(20, m.width-4)
	if m.transcript != "" {
		b.WriteString(labelStyle.Render("you"))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(m.transcript, wrapWidth))
		b.WriteString("\n\n")
	}
	if m.response != "" {
		b.WriteString(labelStyle.Render("assistant"))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(m.response, wrapWidth))
		b.WriteString("\n\n")
	}

	if m.phase == conversation.PhaseListening {
		b.WriteString(labelStyle.Render("level   "))
		b.WriteString(m.levelBar.ViewAs(clamp01(m.level)))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("silence "))
		b.WriteString(m.silenceBar.ViewAs(clamp01(m.silence)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.helpView()))
	return b.String()
}

func (m model) phaseView() string {
	if m.phase == conversation.PhaseFailed {
		reason := m.controller.Snapshot().FailureReason
		if reason == "" {
			reason = "failed"
		}
		return failedStyle.Render(reason)
	}
	return phaseStyle.Render(m.phase.String())
}

func (m model) helpView() string {
	switch m.phase {
	case conversation.PhaseListening:
		return "space: stop listening · c: cancel · q: quit"
	case conversation.PhaseIdle, conversation.PhaseFailed:
		return "space: talk · q: quit"
	default:
		return "c: cancel · q: quit"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

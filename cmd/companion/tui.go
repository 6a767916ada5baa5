package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/muesli/reflow/wordwrap"
)

const (
	assistantName = "Ema"
	footerHeight  = 3
	eventBuffer   = 256
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type busEventMsg struct {
	event events.Event
}

type turnDoneMsg struct {
	err error
}

type transcriptLine struct {
	style lipgloss.Style
	who   string
	text  string
}

type tuiModel struct {
	ctx        context.Context
	controller controller

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int

	lines   []transcriptLine
	pending string
}

func newTUIModel(ctx context.Context, c controller) tuiModel {
	input := textinput.New()
	input.Placeholder = "Say something..."
	input.Prompt = "> "
	input.Focus()

	return tuiModel{ctx: ctx, controller: c, input: input}
}

func (m tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(1, msg.Height-footerHeight)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = msg.Width, height
		}
		m.input.Width = max(10, msg.Width-4)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.controller.Interrupt()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text == "" {
				return m, nil
			}
			m.appendLine(userStyle, "You", text)
			return m, m.send(text)
		}

	case busEventMsg:
		m.handleEvent(msg.event)
		return m, nil

	case turnDoneMsg:
		if msg.err != nil {
			m.appendLine(noticeStyle, "!", msg.err.Error())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) send(text string) tea.Cmd {
	ctx, c := m.ctx, m.controller
	return func() tea.Msg {
		return turnDoneMsg{err: c.SendText(ctx, text)}
	}
}

func (m *tuiModel) handleEvent(event events.Event) {
	switch e := event.(type) {
	case events.UserTranscriptFinal:
		m.appendLine(userStyle, "You (voice)", e.Transcript)
	case events.TurnStarted:
		m.pending = ""
	case events.AssistantResponseSegment:
		m.pending += e.Segment
	case events.AssistantResponseFinal:
		m.pending = ""
		m.appendLine(assistantStyle, assistantName, e.Content)
	case events.ToolCallStarted:
		m.appendLine(statusStyle, "tool", e.Name)
	case events.AssistantPlaybackInterrupted:
		m.appendLine(statusStyle, "", "(interrupted)")
	case events.TurnFailed:
		// the error surfaces through turnDoneMsg for typed input
		if e.Notice != "" {
			m.appendLine(noticeStyle, "!", e.Notice)
		}
	}
	m.refresh()
}

func (m *tuiModel) appendLine(style lipgloss.Style, who, text string) {
	m.lines = append(m.lines, transcriptLine{style: style, who: who, text: text})
	m.refresh()
}

func (m *tuiModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m tuiModel) transcript() string {
	width := max(20, m.width)

	var b strings.Builder
	for _, line := range m.lines {
		text := line.text
		if line.who != "" {
			text = line.style.Render(line.who+":") + " " + text
		}
		b.WriteString(wordwrap.String(text, width))
		b.WriteString("\n")
	}
	if m.pending != "" {
		b.WriteString(wordwrap.String(assistantStyle.Render(assistantName+":")+" "+m.pending+"…", width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m tuiModel) statusLine() string {
	s := m.controller.Status()
	flag := func(name string, on bool) string {
		if on {
			return activeStyle.Render(name)
		}
		return statusStyle.Render(name)
	}
	return strings.Join([]string{
		flag("speaking", s.OutputActive),
		flag("thinking", s.UserInputActive),
		flag("external", s.ExternalProcessingActive),
		statusStyle.Render(fmt.Sprintf("voice:%s", s.Voice)),
		flag("barge-in", s.BargeIn),
		statusStyle.Render("esc interrupts · ctrl+c quits"),
	}, "  ")
}

func (m tuiModel) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.viewport.View() + "\n" + m.statusLine() + "\n" + m.input.View()
}

// runTUI runs the terminal UI until the user quits or ctx is done.
func runTUI(ctx context.Context, c controller, bus *events.Bus) error {
	program := tea.NewProgram(newTUIModel(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx))

	// Bus handlers may run on the UI goroutine itself (Esc interrupts
	// synchronously), so events are handed over through a buffer.
	forward := make(chan events.Event, eventBuffer)
	unsubscribe := bus.SubscribeAll(func(event events.Event) {
		select {
		case forward <- event:
		default:
			logger.Debug("ui event buffer full, dropping event", "kind", string(event.Kind()))
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case event := <-forward:
				program.Send(busEventMsg{event: event})
			case <-done:
				return
			}
		}
	}()

	_, err := program.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

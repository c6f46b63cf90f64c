package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/models"
)

// Asker is the TUI-facing subset of the question answering service.
type Asker interface {
	Ask(ctx context.Context, question string) (models.AnswerRecord, error)
}

type answerMsg struct {
	answer models.AnswerRecord
	err    error
}

// AskModel is an interactive question loop over the indexed documents.
type AskModel struct {
	ctx      context.Context
	service  Asker
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	summary  string
	status   string
	answer   *models.AnswerRecord
	pending  bool
	ready    bool
}

func NewAskModel(ctx context.Context, service Asker, summary string) AskModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return AskModel{
		ctx:      ctx,
		service:  service,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
		status:   "Ready.",
	}
}

func (m AskModel) Init() tea.Cmd { return textinput.Blink }

func (m AskModel) ask(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.service.Ask(m.ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m AskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			m.status = "Answered."
			m.answer = &msg.answer
		}
		m.viewport.SetContent(m.renderCurrent())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Thinking about " + q
			m.input.Reset()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m AskModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	status := successStyle.Render(m.status)
	if m.pending {
		status = m.spinner.View() + " " + dimStyle.Render(m.status)
	}
	return titleStyle.Render("Document Q&A") + "\n" +
		dimStyle.Render(m.summary) + "\n" +
		resultBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m AskModel) renderCurrent() string {
	if m.answer == nil {
		return "No answer yet."
	}
	return RenderAnswer(*m.answer)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// RenderAnswer formats an answer and its sources for the terminal
func RenderAnswer(a models.AnswerRecord) string {
	var b strings.Builder
	if a.Question != "" {
		b.WriteString(titleStyle.Render("Q: "+a.Question) + "\n\n")
	}
	b.WriteString(strings.TrimSpace(a.AnswerText) + "\n")
	if len(a.Sources) == 0 {
		return b.String()
	}
	b.WriteString("\n" + titleStyle.Render("Sources:") + "\n")
	for _, s := range a.Sources {
		b.WriteString(sourceStyle.Render("  • "+s) + "\n")
	}
	return b.String()
}

// RunAsk starts the interactive question loop
func RunAsk(ctx context.Context, service Asker, summary string) error {
	_, err := tea.NewProgram(NewAskModel(ctx, service, summary), tea.WithAltScreen()).Run()
	return err
}

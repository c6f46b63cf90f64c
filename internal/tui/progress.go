package tui

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/models"
)

const maxBarWidth = 60

// EventMsg delivers one ingestion progress event to the model
type EventMsg models.ProgressEvent

// ProgressModel renders an ingestion run as a progress bar
type ProgressModel struct {
	bar      progress.Model
	dir      string
	last     models.ProgressEvent
	failures []models.FileFailure
	report   *models.IngestReport
	err      error
	quitting bool
}

func NewProgressModel(dir string) ProgressModel {
	return ProgressModel{
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		dir: dir,
	}
}

func (m ProgressModel) Init() tea.Cmd { return nil }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)
	case EventMsg:
		ev := models.ProgressEvent(msg)
		m.last = ev
		switch ev.Kind {
		case models.EventFileFailed:
			if ev.Failure != nil {
				m.failures = append(m.failures, *ev.Failure)
			}
		case models.EventDone:
			m.report = ev.Report
			return m, tea.Quit
		case models.EventFailed:
			m.report = ev.Report
			m.err = ev.Err
			return m, tea.Quit
		}
	}
	return m, nil
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Ingesting "+m.dir) + "\n\n")
	b.WriteString(m.bar.ViewAs(m.last.Fraction()) + "\n")

	switch {
	case m.last.Kind == "":
		b.WriteString(dimStyle.Render("Listing documents...") + "\n")
	case m.last.TotalFiles > 0 && m.report == nil:
		status := fmt.Sprintf("File %d/%d: %s", m.last.FileIndex, m.last.TotalFiles, m.last.File)
		if m.last.TotalChunks > 0 {
			status += fmt.Sprintf("  chunk %d/%d", m.last.ChunkIndex, m.last.TotalChunks)
		}
		b.WriteString(status + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d chunks stored", m.last.StoredChunks)) + "\n")

	for _, f := range m.failures {
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s (%s): %s", f.File, f.Stage, f.Reason)) + "\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Ingestion failed: "+m.err.Error()) + "\n")
	case m.report != nil:
		b.WriteString(successStyle.Render(fmt.Sprintf("Done: %d files, %d chunks stored, %d chunks failed",
			m.report.Files, m.report.StoredChunks, m.report.FailedChunks)) + "\n")
	case m.quitting:
		b.WriteString(dimStyle.Render("Stopping...") + "\n")
	}
	return b.String()
}

// RunIngest renders events until the run finishes or the user quits.
// Quitting cancels the run through cancel. It returns only after events is
// drained, so no index write is still in flight.
func RunIngest(ctx context.Context, cancel context.CancelFunc, dir string, events iter.Seq[models.ProgressEvent], out io.Writer, opts ...tea.ProgramOption) (models.IngestReport, error) {
	p := tea.NewProgram(NewProgressModel(dir), append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)...)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			p.Send(EventMsg(ev))
			if ctx.Err() != nil {
				return
			}
		}
	}()

	final, err := p.Run()
	cancel()
	<-drained
	if err != nil {
		return models.IngestReport{Directory: dir}, err
	}
	m := final.(ProgressModel)
	if m.report == nil {
		return models.IngestReport{Directory: dir}, context.Canceled
	}
	return *m.report, m.err
}

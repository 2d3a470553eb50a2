// Package app renders a live terminal view of a delivery cycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/brensch/sitereports/internal/orchestrator"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle              = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle              = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle               = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	successStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	progressBarStyle        = lipgloss.NewStyle().Padding(0, 1)
	fileProgressHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	fileStatusStyle         = map[string]lipgloss.Style{
		"Sending":  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"Sent":     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"Degraded": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"Skipped":  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		"Error":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"Queued":   lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
	}
)

type FileProgress struct {
	FileName string
	Status   string
	ErrMsg   string
	Start    time.Time
	Elapsed  time.Duration
}

// Model is the bubbletea model of the progress view.
type Model struct {
	Title            string
	State            AppState
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	fileProgress   map[string]*FileProgress
	fileOrder      []string
	overallTotal   int64
	overallCurrent int64
	batch, batches int
	detail         string
	pauseUntil     time.Time

	summary   string
	lastError error
	Quitting  bool
	cancel    context.CancelFunc

	termWidth  int
	termHeight int
}

func NewModel(title string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		Title:           title,
		State:           Starting,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		fileProgress:    make(map[string]*FileProgress),
		termWidth:       100,
		termHeight:      30,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.Quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case StageMsg:
		m.State = msg.State
		m.detail = msg.Detail
	case PauseMsg:
		m.State = Pausing
		m.pauseUntil = msg.Until
	case ProgressMsg:
		m.State = Delivering
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.batch, m.batches = msg.Batch, msg.Batches
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.overallProgress.SetPercent(percent))
	case FileProgressMsg:
		if _, exists := m.fileProgress[msg.FileID]; !exists {
			m.fileProgress[msg.FileID] = &FileProgress{FileName: msg.FileName, Status: "Queued"}
			m.fileOrder = append(m.fileOrder, msg.FileID)
		}
		fp := m.fileProgress[msg.FileID]
		if msg.Status == "Sending" && fp.Start.IsZero() {
			fp.Start = time.Now()
		}
		fp.Status = msg.Status
		fp.ErrMsg = msg.ErrMsg
		if msg.ElapsedTime > 0 {
			fp.Elapsed = msg.ElapsedTime
		}
	case TaskFinishedMsg:
		m.summary = msg.Message
		if msg.Err != nil {
			m.lastError = msg.Err
			m.State = ShowError
		} else {
			m.State = Finished
		}
		return m, tea.Quit
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- " + m.Title + " ---"))
	b.WriteString("\n\n")

	switch m.State {
	case Finished:
		b.WriteString(m.viewFiles())
		b.WriteString("\n")
		b.WriteString(successStyle.Render("Done: " + m.summary))
	case ShowError:
		b.WriteString(m.viewFiles())
		b.WriteString("\n")
		b.WriteString(m.viewError())
	default:
		b.WriteString(m.viewProgress())
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("'q' or Ctrl+C to stop after the current batch."))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) viewProgress() string {
	var b strings.Builder
	status := m.State.String()
	if m.State == Pausing && !m.pauseUntil.IsZero() {
		status += fmt.Sprintf(" (%s left)", time.Until(m.pauseUntil).Round(time.Second))
	}
	b.WriteString(fmt.Sprintf("%s %s %s\n", m.spinner.View(), status, infoStyle.Render(m.detail)))
	if m.overallTotal > 0 {
		b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
		b.WriteString(fmt.Sprintf(" (%d/%d, batch %d/%d)\n\n", m.overallCurrent, m.overallTotal, m.batch, m.batches))
	}
	b.WriteString(m.viewFiles())
	return b.String()
}

func (m *Model) viewFiles() string {
	if len(m.fileOrder) == 0 {
		return ""
	}
	var b strings.Builder
	maxLines := max(1, m.termHeight-10)
	startIdx := 0
	if len(m.fileOrder) > maxLines {
		startIdx = len(m.fileOrder) - maxLines
	}

	b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-40s | %-10s | %s", "Report", "Status", "Elapsed")))
	b.WriteString("\n")
	for i := startIdx; i < len(m.fileOrder); i++ {
		fp := m.fileProgress[m.fileOrder[i]]
		statusStyled, ok := fileStatusStyle[fp.Status]
		if !ok {
			statusStyled = infoStyle
		}
		elapsedStr := ""
		if fp.Elapsed > 0 {
			elapsedStr = fp.Elapsed.Round(time.Millisecond).String()
		} else if fp.Status == "Sending" && !fp.Start.IsZero() {
			elapsedStr = time.Since(fp.Start).Round(time.Second).String() + "..."
		}
		name := truncate(fp.FileName, 40)
		b.WriteString(fmt.Sprintf("%-40s | %s | %s", name, statusStyled.Render(fmt.Sprintf("%-10s", fp.Status)), elapsedStr))
		if fp.Status == "Error" && fp.ErrMsg != "" {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(wrapText("  -> Error: "+fp.ErrMsg, m.termWidth-4)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("Run failed:"))
	b.WriteString("\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	}
	if m.summary != "" {
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(m.summary))
	}
	return b.String()
}

// Reporter turns cycle events into view messages. It implements
// delivery.Observer and its Stage method fits orchestrator.StageFunc.
type Reporter struct {
	send func(tea.Msg)

	mu    sync.Mutex
	done  int64
	total int64
}

// NewReporter returns a reporter delivering messages through send.
func NewReporter(send func(tea.Msg)) *Reporter {
	return &Reporter{send: send}
}

func (r *Reporter) Stage(stage, detail string) {
	state := Starting
	switch stage {
	case orchestrator.StageIngest:
		state = Ingesting
	case orchestrator.StageResolve, orchestrator.StageCatalog:
		state = Resolving
	case orchestrator.StageDeliver:
		state = Delivering
	case orchestrator.StageFinished:
		return
	}
	r.send(StageMsg{State: state, Detail: detail})
}

func (r *Reporter) BatchStarted(index, total int, batch []catalog.Artifact) {
	r.mu.Lock()
	if index == 1 {
		r.total = int64(len(batch) * total)
	}
	if index == total {
		r.total = r.done + int64(len(batch))
	}
	msg := ProgressMsg{Current: r.done, Total: r.total, Batch: index, Batches: total}
	r.mu.Unlock()

	r.send(msg)
	for _, a := range batch {
		r.send(NewFileProgress(a.Name, a.Label, "Sending", 0, ""))
	}
}

func (r *Reporter) AttemptFinished(a delivery.Attempt) {
	status, errMsg := "Sent", ""
	switch {
	case !a.OK():
		status, errMsg = "Error", a.Err.Error()
	case a.Degraded:
		status = "Degraded"
	}
	r.send(NewFileProgress(a.Artifact.Name, a.Artifact.Label, status, a.Duration, errMsg))

	r.mu.Lock()
	r.done++
	msg := ProgressMsg{Current: r.done, Total: r.total, Batch: a.Batch}
	r.mu.Unlock()
	r.send(msg)
}

func (r *Reporter) Pausing(d time.Duration) {
	r.send(PauseMsg{Duration: d, Until: time.Now().Add(d)})
}

// Run shows the progress view while task runs. Quitting the view cancels
// the task's context; Run always waits for the task and returns its error.
func Run(ctx context.Context, title string, task func(ctx context.Context, r *Reporter) (string, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(title)
	m.cancel = cancel
	p := tea.NewProgram(m)
	r := NewReporter(p.Send)

	done := make(chan error, 1)
	go func() {
		start := time.Now()
		summary, err := task(ctx, r)
		p.Send(NewTaskFinished(start, err, summary))
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		taskErr := <-done
		return fmt.Errorf("progress view: %w (run result: %v)", err, taskErr)
	}
	return <-done
}

// truncate shortens s to at most limit runes, ending in "..." when cut.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}

package app

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/brensch/sitereports/internal/orchestrator"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterMessages(t *testing.T) {
	var msgs []tea.Msg
	r := NewReporter(func(m tea.Msg) { msgs = append(msgs, m) })

	batch1 := []catalog.Artifact{{Name: "a.xlsx", Label: "A"}, {Name: "b.xlsx", Label: "B"}}
	batch2 := []catalog.Artifact{{Name: "c.xlsx", Label: "C"}}

	r.Stage(orchestrator.StageDeliver, "3 reports")
	r.BatchStarted(1, 2, batch1)
	r.AttemptFinished(delivery.Attempt{Artifact: batch1[0], Batch: 1})
	r.AttemptFinished(delivery.Attempt{Artifact: batch1[1], Batch: 1, Err: errors.New("rejected")})
	r.Pausing(time.Second)
	r.BatchStarted(2, 2, batch2)
	r.Stage(orchestrator.StageFinished, "")

	require.IsType(t, StageMsg{}, msgs[0])
	assert.Equal(t, Delivering, msgs[0].(StageMsg).State)
	assert.Equal(t, ProgressMsg{Current: 0, Total: 4, Batch: 1, Batches: 2}, msgs[1])

	var errs, pauses int
	var last ProgressMsg
	for _, m := range msgs {
		switch m := m.(type) {
		case FileProgressMsg:
			if m.Status == "Error" {
				errs++
				assert.Equal(t, "rejected", m.ErrMsg)
			}
		case PauseMsg:
			pauses++
		case ProgressMsg:
			last = m
		}
	}
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, pauses)
	// The last batch corrects the total.
	assert.Equal(t, ProgressMsg{Current: 2, Total: 3, Batch: 2, Batches: 2}, last)
}

func TestModelLifecycle(t *testing.T) {
	m := NewModel("Site reports")
	m.Update(StageMsg{State: Delivering, Detail: "2 reports"})
	m.Update(ProgressMsg{Current: 0, Total: 2, Batch: 1, Batches: 1})
	m.Update(NewFileProgress("a.xlsx", "Camping Soleil", "Sending", 0, ""))
	m.Update(NewFileProgress("a.xlsx", "Camping Soleil", "Sent", 1200*time.Millisecond, ""))
	m.Update(NewFileProgress("b.xlsx", "Camping Lune", "Error", 0, "mailbox full"))

	view := m.View()
	assert.Contains(t, view, "Site reports")
	assert.Contains(t, view, "Sending reports")
	assert.Contains(t, view, "Camping Soleil")
	assert.Contains(t, view, "1.2s")
	assert.Contains(t, view, "mailbox full")

	_, cmd := m.Update(NewTaskFinished(time.Now(), nil, "2 attempted, 1 sent, 1 failed"))
	require.NotNil(t, cmd)
	assert.Equal(t, Finished, m.State)
	assert.Contains(t, m.View(), "Done: 2 attempted, 1 sent, 1 failed")
}

func TestModelShowsFailure(t *testing.T) {
	m := NewModel("Site reports")
	m.Update(NewTaskFinished(time.Now(), errors.New("no bundle found"), ""))
	assert.Equal(t, ShowError, m.State)
	assert.Contains(t, m.View(), "no bundle found")
}

func TestQuitCancelsTask(t *testing.T) {
	m := NewModel("Site reports")
	cancelled := false
	m.cancel = func() { cancelled = true }

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.True(t, m.Quitting)
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "as is", wrapText("as is", 0))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	name := strings.Repeat("é", 45)
	got := truncate(name, 40)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 37)+"...", got)
	assert.Equal(t, "Camping Île", truncate("Camping Île", 40))
}

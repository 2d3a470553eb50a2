package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/delivery"
	"github.com/brensch/sitereports/internal/orchestrator"
	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Batch", "Report"}, [][]string{{"1", "a.xlsx"}, {"2"}}, []columnAlignment{alignRight})
	assert.Contains(t, out, "BATCH")
	assert.Contains(t, out, "a.xlsx")
	assert.Equal(t, 0, len(renderTable(nil, nil, nil)))
}

func TestPrintResult(t *testing.T) {
	tally := &delivery.Tally{}
	tally.Record(delivery.Attempt{Artifact: catalog.Artifact{Name: "a.xlsx"}, Batch: 1})
	tally.Record(delivery.Attempt{Artifact: catalog.Artifact{Name: "b.xlsx"}, Batch: 1, Err: errors.New("450 mailbox busy")})
	res := &orchestrator.Result{
		RunID:            "r1",
		Bundle:           "Sunelia_2024_06_15.zip",
		Downloads:        orchestrator.IngestStats{New: 1},
		AlreadyDelivered: 2,
		Tally:            tally,
	}

	var buf bytes.Buffer
	printResult(&buf, res)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Sunelia_2024_06_15.zip: 2 attempted, 1 sent, 1 failed, 2 already delivered\n"))
	assert.Contains(t, out, "downloads: 1 new, 0 already known")
	assert.Contains(t, out, "b.xlsx (batch 1): 450 mailbox busy")

	assert.Equal(t, "run r2: no bundle delivered", describeResult(&orchestrator.Result{RunID: "r2", Tally: &delivery.Tally{}}))
	buf.Reset()
	printResult(&buf, nil)
	assert.Empty(t, buf.String())
}

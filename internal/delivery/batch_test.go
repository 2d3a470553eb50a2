package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brensch/sitereports/internal/catalog"
	"github.com/brensch/sitereports/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records the session lifecycle and fails sends for the named
// artifacts.
type fakeTransport struct {
	failOn  map[string]bool
	openErr map[int]error // keyed by 1-based open call
	opens   int
	closes  int
	sent    []string
	events  []string
}

func (f *fakeTransport) Open(context.Context) (Session, error) {
	f.opens++
	f.events = append(f.events, "open")
	if err := f.openErr[f.opens]; err != nil {
		return nil, err
	}
	return &fakeSession{t: f}, nil
}

type fakeSession struct{ t *fakeTransport }

func (s *fakeSession) Send(_ context.Context, msg render.Message) error {
	s.t.events = append(s.t.events, "send:"+msg.AttachmentName)
	if s.t.failOn[msg.AttachmentName] {
		return errors.New("smtp 554 rejected")
	}
	s.t.sent = append(s.t.sent, msg.AttachmentName)
	return nil
}

func (s *fakeSession) Close() error {
	s.t.closes++
	s.t.events = append(s.t.events, "close")
	return nil
}

type stubRenderer struct{ panicOn string }

func (r stubRenderer) Render(_ context.Context, a catalog.Artifact) render.Message {
	if a.Name == r.panicOn {
		panic("boom")
	}
	return render.Message{To: []string{"ops@example.com"}, Subject: a.Label, AttachmentName: a.Name}
}

type recordingObserver struct {
	batches []int
	pauses  []time.Duration
	results []bool
}

func (o *recordingObserver) BatchStarted(_ int, _ int, b []catalog.Artifact) {
	o.batches = append(o.batches, len(b))
}
func (o *recordingObserver) AttemptFinished(a Attempt) { o.results = append(o.results, a.OK()) }
func (o *recordingObserver) Pausing(d time.Duration)   { o.pauses = append(o.pauses, d) }

func artifacts(n int) []catalog.Artifact {
	out := make([]catalog.Artifact, n)
	for i := range out {
		name := fmt.Sprintf("report_%02d.xlsx", i+1)
		out[i] = catalog.Artifact{Name: name, Path: "/tmp/" + name, Label: fmt.Sprintf("site %d", i+1)}
	}
	return out
}

func newBatcher(tr *fakeTransport, r Renderer, size int, obs Observer) (*Batcher, *[]time.Duration) {
	var slept []time.Duration
	return &Batcher{
		Transport: tr,
		Renderer:  r,
		BatchSize: size,
		Delay:     30 * time.Second,
		Sleep:     func(d time.Duration) { slept = append(slept, d) },
		Observer:  obs,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &slept
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{7, 3, []int{3, 3, 1}},
		{6, 3, []int{3, 3}},
		{2, 3, []int{2}},
		{0, 3, nil},
		{4, 0, []int{4}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.n, tt.size), func(t *testing.T) {
			items := artifacts(tt.n)
			batches := Partition(items, tt.size)

			var sizes []int
			var flat []catalog.Artifact
			for _, b := range batches {
				sizes = append(sizes, len(b))
				flat = append(flat, b...)
			}
			assert.Equal(t, tt.want, sizes)
			if tt.n > 0 {
				assert.Equal(t, items, flat)
			}
		})
	}
}

func TestDeliverSevenInBatchesOfThree(t *testing.T) {
	tr := &fakeTransport{}
	obs := &recordingObserver{}
	b, slept := newBatcher(tr, stubRenderer{}, 3, obs)

	tally := b.Deliver(context.Background(), artifacts(7))

	assert.Equal(t, 7, tally.Succeeded)
	assert.Equal(t, 3, tr.opens)
	assert.Equal(t, 3, tr.closes)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, *slept)
	assert.Equal(t, []int{3, 3, 1}, obs.batches)
	assert.Len(t, obs.pauses, 2)
	assert.Equal(t, []string{
		"open", "send:report_01.xlsx", "send:report_02.xlsx", "send:report_03.xlsx", "close",
		"open", "send:report_04.xlsx", "send:report_05.xlsx", "send:report_06.xlsx", "close",
		"open", "send:report_07.xlsx", "close",
	}, tr.events)
	require.NoError(t, tally.Outcome())
}

func TestDeliverPartialFailure(t *testing.T) {
	tr := &fakeTransport{failOn: map[string]bool{"report_03.xlsx": true}}
	b, _ := newBatcher(tr, stubRenderer{}, 3, nil)

	tally := b.Deliver(context.Background(), artifacts(5))

	assert.Equal(t, 5, tally.Attempted)
	assert.Equal(t, 4, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, []string{"report_01.xlsx", "report_02.xlsx", "report_04.xlsx", "report_05.xlsx"}, tr.sent)
	assert.True(t, tally.Partial())
	require.NoError(t, tally.Outcome())
	require.Len(t, tally.Failures, 1)
	assert.Equal(t, "report_03.xlsx", tally.Failures[0].Artifact.Name)
	assert.Equal(t, 1, tally.Failures[0].Batch)
	assert.Contains(t, tally.FailureReport(), "report_03.xlsx (batch 1)")
}

func TestDeliverAllFailedIsFatal(t *testing.T) {
	tr := &fakeTransport{failOn: map[string]bool{"report_01.xlsx": true, "report_02.xlsx": true}}
	b, _ := newBatcher(tr, stubRenderer{}, 3, nil)

	tally := b.Deliver(context.Background(), artifacts(2))

	assert.Equal(t, 2, tally.Failed)
	require.ErrorIs(t, tally.Outcome(), ErrNothingDelivered)
	assert.Equal(t, 1, tr.closes)
}

func TestDeliverSessionOpenFailure(t *testing.T) {
	tr := &fakeTransport{openErr: map[int]error{1: errors.New("auth failed")}}
	b, slept := newBatcher(tr, stubRenderer{}, 2, nil)

	tally := b.Deliver(context.Background(), artifacts(3))

	assert.Equal(t, 3, tally.Attempted)
	assert.Equal(t, 2, tally.Failed)
	assert.Equal(t, 1, tally.Succeeded)
	assert.Equal(t, []string{"report_03.xlsx"}, tr.sent)
	assert.Equal(t, 2, tr.opens)
	assert.Equal(t, 1, tr.closes)
	assert.Len(t, *slept, 1)
	assert.ErrorContains(t, tally.Failures[0].Err, "auth failed")
}

func TestDeliverRecoversRendererPanic(t *testing.T) {
	tr := &fakeTransport{}
	b, _ := newBatcher(tr, stubRenderer{panicOn: "report_02.xlsx"}, 5, nil)

	tally := b.Deliver(context.Background(), artifacts(3))

	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 1, tr.closes)
	assert.ErrorContains(t, tally.Failures[0].Err, "panic")
}

func TestDeliverStopsWhenCancelled(t *testing.T) {
	tr := &fakeTransport{}
	b, _ := newBatcher(tr, stubRenderer{}, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	b.Sleep = func(time.Duration) { cancel() }

	tally := b.Deliver(ctx, artifacts(3))

	assert.Equal(t, 1, tally.Attempted)
	assert.Equal(t, 1, tr.opens)
}

func TestDeliverEmpty(t *testing.T) {
	tr := &fakeTransport{}
	b, slept := newBatcher(tr, stubRenderer{}, 3, nil)

	tally := b.Deliver(context.Background(), nil)

	assert.Zero(t, tally.Attempted)
	assert.Zero(t, tr.opens)
	assert.Empty(t, *slept)
	require.NoError(t, tally.Outcome())
}

func TestObserversSkipsNil(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	obs := Observers(a, nil, b)
	obs.AttemptFinished(Attempt{})
	obs.Pausing(time.Second)

	assert.Equal(t, []bool{true}, a.results)
	assert.Equal(t, []bool{true}, b.results)
	assert.Len(t, a.pauses, 1)
}

func TestTallySummary(t *testing.T) {
	tally := &Tally{}
	tally.Record(Attempt{Degraded: true})
	tally.Record(Attempt{Err: errors.New("x")})
	assert.Equal(t, "2 attempted, 1 sent, 1 failed", tally.Summary())
	assert.Equal(t, 1, tally.Degraded)
}

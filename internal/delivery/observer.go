package delivery

import (
	"time"

	"github.com/brensch/sitereports/internal/catalog"
)

// Observer is notified of batch progress. Calls happen on the delivering
// goroutine, in order.
type Observer interface {
	BatchStarted(index, total int, batch []catalog.Artifact)
	AttemptFinished(a Attempt)
	Pausing(d time.Duration)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) BatchStarted(int, int, []catalog.Artifact) {}
func (NopObserver) AttemptFinished(Attempt)                   {}
func (NopObserver) Pausing(time.Duration)                     {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) BatchStarted(index, total int, batch []catalog.Artifact) {
	for _, o := range m {
		o.BatchStarted(index, total, batch)
	}
}

func (m multiObserver) AttemptFinished(a Attempt) {
	for _, o := range m {
		o.AttemptFinished(a)
	}
}

func (m multiObserver) Pausing(d time.Duration) {
	for _, o := range m {
		o.Pausing(d)
	}
}

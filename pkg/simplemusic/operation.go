package simplemusic

import (
	"time"

	"github.com/google/uuid"
)

// OpState is one step of a lifecycle operation.
type OpState string

// Operation state constants (typed).
const (
	StateValidating   OpState = "validating"
	StateSweeping     OpState = "sweeping"
	StateUploading    OpState = "uploading"
	StateDeleting     OpState = "deleting"
	StatePersisting   OpState = "persisting"
	StateCompensating OpState = "compensating"
	StateDone         OpState = "done"
	StateFailed       OpState = "failed"
)

// Compensation records one compensating delete attempted by an operation.
type Compensation struct {
	URL   string
	Class ContentClass
	Err   error
}

// Operation is the trace of one lifecycle operation: the ordered states it
// passed through, the compensations it ran and its final error.
type Operation struct {
	Name          string
	SongID        uuid.UUID
	States        []OpState
	Compensations []Compensation
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Current returns the latest state.
func (o *Operation) Current() OpState {
	if len(o.States) == 0 {
		return ""
	}
	return o.States[len(o.States)-1]
}

func (o *Operation) enter(state OpState) {
	o.States = append(o.States, state)
}

// fail moves the operation to Failed and returns err unchanged.
func (o *Operation) fail(err error) error {
	o.Err = err
	o.enter(StateFailed)
	return err
}

func (o *Operation) done() {
	o.enter(StateDone)
}

func (s *service) begin(name string) *Operation {
	op := &Operation{Name: name, StartedAt: s.now()}
	op.enter(StateValidating)
	return op
}

// finish logs the trace and hands it to the observer.
func (s *service) finish(op *Operation) {
	op.FinishedAt = s.now()
	if op.Err != nil {
		s.logger.Warn("lifecycle operation failed",
			"op", op.Name, "song_id", op.SongID, "states", op.States, "error", op.Err)
	} else {
		s.logger.Debug("lifecycle operation completed",
			"op", op.Name, "song_id", op.SongID, "states", op.States)
	}
	if s.observer != nil {
		s.observer(op)
	}
}

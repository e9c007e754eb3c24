package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/logger"
)

// ErrSequenceInFlight is returned when Run is called while a previous
// sequence is still going.
var ErrSequenceInFlight = errors.New("sequence already in flight")

// SectionTask is one independent background fetch-and-render unit.
type SectionTask struct {
	Name string
	Run  func(ctx context.Context, refresh bool) error
}

// Sequencer runs its tasks strictly one at a time with a fixed pause
// between them, so the server only ever sees one heavy request at once.
// A task's failure is logged and the sequence moves on.
type Sequencer struct {
	tasks    []SectionTask
	pause    time.Duration
	log      *logrus.Entry
	inFlight atomic.Bool
}

// NewSequencer creates a sequencer with the given inter-task pause.
func NewSequencer(tasks []SectionTask, pause time.Duration) *Sequencer {
	return &Sequencer{
		tasks: tasks,
		pause: pause,
		log:   logger.Component("sequencer"),
	}
}

// Run executes every task in order. It returns only after all tasks have
// been attempted, or earlier when the context is cancelled. Task errors
// never propagate; the error return is non-nil only for cancellation or
// an overlapping Run call.
func (s *Sequencer) Run(ctx context.Context, refresh bool) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrSequenceInFlight
	}
	defer s.inFlight.Store(false)

	for i, task := range s.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task.Run(ctx, refresh); err != nil {
			s.log.WithError(err).WithField("task", task.Name).Warn("section task failed")
		}
		if i == len(s.tasks)-1 || s.pause <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pause):
		}
	}
	return nil
}

// RunAfter waits the given delay, then runs the sequence. Used for the
// initial background load shortly after startup.
func (s *Sequencer) RunAfter(ctx context.Context, delay time.Duration, refresh bool) error {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return s.Run(ctx, refresh)
}

package service

import (
	"time"

	"github.com/spec-kit/helpdesk-pipeline/internal/domain"
)

// Timeline is the ordered audit trail of one pipeline run. Steps are only
// closed through the handle returned by Start.
type Timeline struct {
	steps []domain.ProcessingStep
	now   func() time.Time
}

// StepHandle closes exactly the step it was created for.
type StepHandle struct {
	timeline *Timeline
	index    int
	started  time.Time
	closed   bool
}

func newTimeline(now func() time.Time) *Timeline {
	if now == nil {
		now = time.Now
	}
	return &Timeline{now: now}
}

// Start appends an in-progress step.
func (t *Timeline) Start(name domain.StepName) *StepHandle {
	started := t.now()
	t.steps = append(t.steps, domain.ProcessingStep{
		Step:      name,
		Status:    domain.StepInProgress,
		Timestamp: started,
	})
	return &StepHandle{timeline: t, index: len(t.steps) - 1, started: started}
}

// Complete marks the step completed. Closing twice is a no-op.
func (h *StepHandle) Complete() {
	h.close(domain.StepCompleted, nil)
}

// Fail marks the step failed with err's message.
func (h *StepHandle) Fail(err error) {
	h.close(domain.StepFailed, err)
}

func (h *StepHandle) close(status domain.StepStatus, err error) {
	if h == nil || h.closed {
		return
	}
	h.closed = true
	elapsed := h.timeline.now().Sub(h.started).Milliseconds()
	step := &h.timeline.steps[h.index]
	step.Status = status
	step.Duration = &elapsed
	if err != nil {
		step.Error = err.Error()
	}
}

// Steps returns a copy of the recorded steps.
func (t *Timeline) Steps() []domain.ProcessingStep {
	out := make([]domain.ProcessingStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// Current is the most recent step still in progress, or the last step when
// all are closed.
func (t *Timeline) Current() domain.StepName {
	for i := len(t.steps) - 1; i >= 0; i-- {
		if t.steps[i].Status == domain.StepInProgress {
			return t.steps[i].Step
		}
	}
	if n := len(t.steps); n > 0 {
		return t.steps[n-1].Step
	}
	return domain.StepExtractInfo
}

// abandon fails every step left open by an aborted run.
func (t *Timeline) abandon(err error) {
	elapsedAt := t.now()
	for i := range t.steps {
		if t.steps[i].Status != domain.StepInProgress {
			continue
		}
		elapsed := elapsedAt.Sub(t.steps[i].Timestamp).Milliseconds()
		t.steps[i].Status = domain.StepFailed
		t.steps[i].Duration = &elapsed
		if err != nil {
			t.steps[i].Error = err.Error()
		}
	}
}

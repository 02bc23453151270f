package pipeline

import (
	"strings"
	"sync"

	"github.com/iceinvein/notari-go/internal/domain"
)

// TrackerOptions carries the optional callbacks fired during reduction.
// OnError fires once per failed event, OnComplete at most once per run.
type TrackerOptions struct {
	OnComplete func()
	OnError    func(message string)
}

// Tracker folds the lifecycle events of one pipeline session into a
// progress snapshot. The event stream is shared by all concurrent runs;
// events whose session id differs from the tracker's are no-ops, which
// is what gives each tracker run-isolation.
type Tracker struct {
	sessionID  string
	onComplete func()
	onError    func(string)

	mu     sync.Mutex
	run    domain.PipelineRun
	sized  bool
	closed bool

	sub *Subscription
}

// NewTracker attaches a tracker for sessionID to the bus. Callers must
// Close it when the observed session changes or the tracker is dropped.
func NewTracker(bus *Bus, sessionID string, opts TrackerOptions) *Tracker {
	t := newDetachedTracker(sessionID, opts)
	if bus != nil {
		t.sub = bus.Subscribe(t.handle)
	}
	return t
}

func newDetachedTracker(sessionID string, opts TrackerOptions) *Tracker {
	t := &Tracker{
		sessionID:  strings.TrimSpace(sessionID),
		onComplete: opts.OnComplete,
		onError:    opts.OnError,
		run: domain.PipelineRun{
			SessionID:         strings.TrimSpace(sessionID),
			CurrentStageIndex: -1,
		},
	}
	return t
}

// Reduce replays an ordered event sequence through a fresh reducer and
// returns the resulting snapshot. Used to reconstruct progress from
// persisted events without a live tracker.
func Reduce(sessionID string, events []Event) domain.PipelineRun {
	t := newDetachedTracker(sessionID, TrackerOptions{})
	for _, event := range events {
		t.handle(event)
	}
	return t.Snapshot()
}

func (t *Tracker) handle(event Event) {
	if event == nil || event.Session() != t.sessionID {
		return
	}
	t.Apply(event)
}

// Apply reduces one event into the tracker state. Events are applied in
// delivery order; the reducer does not detect or correct causal
// inversions, it trusts the source to order events per session.
func (t *Tracker) Apply(event Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	var fireComplete bool
	var fireError string
	var fireErrorSet bool

	switch ev := event.(type) {
	case *StartedEvent:
		t.applyStarted(ev)
	case *StageStartedEvent:
		// Stage statuses only move forward; a late or replayed start
		// must not demote a finished stage.
		if t.stageCanBecome(ev.StageIndex, domain.StageStatusRunning) {
			t.run.CurrentStageIndex = ev.StageIndex
			t.run.Stages[ev.StageIndex] = domain.Stage{
				Name:   ev.StageName,
				Status: domain.StageStatusRunning,
			}
		}
	case *StageCompletedEvent:
		if t.stageCanBecome(ev.StageIndex, domain.StageStatusCompleted) {
			duration := ev.DurationMs
			t.run.Stages[ev.StageIndex] = domain.Stage{
				Name:       ev.StageName,
				Status:     domain.StageStatusCompleted,
				DurationMs: &duration,
			}
		}
	case *StageSkippedEvent:
		if t.stageCanBecome(ev.StageIndex, domain.StageStatusSkipped) {
			t.run.Stages[ev.StageIndex] = domain.Stage{
				Name:   ev.StageName,
				Status: domain.StageStatusSkipped,
			}
		}
	case *CompletedEvent:
		if !t.run.IsComplete {
			duration := ev.TotalDurationMs
			t.run.IsComplete = true
			t.run.TotalDurationMs = &duration
			fireComplete = true
		}
	case *FailedEvent:
		t.run.Error = ev.Error
		for i := range t.run.Stages {
			if t.run.Stages[i].Name != ev.FailedStage {
				continue
			}
			if !domain.IsTerminalStageStatus(t.run.Stages[i].Status) {
				t.run.Stages[i].Status = domain.StageStatusFailed
			}
			break
		}
		fireError = ev.Error
		fireErrorSet = true
	}
	t.mu.Unlock()

	if fireComplete && t.onComplete != nil {
		t.onComplete()
	}
	if fireErrorSet && t.onError != nil {
		t.onError(fireError)
	}
}

func (t *Tracker) applyStarted(ev *StartedEvent) {
	if t.sized || ev.TotalStages < 0 {
		return
	}
	stages := make([]domain.Stage, ev.TotalStages)
	for i := range stages {
		stages[i].Status = domain.StageStatusPending
	}
	// Stage events observed before the started event keep their slots.
	for i := 0; i < len(stages) && i < len(t.run.Stages); i++ {
		if t.run.Stages[i].Status != domain.StageStatusPending && t.run.Stages[i].Status != "" {
			stages[i] = t.run.Stages[i]
		}
	}
	t.run.Stages = stages
	t.run.PipelineName = ev.PipelineName
	t.sized = true
}

// ensureStageSlot grows the stage list for indexes beyond the declared
// count so a malformed or early event is tolerated instead of dropped.
func (t *Tracker) ensureStageSlot(index int) {
	if index < 0 {
		return
	}
	for len(t.run.Stages) <= index {
		t.run.Stages = append(t.run.Stages, domain.Stage{Status: domain.StageStatusPending})
	}
}

// stageCanBecome grows the slot and checks the forward-only transition
// for it.
func (t *Tracker) stageCanBecome(index int, next domain.StageStatus) bool {
	if index < 0 {
		return false
	}
	t.ensureStageSlot(index)
	return domain.CanTransitionStageStatus(t.run.Stages[index].Status, next)
}

// SessionID returns the correlation id this tracker filters on.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Snapshot returns a consistent deep copy of the current progress.
func (t *Tracker) Snapshot() domain.PipelineRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.Clone()
}

// Progress returns the completed fraction in [0,1].
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.Progress()
}

// Close detaches the tracker from the bus and drops any event still in
// flight. Safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if t.sub != nil {
		t.sub.Unsubscribe()
	}
}

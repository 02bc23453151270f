package domain

// StageStatus represents the lifecycle status of one pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusFailed    StageStatus = "failed"
)

// CanTransitionStageStatus enforces forward-only stage progression.
func CanTransitionStageStatus(current, next StageStatus) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return true
	}
	return stageStatusOrder(current) < stageStatusOrder(next)
}

func stageStatusOrder(status StageStatus) int {
	switch status {
	case StageStatusPending:
		return 1
	case StageStatusRunning:
		return 2
	case StageStatusCompleted, StageStatusSkipped, StageStatusFailed:
		return 3
	default:
		return 0
	}
}

// IsTerminalStageStatus reports whether a stage can no longer change.
func IsTerminalStageStatus(status StageStatus) bool {
	return stageStatusOrder(status) == 3
}

// Stage is one step of a pipeline run. Name is empty until first observed.
type Stage struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	DurationMs *int64      `json:"duration_ms,omitempty"`
}

// PipelineRun is the aggregate progress snapshot for one pipeline session.
type PipelineRun struct {
	SessionID         string  `json:"session_id"`
	PipelineName      string  `json:"pipeline_name"`
	Stages            []Stage `json:"stages"`
	CurrentStageIndex int     `json:"current_stage_index"`
	IsComplete        bool    `json:"is_complete"`
	Error             string  `json:"error,omitempty"`
	TotalDurationMs   *int64  `json:"total_duration_ms,omitempty"`
}

// Progress returns the completed fraction in [0,1]. Before the started
// event sizes the stage list both terms are zero and the result is 0.
func (r PipelineRun) Progress() float64 {
	if len(r.Stages) == 0 {
		return 0
	}
	fraction := float64(r.CurrentStageIndex+1) / float64(len(r.Stages))
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// Clone returns a deep copy so callers can hold a snapshot while the
// tracker keeps mutating its own state.
func (r PipelineRun) Clone() PipelineRun {
	out := r
	if r.Stages != nil {
		out.Stages = make([]Stage, len(r.Stages))
		for i, stage := range r.Stages {
			out.Stages[i] = stage
			if stage.DurationMs != nil {
				d := *stage.DurationMs
				out.Stages[i].DurationMs = &d
			}
		}
	}
	if r.TotalDurationMs != nil {
		d := *r.TotalDurationMs
		out.TotalDurationMs = &d
	}
	return out
}

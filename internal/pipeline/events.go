package pipeline

import "encoding/json"

// Event identifies the lifecycle events emitted by the recorder pipeline.
// All events of one pipeline run carry the same session id; consumers
// filter the shared stream on it.
//
// A consumer will typically use a type switch:
//
//	switch ev := event.(type) {
//	case *StartedEvent:
//	case *StageStartedEvent:
//	case *StageCompletedEvent:
//	case *StageSkippedEvent:
//	case *CompletedEvent:
//	case *FailedEvent:
//	}
type Event interface {
	Session() string
	Kind() string
}

const (
	KindStarted        = "pipeline_started"
	KindStageStarted   = "pipeline_stage_started"
	KindStageCompleted = "pipeline_stage_completed"
	KindStageSkipped   = "pipeline_stage_skipped"
	KindCompleted      = "pipeline_completed"
	KindFailed         = "pipeline_failed"
)

type StartedEvent struct {
	SessionID    string `json:"session_id"`
	PipelineName string `json:"pipeline_name"`
	TotalStages  int    `json:"total_stages"`
}

func (e *StartedEvent) Session() string { return e.SessionID }
func (e *StartedEvent) Kind() string    { return KindStarted }

type StageStartedEvent struct {
	SessionID  string `json:"session_id"`
	StageIndex int    `json:"stage_index"`
	StageName  string `json:"stage_name"`
}

func (e *StageStartedEvent) Session() string { return e.SessionID }
func (e *StageStartedEvent) Kind() string    { return KindStageStarted }

type StageCompletedEvent struct {
	SessionID  string `json:"session_id"`
	StageIndex int    `json:"stage_index"`
	StageName  string `json:"stage_name"`
	DurationMs int64  `json:"duration_ms"`
}

func (e *StageCompletedEvent) Session() string { return e.SessionID }
func (e *StageCompletedEvent) Kind() string    { return KindStageCompleted }

type StageSkippedEvent struct {
	SessionID  string `json:"session_id"`
	StageIndex int    `json:"stage_index"`
	StageName  string `json:"stage_name"`
}

func (e *StageSkippedEvent) Session() string { return e.SessionID }
func (e *StageSkippedEvent) Kind() string    { return KindStageSkipped }

type CompletedEvent struct {
	SessionID       string `json:"session_id"`
	TotalDurationMs int64  `json:"total_duration_ms"`
}

func (e *CompletedEvent) Session() string { return e.SessionID }
func (e *CompletedEvent) Kind() string    { return KindCompleted }

type FailedEvent struct {
	SessionID   string `json:"session_id"`
	Error       string `json:"error"`
	FailedStage string `json:"failed_stage"`
}

func (e *FailedEvent) Session() string { return e.SessionID }
func (e *FailedEvent) Kind() string    { return KindFailed }

// DecodeEvent decodes a wire event by kind. Unknown kinds are rejected;
// payload fields beyond the known shape are ignored.
func DecodeEvent(kind string, payload []byte) (Event, error) {
	var target Event
	switch kind {
	case KindStarted:
		target = &StartedEvent{}
	case KindStageStarted:
		target = &StageStartedEvent{}
	case KindStageCompleted:
		target = &StageCompletedEvent{}
	case KindStageSkipped:
		target = &StageSkippedEvent{}
	case KindCompleted:
		target = &CompletedEvent{}
	case KindFailed:
		target = &FailedEvent{}
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, err
	}
	return target, nil
}

// EncodeEvent renders an event payload for persistence and transport.
func EncodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// UnknownKindError reports an event kind this layer does not consume.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return "unknown pipeline event kind " + e.Kind
}

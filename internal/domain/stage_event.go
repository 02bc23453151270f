package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// StageEventRecord is a persisted pipeline lifecycle event. The payload
// keeps the original wire shape so a session can be replayed later.
type StageEventRecord struct {
	EventID    int64           `json:"event_id"`
	SessionID  string          `json:"session_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

func (e StageEventRecord) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(e.Kind) == "" {
		return errors.New("kind is required")
	}
	if len(e.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

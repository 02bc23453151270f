package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/pipeline"
	"github.com/iceinvein/notari-go/internal/repo"
)

type ingestEventRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type stageView struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

type sessionProgress struct {
	SessionID         string      `json:"session_id"`
	PipelineName      string      `json:"pipeline_name,omitempty"`
	Stages            []stageView `json:"stages"`
	CurrentStageIndex int         `json:"current_stage_index"`
	Progress          float64     `json:"progress"`
	IsComplete        bool        `json:"is_complete"`
	Error             string      `json:"error,omitempty"`
	TotalDurationMs   *int64      `json:"total_duration_ms,omitempty"`
}

func progressView(run domain.PipelineRun) sessionProgress {
	stages := make([]stageView, 0, len(run.Stages))
	for _, stage := range run.Stages {
		stages = append(stages, stageView{
			Name:       stage.Name,
			Status:     string(stage.Status),
			DurationMs: stage.DurationMs,
		})
	}
	return sessionProgress{
		SessionID:         run.SessionID,
		PipelineName:      run.PipelineName,
		Stages:            stages,
		CurrentStageIndex: run.CurrentStageIndex,
		Progress:          run.Progress(),
		IsComplete:        run.IsComplete,
		Error:             run.Error,
		TotalDurationMs:   run.TotalDurationMs,
	}
}

func (api *vaultAPI) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	event, err := pipeline.DecodeEvent(strings.TrimSpace(req.Kind), normalizeJSON(req.Payload))
	if err != nil {
		var unknown *pipeline.UnknownKindError
		if errors.As(err, &unknown) {
			api.writeError(w, r, http.StatusBadRequest, "unknown_event_kind")
			return
		}
		api.writeError(w, r, http.StatusBadRequest, "invalid_payload")
		return
	}
	sessionID := strings.TrimSpace(event.Session())
	if sessionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "session_id_required")
		return
	}

	eventID, err := api.events.AppendStageEvent(r.Context(), domain.StageEventRecord{
		SessionID:  sessionID,
		Kind:       event.Kind(),
		Payload:    normalizeJSON(req.Payload),
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		api.logger.Error("append stage event failed", "session_id", sessionID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	// The tracker must exist before the event fans out so the session
	// hooks observe it.
	api.registry.Observe(sessionID)
	api.bus.Publish(event)

	api.writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id":   eventID,
		"session_id": sessionID,
		"kind":       event.Kind(),
	})
}

func (api *vaultAPI) handleSessionProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "session_id_required")
		return
	}

	if tracker, ok := api.registry.Lookup(sessionID); ok {
		api.writeJSON(w, http.StatusOK, progressView(tracker.Snapshot()))
		return
	}

	run, found, err := api.replaySession(r.Context(), sessionID)
	if err != nil {
		api.logger.Error("replay session failed", "session_id", sessionID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if !found {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, progressView(run))
}

// replaySession reconstructs progress from the persisted event log when
// no live tracker holds the session.
func (api *vaultAPI) replaySession(ctx context.Context, sessionID string) (domain.PipelineRun, bool, error) {
	records, err := api.events.ListStageEvents(ctx, repo.StageEventFilter{SessionID: sessionID})
	if err != nil {
		return domain.PipelineRun{}, false, err
	}
	if len(records) == 0 {
		return domain.PipelineRun{}, false, nil
	}

	events := make([]pipeline.Event, 0, len(records))
	for _, record := range records {
		event, err := pipeline.DecodeEvent(record.Kind, record.Payload)
		if err != nil {
			// A malformed stored event must not block replay of the rest.
			api.logger.Warn("skipping undecodable stage event", "session_id", sessionID, "event_id", record.EventID, "error", err)
			continue
		}
		events = append(events, event)
	}
	return pipeline.Reduce(sessionID, events), true, nil
}

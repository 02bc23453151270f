package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", blob); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// handleSessionStream pushes progress snapshots over SSE. Frames are
// emitted on poll ticks only when the snapshot changed; comment pings
// keep idle connections alive.
func (api *vaultAPI) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if sessionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "session_id_required")
		return
	}

	snapshot, ok := api.currentProgress(r, sessionID)
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()

	_ = writeSSE(w, "ready", map[string]any{
		"session_id": sessionID,
		"server_ts":  time.Now().UTC().Unix(),
		"request_id": r.Header.Get("X-Request-Id"),
	})

	lastFrame, _ := json.Marshal(snapshot)
	_ = writeSSE(w, "progress", snapshot)

	poll := time.NewTicker(api.streamPoll)
	heartbeat := time.NewTicker(api.streamHeartbeat)
	defer poll.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			snapshot, ok := api.currentProgress(r, sessionID)
			if !ok {
				return
			}
			frame, err := json.Marshal(snapshot)
			if err != nil {
				return
			}
			if string(frame) == string(lastFrame) {
				continue
			}
			lastFrame = frame
			if err := writeSSE(w, "progress", snapshot); err != nil {
				return
			}
			if snapshot.IsComplete || snapshot.Error != "" {
				return
			}
		}
	}
}

// currentProgress resolves the snapshot for a session from the live
// tracker or the persisted log.
func (api *vaultAPI) currentProgress(r *http.Request, sessionID string) (sessionProgress, bool) {
	if tracker, ok := api.registry.Lookup(sessionID); ok {
		return progressView(tracker.Snapshot()), true
	}
	run, found, err := api.replaySession(r.Context(), sessionID)
	if err != nil || !found {
		return sessionProgress{}, false
	}
	return progressView(run), true
}

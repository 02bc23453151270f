package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/iceinvein/notari-go/internal/anchor"
	"github.com/iceinvein/notari-go/internal/platform/auditlog"
	platformstore "github.com/iceinvein/notari-go/internal/platform/objectstore"
	"github.com/iceinvein/notari-go/internal/pipeline"
	"github.com/iceinvein/notari-go/internal/repo"
	storageobjectstore "github.com/iceinvein/notari-go/internal/storage/objectstore"
)

type vaultAPI struct {
	logger     *slog.Logger
	events     repo.StageEventRepository
	recordings repo.RecordingRepository
	anchors    repo.AnchorRepository
	bus        *pipeline.Bus
	registry   *pipeline.Registry
	confirmer  *anchor.Confirmer
	store      storageobjectstore.Store
	storeCfg   platformstore.Config
	presignTTL time.Duration
	auditDB    auditlog.QueryRower

	streamPoll      time.Duration
	streamHeartbeat time.Duration
}

func newVaultAPI(
	logger *slog.Logger,
	events repo.StageEventRepository,
	recordings repo.RecordingRepository,
	anchors repo.AnchorRepository,
	bus *pipeline.Bus,
	registry *pipeline.Registry,
	confirmer *anchor.Confirmer,
	store storageobjectstore.Store,
	storeCfg platformstore.Config,
	presignTTL time.Duration,
	auditDB auditlog.QueryRower,
) *vaultAPI {
	if presignTTL <= 0 {
		presignTTL = 10 * time.Minute
	}
	return &vaultAPI{
		logger:          logger,
		events:          events,
		recordings:      recordings,
		anchors:         anchors,
		bus:             bus,
		registry:        registry,
		confirmer:       confirmer,
		store:           store,
		storeCfg:        storeCfg,
		presignTTL:      presignTTL,
		auditDB:         auditDB,
		streamPoll:      1 * time.Second,
		streamHeartbeat: 15 * time.Second,
	}
}

func (api *vaultAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /pipeline/events", api.handleIngestEvent)
	mux.HandleFunc("GET /sessions/{session_id}/progress", api.handleSessionProgress)
	mux.HandleFunc("GET /sessions/{session_id}/stream", api.handleSessionStream)

	mux.HandleFunc("POST /recordings", api.handleCreateRecording)
	mux.HandleFunc("GET /recordings", api.handleListRecordings)
	mux.HandleFunc("GET /recordings/{recording_id}", api.handleGetRecording)
	mux.HandleFunc("GET /recordings/{recording_id}/verification", api.handleVerifyRecording)

	mux.HandleFunc("GET /anchor/config", api.handleAnchorConfig)
	mux.HandleFunc("POST /recordings/{recording_id}/anchor", api.handleAnchorRecording)
	mux.HandleFunc("GET /recordings/{recording_id}/anchor", api.handleGetAnchor)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *vaultAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *vaultAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func normalizeJSON(raw []byte) json.RawMessage {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return []byte("{}")
	}
	return raw
}

// recordAudit persists an audit row for a mutating request. Failures
// never fail the request itself.
func (api *vaultAPI) recordAudit(r *http.Request, actor, action, resourceType, resourceID string, payload any) {
	if api.auditDB == nil {
		return
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 750*time.Millisecond)
	defer cancel()
	_, err = auditlog.Insert(auditCtx, api.auditDB, auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    r.Header.Get("X-Request-Id"),
		IP:           net.ParseIP(host),
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
	if err != nil {
		api.logger.Warn("audit insert failed", "action", action, "resource_id", resourceID, "error", err)
	}
}

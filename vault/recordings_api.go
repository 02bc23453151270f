package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/platform/auth"
	"github.com/iceinvein/notari-go/internal/repo"
	storageobjectstore "github.com/iceinvein/notari-go/internal/storage/objectstore"
)

type recordingView struct {
	RecordingID    string          `json:"recording_id"`
	SessionID      string          `json:"session_id"`
	Title          string          `json:"title,omitempty"`
	ManifestKey    string          `json:"manifest_key"`
	ManifestSHA256 string          `json:"manifest_sha256"`
	SizeBytes      int64           `json:"size_bytes"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	CreatedBy      string          `json:"created_by"`
	ManifestURL    string          `json:"manifest_url,omitempty"`
	UploadURL      string          `json:"upload_url,omitempty"`
	AnchorState    string          `json:"anchor_state"`
}

type createRecordingRequest struct {
	SessionID      string         `json:"session_id"`
	Title          string         `json:"title,omitempty"`
	ManifestSHA256 string         `json:"manifest_sha256"`
	SizeBytes      int64          `json:"size_bytes"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (api *vaultAPI) recordingToView(recording domain.Recording, anchorState string) recordingView {
	metaJSON, _ := json.Marshal(recording.Metadata)
	return recordingView{
		RecordingID:    recording.ID,
		SessionID:      recording.SessionID,
		Title:          recording.Title,
		ManifestKey:    recording.ManifestKey,
		ManifestSHA256: recording.ManifestSHA256,
		SizeBytes:      recording.SizeBytes,
		Metadata:       normalizeJSON(metaJSON),
		CreatedAt:      recording.CreatedAt,
		CreatedBy:      recording.CreatedBy,
		AnchorState:    anchorState,
	}
}

func (api *vaultAPI) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	var req createRecordingRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "session_id_required")
		return
	}
	manifestSHA := strings.ToLower(strings.TrimSpace(req.ManifestSHA256))
	if len(manifestSHA) != 64 {
		api.writeError(w, r, http.StatusBadRequest, "manifest_sha256_invalid")
		return
	}
	if req.SizeBytes < 0 {
		api.writeError(w, r, http.StatusBadRequest, "size_bytes_invalid")
		return
	}

	recording := domain.Recording{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Title:          strings.TrimSpace(req.Title),
		ManifestSHA256: manifestSHA,
		SizeBytes:      req.SizeBytes,
		Metadata:       domain.Metadata(req.Metadata),
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      strings.TrimSpace(identity.Subject),
	}
	recording.ManifestKey = "manifests/" + recording.ID + ".json"

	integrity, err := domain.ComputeRecordingIntegritySHA256(recording)
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	recording.IntegritySHA256 = integrity

	if err := api.recordings.CreateRecording(r.Context(), recording); err != nil {
		api.logger.Error("create recording failed", "recording_id", recording.ID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	uploadURL, err := api.store.PresignPut(r.Context(), api.storeCfg.BucketManifests, recording.ManifestKey, api.presignTTL)
	if err != nil {
		api.logger.Error("presign manifest upload failed", "recording_id", recording.ID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	api.recordAudit(r, recording.CreatedBy, "recording.create", "recording", recording.ID, map[string]any{
		"session_id":      recording.SessionID,
		"manifest_sha256": recording.ManifestSHA256,
		"size_bytes":      recording.SizeBytes,
	})

	view := api.recordingToView(recording, string(api.confirmer.StateFor(recording.ID, nil)))
	view.UploadURL = uploadURL
	w.Header().Set("Location", "/recordings/"+recording.ID)
	api.writeJSON(w, http.StatusCreated, view)
}

func (api *vaultAPI) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	filter := repo.RecordingFilter{
		SessionID: strings.TrimSpace(r.URL.Query().Get("session_id")),
		CreatedBy: strings.TrimSpace(r.URL.Query().Get("created_by")),
		Limit:     parseIntQuery(r, "limit", 100),
	}

	recordings, err := api.recordings.ListRecordings(r.Context(), filter)
	if err != nil {
		api.logger.Error("list recordings failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	views := make([]recordingView, 0, len(recordings))
	for _, recording := range recordings {
		views = append(views, api.recordingToView(recording, string(api.confirmer.StateFor(recording.ID, nil))))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"recordings": views})
}

func (api *vaultAPI) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	recordingID := strings.TrimSpace(r.PathValue("recording_id"))
	if recordingID == "" {
		api.writeError(w, r, http.StatusBadRequest, "recording_id_required")
		return
	}

	recording, err := api.recordings.GetRecording(r.Context(), recordingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get recording failed", "recording_id", recordingID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	// Display only; a failed anchor lookup degrades the shown state
	// while the anchor endpoints themselves fail closed.
	external, err := api.storedAnchor(r, recordingID)
	if err != nil {
		api.logger.Warn("get anchor failed", "recording_id", recordingID, "error", err)
	}
	view := api.recordingToView(recording, string(api.confirmer.StateFor(recordingID, external)))

	manifestURL, err := api.store.PresignGet(r.Context(), api.storeCfg.BucketManifests, recording.ManifestKey, api.presignTTL)
	if err == nil {
		view.ManifestURL = manifestURL
	}
	api.writeJSON(w, http.StatusOK, view)
}

type verificationView struct {
	RecordingID    string `json:"recording_id"`
	ManifestKey    string `json:"manifest_key"`
	Verified       bool   `json:"verified"`
	Reason         string `json:"reason,omitempty"`
	ManifestSHA256 string `json:"manifest_sha256"`
	ComputedSHA256 string `json:"computed_sha256,omitempty"`
	SizeBytes      int64  `json:"size_bytes,omitempty"`
}

// handleVerifyRecording re-hashes the stored manifest and checks it
// against the digest registered with the recording.
func (api *vaultAPI) handleVerifyRecording(w http.ResponseWriter, r *http.Request) {
	recordingID := strings.TrimSpace(r.PathValue("recording_id"))
	if recordingID == "" {
		api.writeError(w, r, http.StatusBadRequest, "recording_id_required")
		return
	}

	recording, err := api.recordings.GetRecording(r.Context(), recordingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get recording failed", "recording_id", recordingID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	result := verificationView{
		RecordingID:    recording.ID,
		ManifestKey:    recording.ManifestKey,
		ManifestSHA256: recording.ManifestSHA256,
	}

	body, info, err := api.store.Get(r.Context(), api.storeCfg.BucketManifests, recording.ManifestKey)
	if err != nil {
		if errors.Is(err, storageobjectstore.ErrObjectNotFound) {
			result.Reason = "manifest_missing"
			api.writeJSON(w, http.StatusOK, result)
			return
		}
		api.logger.Error("read manifest failed", "recording_id", recordingID, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "manifest_unavailable")
		return
	}
	defer func() { _ = body.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, body); err != nil {
		api.logger.Error("hash manifest failed", "recording_id", recordingID, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "manifest_unavailable")
		return
	}

	result.ComputedSHA256 = hex.EncodeToString(hasher.Sum(nil))
	result.SizeBytes = info.Size
	result.Verified = result.ComputedSHA256 == recording.ManifestSHA256
	if !result.Verified {
		result.Reason = "manifest_digest_mismatch"
	}
	api.writeJSON(w, http.StatusOK, result)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

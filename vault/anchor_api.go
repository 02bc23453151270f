package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iceinvein/notari-go/internal/anchor"
	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/platform/auth"
	"github.com/iceinvein/notari-go/internal/repo"
)

func (api *vaultAPI) handleAnchorConfig(w http.ResponseWriter, r *http.Request) {
	cfg := api.confirmer.Config()
	api.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":        cfg.Enabled,
		"environment":    cfg.Environment,
		"chain_id":       cfg.ChainID,
		"chain_name":     cfg.ChainName,
		"auto_anchor":    cfg.AutoAnchor,
		"has_wallet":     cfg.HasWallet,
		"wallet_address": cfg.WalletAddress,
		"readiness":      string(cfg.Readiness()),
	})
}

func (api *vaultAPI) handleAnchorRecording(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
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
	stored, err := api.storedAnchor(r, recordingID)
	if err != nil {
		// Unknown anchor state must not let the one-shot action run.
		api.logger.Error("anchor state check failed", "recording_id", recordingID, "error", err)
		api.writeError(w, r, http.StatusServiceUnavailable, "anchor_state_unavailable")
		return
	}
	if stored != nil {
		api.writeError(w, r, http.StatusConflict, "already_anchored")
		return
	}

	record, err := api.confirmer.Confirm(r.Context(), recordingID, recording.ManifestKey)
	if err != nil {
		switch {
		case errors.Is(err, anchor.ErrAlreadyAnchored):
			api.writeError(w, r, http.StatusConflict, "already_anchored")
		case errors.Is(err, anchor.ErrConfirmPending):
			api.writeError(w, r, http.StatusConflict, "anchor_pending")
		case errors.Is(err, anchor.ErrNotReady):
			api.writeError(w, r, http.StatusServiceUnavailable, "anchor_not_ready")
		default:
			api.logger.Error("anchor confirm failed", "recording_id", recordingID, "error", err)
			api.writeError(w, r, http.StatusBadGateway, "anchor_failed")
		}
		return
	}

	record.CreatedBy = strings.TrimSpace(identity.Subject)
	if err := api.anchors.CreateAnchor(r.Context(), record); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			api.writeError(w, r, http.StatusConflict, "already_anchored")
			return
		}
		// The chain transaction went through; losing the row is worth a
		// loud log but the anchor state is still served from memory.
		api.logger.Error("persist anchor failed", "recording_id", recordingID, "error", err)
	}

	api.recordAudit(r, record.CreatedBy, "recording.anchor", "recording", recordingID, map[string]any{
		"chain_name": record.ChainName,
		"tx_hash":    record.TxHash,
		"proof_kind": record.ProofKind,
	})

	w.Header().Set("Location", "/recordings/"+recordingID+"/anchor")
	api.writeJSON(w, http.StatusCreated, record)
}

func (api *vaultAPI) handleGetAnchor(w http.ResponseWriter, r *http.Request) {
	recordingID := strings.TrimSpace(r.PathValue("recording_id"))
	if recordingID == "" {
		api.writeError(w, r, http.StatusBadRequest, "recording_id_required")
		return
	}

	stored, err := api.storedAnchor(r, recordingID)
	if err != nil {
		api.logger.Error("get anchor failed", "recording_id", recordingID, "error", err)
		api.writeError(w, r, http.StatusServiceUnavailable, "anchor_state_unavailable")
		return
	}
	record, ok := api.confirmer.Record(recordingID, stored)
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, record)
}

// storedAnchor loads the persisted anchor row. Absence is (nil, nil);
// any other lookup failure is surfaced so callers guarding the
// irreversible anchor action can fail closed.
func (api *vaultAPI) storedAnchor(r *http.Request, recordingID string) (*domain.AnchorRecord, error) {
	record, err := api.anchors.GetAnchor(r.Context(), recordingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

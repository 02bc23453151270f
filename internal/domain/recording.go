package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Recording represents one recorded artifact whose signed manifest is
// stored in object storage.
type Recording struct {
	ID              string
	SessionID       string
	Title           string
	ManifestKey     string
	ManifestSHA256  string
	SizeBytes       int64
	Metadata        Metadata
	CreatedAt       time.Time
	CreatedBy       string
	IntegritySHA256 string
}

func (r Recording) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("recording id is required")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(r.ManifestKey) == "" {
		return errors.New("manifest key is required")
	}
	if strings.TrimSpace(r.ManifestSHA256) == "" {
		return errors.New("manifest sha256 is required")
	}
	if r.SizeBytes < 0 {
		return errors.New("size bytes must be >= 0")
	}
	return nil
}

// ComputeRecordingIntegritySHA256 hashes the canonical JSON form of the
// recording identity and manifest binding.
func ComputeRecordingIntegritySHA256(recording Recording) (string, error) {
	type integrityInput struct {
		ID             string    `json:"recording_id"`
		SessionID      string    `json:"session_id"`
		ManifestKey    string    `json:"manifest_key"`
		ManifestSHA256 string    `json:"manifest_sha256"`
		SizeBytes      int64     `json:"size_bytes"`
		CreatedAt      time.Time `json:"created_at"`
	}

	in := integrityInput{
		ID:             strings.TrimSpace(recording.ID),
		SessionID:      strings.TrimSpace(recording.SessionID),
		ManifestKey:    strings.TrimSpace(recording.ManifestKey),
		ManifestSHA256: strings.TrimSpace(recording.ManifestSHA256),
		SizeBytes:      recording.SizeBytes,
		CreatedAt:      recording.CreatedAt.UTC(),
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

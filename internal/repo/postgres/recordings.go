package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/repo"
)

type RecordingStore struct {
	db DB
}

const (
	insertRecordingQuery = `INSERT INTO recordings (
		recording_id,
		session_id,
		title,
		manifest_key,
		manifest_sha256,
		size_bytes,
		metadata,
		created_at,
		created_by,
		integrity_sha256
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	selectRecordingQuery = `SELECT recording_id, session_id, title, manifest_key, manifest_sha256, size_bytes, metadata, created_at, created_by, integrity_sha256
	 FROM recordings
	 WHERE recording_id = $1`

	listRecordingsBaseQuery = `SELECT recording_id, session_id, title, manifest_key, manifest_sha256, size_bytes, metadata, created_at, created_by, integrity_sha256 FROM recordings`
)

func NewRecordingStore(db DB) *RecordingStore {
	if db == nil {
		return nil
	}
	return &RecordingStore{db: db}
}

func (s *RecordingStore) CreateRecording(ctx context.Context, recording domain.Recording) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("recording store not initialized")
	}
	if err := recording.Validate(); err != nil {
		return err
	}
	if err := requireIntegrity(recording.IntegritySHA256); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(recording.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		insertRecordingQuery,
		strings.TrimSpace(recording.ID),
		strings.TrimSpace(recording.SessionID),
		strings.TrimSpace(recording.Title),
		strings.TrimSpace(recording.ManifestKey),
		strings.TrimSpace(recording.ManifestSHA256),
		recording.SizeBytes,
		metadataJSON,
		normalizeTime(recording.CreatedAt),
		strings.TrimSpace(recording.CreatedBy),
		strings.TrimSpace(recording.IntegritySHA256),
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", handleUniqueViolation(err))
	}
	return nil
}

func (s *RecordingStore) GetRecording(ctx context.Context, id string) (domain.Recording, error) {
	if s == nil || s.db == nil {
		return domain.Recording{}, fmt.Errorf("recording store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Recording{}, fmt.Errorf("recording id is required")
	}
	var recording domain.Recording
	var metadataJSON []byte
	row := s.db.QueryRowContext(ctx, selectRecordingQuery, id)
	if err := row.Scan(&recording.ID, &recording.SessionID, &recording.Title, &recording.ManifestKey, &recording.ManifestSHA256, &recording.SizeBytes, &metadataJSON, &recording.CreatedAt, &recording.CreatedBy, &recording.IntegritySHA256); err != nil {
		return domain.Recording{}, handleNotFound(err)
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("decode metadata: %w", err)
	}
	recording.Metadata = meta
	return recording, nil
}

func (s *RecordingStore) ListRecordings(ctx context.Context, filter repo.RecordingFilter) ([]domain.Recording, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("recording store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if strings.TrimSpace(filter.SessionID) != "" {
		args = append(args, strings.TrimSpace(filter.SessionID))
		clauses = append(clauses, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.CreatedBy) != "" {
		args = append(args, strings.TrimSpace(filter.CreatedBy))
		clauses = append(clauses, fmt.Sprintf("created_by = $%d", len(args)))
	}

	query := listRecordingsBaseQuery
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	recordings := make([]domain.Recording, 0)
	for rows.Next() {
		var recording domain.Recording
		var metadataJSON []byte
		if err := rows.Scan(&recording.ID, &recording.SessionID, &recording.Title, &recording.ManifestKey, &recording.ManifestSHA256, &recording.SizeBytes, &metadataJSON, &recording.CreatedAt, &recording.CreatedBy, &recording.IntegritySHA256); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		recording.Metadata = meta
		recordings = append(recordings, recording)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return recordings, nil
}

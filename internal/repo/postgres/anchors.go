package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/repo"
)

type AnchorStore struct {
	db DB
}

const (
	insertAnchorQuery = `INSERT INTO recording_anchors (
		recording_id,
		anchored_at,
		chain_id,
		chain_name,
		tx_hash,
		explorer_url,
		proof_kind,
		proof,
		created_by,
		integrity_sha256
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	selectAnchorQuery = `SELECT recording_id, anchored_at, chain_id, chain_name, tx_hash, explorer_url, proof_kind, proof, created_by, integrity_sha256
	 FROM recording_anchors
	 WHERE recording_id = $1`
)

func NewAnchorStore(db DB) *AnchorStore {
	if db == nil {
		return nil
	}
	return &AnchorStore{db: db}
}

// CreateAnchor inserts the single anchor row for a recording. The
// primary key on recording_id makes a second anchor attempt surface as
// repo.ErrDuplicate.
func (s *AnchorStore) CreateAnchor(ctx context.Context, record domain.AnchorRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("anchor store not initialized")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if err := requireIntegrity(record.IntegritySHA256); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertAnchorQuery,
		strings.TrimSpace(record.RecordingID),
		record.AnchoredAt.UTC(),
		record.ChainID,
		strings.TrimSpace(record.ChainName),
		strings.TrimSpace(record.TxHash),
		strings.TrimSpace(record.ExplorerURL),
		string(record.ProofKind),
		[]byte(record.Proof),
		strings.TrimSpace(record.CreatedBy),
		strings.TrimSpace(record.IntegritySHA256),
	)
	if err != nil {
		if wrapped := handleUniqueViolation(err); errors.Is(wrapped, repo.ErrDuplicate) {
			return wrapped
		}
		return fmt.Errorf("insert anchor: %w", err)
	}
	return nil
}

func (s *AnchorStore) GetAnchor(ctx context.Context, recordingID string) (domain.AnchorRecord, error) {
	if s == nil || s.db == nil {
		return domain.AnchorRecord{}, fmt.Errorf("anchor store not initialized")
	}
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return domain.AnchorRecord{}, fmt.Errorf("recording id is required")
	}
	var record domain.AnchorRecord
	var proofKind string
	var proof []byte
	row := s.db.QueryRowContext(ctx, selectAnchorQuery, recordingID)
	if err := row.Scan(&record.RecordingID, &record.AnchoredAt, &record.ChainID, &record.ChainName, &record.TxHash, &record.ExplorerURL, &proofKind, &proof, &record.CreatedBy, &record.IntegritySHA256); err != nil {
		return domain.AnchorRecord{}, handleNotFound(err)
	}
	record.AnchoredAt = record.AnchoredAt.UTC()
	record.ProofKind = domain.ProofKind(proofKind)
	record.Proof = proof
	return record, nil
}

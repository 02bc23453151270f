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

// ProofKind identifies the anchoring back-end that produced a proof.
type ProofKind string

const (
	ProofKindMock      ProofKind = "mock"
	ProofKindLedger    ProofKind = "ledger"
	ProofKindTimestamp ProofKind = "timestamp"
)

// MockProof is the development back-end proof: a bare hash and timestamp.
type MockProof struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerProof is an on-chain proof with a transaction reference.
type LedgerProof struct {
	ChainID         int64  `json:"chain_id"`
	ChainName       string `json:"chain_name"`
	TxHash          string `json:"tx_hash"`
	ContractAddress string `json:"contract_address"`
	BlockNumber     int64  `json:"block_number"`
	ExplorerURL     string `json:"explorer_url"`
}

// TimestampProof is a proof-only back-end result carrying an opaque
// attestation blob; it exposes no transaction reference.
type TimestampProof struct {
	Proof       string `json:"proof"`
	BlockNumber int64  `json:"block_number"`
}

// Proof is the tagged union returned by the anchoring service.
type Proof struct {
	Kind      ProofKind       `json:"kind"`
	Mock      *MockProof      `json:"mock,omitempty"`
	Ledger    *LedgerProof    `json:"ledger,omitempty"`
	Timestamp *TimestampProof `json:"timestamp,omitempty"`
}

func (p Proof) Validate() error {
	switch p.Kind {
	case ProofKindMock:
		if p.Mock == nil {
			return errors.New("mock proof payload is required")
		}
	case ProofKindLedger:
		if p.Ledger == nil {
			return errors.New("ledger proof payload is required")
		}
		if strings.TrimSpace(p.Ledger.TxHash) == "" {
			return errors.New("ledger proof tx hash is required")
		}
	case ProofKindTimestamp:
		if p.Timestamp == nil {
			return errors.New("timestamp proof payload is required")
		}
		if strings.TrimSpace(p.Timestamp.Proof) == "" {
			return errors.New("timestamp proof blob is required")
		}
	default:
		return fmt.Errorf("unknown proof kind %q", p.Kind)
	}
	return nil
}

// AnchorRecord is the result of anchoring one recording to a ledger.
// TxHash and ExplorerURL are empty for proof-only back-ends.
type AnchorRecord struct {
	RecordingID     string          `json:"recording_id"`
	AnchoredAt      time.Time       `json:"anchored_at"`
	ChainID         int64           `json:"chain_id,omitempty"`
	ChainName       string          `json:"chain_name"`
	TxHash          string          `json:"tx_hash,omitempty"`
	ExplorerURL     string          `json:"explorer_url,omitempty"`
	ProofKind       ProofKind       `json:"proof_kind"`
	Proof           json.RawMessage `json:"proof"`
	CreatedBy       string          `json:"created_by,omitempty"`
	IntegritySHA256 string          `json:"integrity_sha256,omitempty"`
}

func (a AnchorRecord) Validate() error {
	if strings.TrimSpace(a.RecordingID) == "" {
		return errors.New("recording id is required")
	}
	if a.AnchoredAt.IsZero() {
		return errors.New("anchored at is required")
	}
	if strings.TrimSpace(string(a.ProofKind)) == "" {
		return errors.New("proof kind is required")
	}
	return nil
}

// DeriveAnchorRecord folds a tagged proof into the flat record the rest
// of the system renders and persists.
func DeriveAnchorRecord(recordingID string, anchoredAt time.Time, proof Proof) (AnchorRecord, error) {
	if strings.TrimSpace(recordingID) == "" {
		return AnchorRecord{}, errors.New("recording id is required")
	}
	if err := proof.Validate(); err != nil {
		return AnchorRecord{}, err
	}
	if anchoredAt.IsZero() {
		anchoredAt = time.Now().UTC()
	}

	record := AnchorRecord{
		RecordingID: strings.TrimSpace(recordingID),
		AnchoredAt:  anchoredAt.UTC(),
		ProofKind:   proof.Kind,
	}
	switch proof.Kind {
	case ProofKindMock:
		record.ChainName = "mock"
	case ProofKindLedger:
		record.ChainID = proof.Ledger.ChainID
		record.ChainName = strings.TrimSpace(proof.Ledger.ChainName)
		record.TxHash = strings.TrimSpace(proof.Ledger.TxHash)
		record.ExplorerURL = strings.TrimSpace(proof.Ledger.ExplorerURL)
	case ProofKindTimestamp:
		record.ChainName = "timestamp"
	}

	blob, err := json.Marshal(proof)
	if err != nil {
		return AnchorRecord{}, fmt.Errorf("marshal proof: %w", err)
	}
	record.Proof = blob

	integrity, err := ComputeAnchorIntegritySHA256(record)
	if err != nil {
		return AnchorRecord{}, err
	}
	record.IntegritySHA256 = integrity
	return record, nil
}

// ComputeAnchorIntegritySHA256 hashes the canonical JSON form of the
// record identity and proof so tampering with stored rows is detectable.
func ComputeAnchorIntegritySHA256(record AnchorRecord) (string, error) {
	type integrityInput struct {
		RecordingID string          `json:"recording_id"`
		AnchoredAt  time.Time       `json:"anchored_at"`
		ChainID     int64           `json:"chain_id,omitempty"`
		ChainName   string          `json:"chain_name"`
		TxHash      string          `json:"tx_hash,omitempty"`
		ProofKind   ProofKind       `json:"proof_kind"`
		Proof       json.RawMessage `json:"proof"`
	}

	in := integrityInput{
		RecordingID: strings.TrimSpace(record.RecordingID),
		AnchoredAt:  record.AnchoredAt.UTC(),
		ChainID:     record.ChainID,
		ChainName:   strings.TrimSpace(record.ChainName),
		TxHash:      strings.TrimSpace(record.TxHash),
		ProofKind:   record.ProofKind,
		Proof:       record.Proof,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

package anchor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iceinvein/notari-go/internal/domain"
)

// DefaultErrorTTL is how long a failed confirm stays visible before the
// message clears on its own.
const DefaultErrorTTL = 5 * time.Second

var (
	// ErrConfirmPending rejects a concurrent confirm for the same
	// recording; the remote action is irreversible and non-idempotent.
	ErrConfirmPending = errors.New("anchor confirm already in flight")
	// ErrAlreadyAnchored rejects re-anchoring a recording that holds a
	// record, locally derived or externally supplied.
	ErrAlreadyAnchored = errors.New("recording is already anchored")
	// ErrNotReady rejects confirms while the capability is disabled or
	// lacks a signing credential.
	ErrNotReady = errors.New("anchoring is not available")
)

// State is the single indicator rendered for a recording. Exactly one
// applies at a time; see StateFor for the precedence.
type State string

const (
	StateAnchored          State = "anchored"
	StatePending           State = "pending"
	StateError             State = "error"
	StateDisabled          State = State(ReadinessDisabled)
	StateCredentialMissing State = State(ReadinessCredentialMissing)
	StateReady             State = State(ReadinessReady)
)

// UpdatedFunc notifies the holder that a recording gained an anchor
// record so dependent views can refresh.
type UpdatedFunc func(recordingID string, record domain.AnchorRecord)

// ConfirmerOptions tunes the confirmer; zero values take defaults.
type ConfirmerOptions struct {
	OnUpdated UpdatedFunc
	Chains    ChainRegistry
	ErrorTTL  time.Duration
}

// Confirmer issues the one-shot anchoring call for a recording and
// reconciles the optimistic local outcome against external state. A
// locally derived record is sticky: once the remote call succeeded the
// local copy is authoritative even if a later refresh of external state
// lags behind.
type Confirmer struct {
	client    Client
	cfg       Config
	onUpdated UpdatedFunc
	chains    ChainRegistry
	errorTTL  time.Duration

	mu      sync.Mutex
	pending map[string]bool
	local   map[string]domain.AnchorRecord
	errs    map[string]string
	errGen  map[string]uint64
}

func NewConfirmer(client Client, cfg Config, opts ConfirmerOptions) *Confirmer {
	errorTTL := opts.ErrorTTL
	if errorTTL <= 0 {
		errorTTL = DefaultErrorTTL
	}
	return &Confirmer{
		client:    client,
		cfg:       cfg,
		onUpdated: opts.OnUpdated,
		chains:    opts.Chains,
		errorTTL:  errorTTL,
		pending:   make(map[string]bool),
		local:     make(map[string]domain.AnchorRecord),
		errs:      make(map[string]string),
		errGen:    make(map[string]uint64),
	}
}

// Config returns the capability configuration the confirmer was built
// with.
func (c *Confirmer) Config() Config {
	return c.cfg
}

// Confirm anchors one recording. At most one call per recording is in
// flight; the duplicate loser gets ErrConfirmPending. On success the
// derived record becomes the sticky local anchor state and the updated
// hook fires. On failure the error message is held for the error TTL
// and then clears without user action.
func (c *Confirmer) Confirm(ctx context.Context, recordingID, manifestRef string) (domain.AnchorRecord, error) {
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return domain.AnchorRecord{}, errors.New("recording id is required")
	}

	c.mu.Lock()
	if record, ok := c.local[recordingID]; ok {
		c.mu.Unlock()
		return record, ErrAlreadyAnchored
	}
	if c.pending[recordingID] {
		c.mu.Unlock()
		return domain.AnchorRecord{}, ErrConfirmPending
	}
	if readiness := c.cfg.Readiness(); readiness != ReadinessReady {
		c.mu.Unlock()
		return domain.AnchorRecord{}, fmt.Errorf("%w: %s", ErrNotReady, readiness)
	}
	c.pending[recordingID] = true
	c.mu.Unlock()

	result, err := c.client.AnchorArtifact(ctx, manifestRef)
	if err != nil {
		c.failConfirm(recordingID, err)
		return domain.AnchorRecord{}, err
	}

	record, err := domain.DeriveAnchorRecord(recordingID, result.AnchoredAt, result.Proof)
	if err != nil {
		c.failConfirm(recordingID, err)
		return domain.AnchorRecord{}, err
	}
	if record.ExplorerURL == "" && record.TxHash != "" {
		record.ExplorerURL = c.chains.ExplorerTxURL(record.ChainID, record.TxHash)
	}
	if record.ChainName == "" || record.ChainName == "mock" || record.ChainName == "timestamp" {
		if spec, ok := c.chains.Lookup(record.ChainID); ok {
			record.ChainName = spec.Name
		}
	}

	c.mu.Lock()
	delete(c.pending, recordingID)
	c.local[recordingID] = record
	delete(c.errs, recordingID)
	c.errGen[recordingID]++
	c.mu.Unlock()

	if c.onUpdated != nil {
		c.onUpdated(recordingID, record)
	}
	return record, nil
}

// failConfirm records the transient error and arms its expiry. Each
// failure arms an independent timer; a stale timer firing after a newer
// failure must not clear the newer message, hence the generation check.
func (c *Confirmer) failConfirm(recordingID string, err error) {
	c.mu.Lock()
	delete(c.pending, recordingID)
	c.errGen[recordingID]++
	gen := c.errGen[recordingID]
	c.errs[recordingID] = err.Error()
	c.mu.Unlock()

	time.AfterFunc(c.errorTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.errGen[recordingID] == gen {
			delete(c.errs, recordingID)
		}
	})
}

// Record merges the two anchor sources: the sticky local record wins
// over the externally supplied one.
func (c *Confirmer) Record(recordingID string, external *domain.AnchorRecord) (domain.AnchorRecord, bool) {
	c.mu.Lock()
	record, ok := c.local[strings.TrimSpace(recordingID)]
	c.mu.Unlock()
	if ok {
		return record, true
	}
	if external != nil {
		return *external, true
	}
	return domain.AnchorRecord{}, false
}

// LastError returns the transient confirm error, if one is still
// within its display window.
func (c *Confirmer) LastError(recordingID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.errs[strings.TrimSpace(recordingID)]
	return msg, ok
}

// StateFor resolves the single indicator for a recording:
// anchored > pending > error > disabled > credential-missing > ready.
func (c *Confirmer) StateFor(recordingID string, external *domain.AnchorRecord) State {
	recordingID = strings.TrimSpace(recordingID)

	c.mu.Lock()
	_, anchored := c.local[recordingID]
	pending := c.pending[recordingID]
	_, errored := c.errs[recordingID]
	c.mu.Unlock()

	switch {
	case anchored || external != nil:
		return StateAnchored
	case pending:
		return StatePending
	case errored:
		return StateError
	}

	switch c.cfg.Readiness() {
	case ReadinessDisabled:
		return StateDisabled
	case ReadinessCredentialMissing:
		return StateCredentialMissing
	default:
		return StateReady
	}
}

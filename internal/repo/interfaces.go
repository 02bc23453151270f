package repo

import (
	"context"
	"errors"

	"github.com/iceinvein/notari-go/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a uniqueness conflict, e.g. a second anchor
	// record for the same recording.
	ErrDuplicate = errors.New("duplicate")
)

type RecordingFilter struct {
	SessionID string
	CreatedBy string
	Limit     int
}

type StageEventFilter struct {
	SessionID string
	AfterID   int64
	Limit     int
}

// RecordingRepository manages immutable recording rows.
type RecordingRepository interface {
	CreateRecording(ctx context.Context, recording domain.Recording) error
	GetRecording(ctx context.Context, id string) (domain.Recording, error)
	ListRecordings(ctx context.Context, filter RecordingFilter) ([]domain.Recording, error)
}

// StageEventRepository is the append-only log of pipeline lifecycle
// events, ordered per session by event id.
type StageEventRepository interface {
	AppendStageEvent(ctx context.Context, event domain.StageEventRecord) (int64, error)
	ListStageEvents(ctx context.Context, filter StageEventFilter) ([]domain.StageEventRecord, error)
}

// AnchorRepository holds at most one anchor record per recording.
type AnchorRepository interface {
	CreateAnchor(ctx context.Context, record domain.AnchorRecord) error
	GetAnchor(ctx context.Context, recordingID string) (domain.AnchorRecord, error)
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/repo"
)

type StageEventStore struct {
	db DB
}

const (
	insertStageEventQuery = `INSERT INTO pipeline_stage_events (
		session_id,
		kind,
		payload,
		recorded_at
	) VALUES ($1,$2,$3,$4)
	RETURNING event_id`

	listStageEventsQuery = `SELECT event_id, session_id, kind, payload, recorded_at
	 FROM pipeline_stage_events
	 WHERE session_id = $1 AND event_id > $2
	 ORDER BY event_id ASC`
)

func NewStageEventStore(db DB) *StageEventStore {
	if db == nil {
		return nil
	}
	return &StageEventStore{db: db}
}

func (s *StageEventStore) AppendStageEvent(ctx context.Context, event domain.StageEventRecord) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("stage event store not initialized")
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.QueryRowContext(
		ctx,
		insertStageEventQuery,
		strings.TrimSpace(event.SessionID),
		strings.TrimSpace(event.Kind),
		[]byte(event.Payload),
		normalizeTime(event.RecordedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert stage event: %w", err)
	}
	return id, nil
}

func (s *StageEventStore) ListStageEvents(ctx context.Context, filter repo.StageEventFilter) ([]domain.StageEventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("stage event store not initialized")
	}
	sessionID := strings.TrimSpace(filter.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	query := listStageEventsQuery
	args := []any{sessionID, filter.AfterID}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.StageEventRecord, 0)
	for rows.Next() {
		var event domain.StageEventRecord
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Kind, &payload, &event.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		event.Payload = payload
		event.RecordedAt = event.RecordedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	return events, nil
}

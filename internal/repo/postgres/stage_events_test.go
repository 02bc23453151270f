package postgres

import (
	"strings"
	"testing"
)

func TestStageEventQueriesSessionScoped(t *testing.T) {
	if !strings.Contains(insertStageEventQuery, "RETURNING event_id") {
		t.Fatalf("expected RETURNING event_id in insert query")
	}
	if !strings.Contains(listStageEventsQuery, "session_id = $1") {
		t.Fatalf("expected session_id predicate in list query")
	}
	if !strings.Contains(listStageEventsQuery, "event_id > $2") {
		t.Fatalf("expected after-id predicate in list query")
	}
	if !strings.Contains(listStageEventsQuery, "ORDER BY event_id ASC") {
		t.Fatalf("expected append order in list query")
	}
}

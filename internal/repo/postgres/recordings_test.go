package postgres

import (
	"strings"
	"testing"
)

func TestRecordingQueries(t *testing.T) {
	if !strings.Contains(insertRecordingQuery, "integrity_sha256") {
		t.Fatalf("expected integrity column in insert query")
	}
	if !strings.Contains(selectRecordingQuery, "recording_id = $1") {
		t.Fatalf("expected recording_id predicate in select query")
	}
	if !strings.Contains(listRecordingsBaseQuery, "FROM recordings") {
		t.Fatalf("expected recordings table in list query")
	}
}

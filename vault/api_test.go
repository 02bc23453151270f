package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iceinvein/notari-go/internal/anchor"
	"github.com/iceinvein/notari-go/internal/domain"
	"github.com/iceinvein/notari-go/internal/platform/auth"
	platformstore "github.com/iceinvein/notari-go/internal/platform/objectstore"
	"github.com/iceinvein/notari-go/internal/pipeline"
	"github.com/iceinvein/notari-go/internal/repo"
	storageobjectstore "github.com/iceinvein/notari-go/internal/storage/objectstore"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	nextID int64
	events []domain.StageEventRecord
}

func (f *fakeEventRepo) AppendStageEvent(ctx context.Context, event domain.StageEventRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	event.EventID = f.nextID
	f.events = append(f.events, event)
	return event.EventID, nil
}

func (f *fakeEventRepo) ListStageEvents(ctx context.Context, filter repo.StageEventFilter) ([]domain.StageEventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StageEventRecord, 0)
	for _, event := range f.events {
		if event.SessionID == filter.SessionID && event.EventID > filter.AfterID {
			out = append(out, event)
		}
	}
	return out, nil
}

type fakeRecordingRepo struct {
	mu         sync.Mutex
	recordings map[string]domain.Recording
}

func newFakeRecordingRepo() *fakeRecordingRepo {
	return &fakeRecordingRepo{recordings: make(map[string]domain.Recording)}
}

func (f *fakeRecordingRepo) CreateRecording(ctx context.Context, recording domain.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recordings[recording.ID]; ok {
		return repo.ErrDuplicate
	}
	f.recordings[recording.ID] = recording
	return nil
}

func (f *fakeRecordingRepo) GetRecording(ctx context.Context, id string) (domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recording, ok := f.recordings[id]
	if !ok {
		return domain.Recording{}, repo.ErrNotFound
	}
	return recording, nil
}

func (f *fakeRecordingRepo) ListRecordings(ctx context.Context, filter repo.RecordingFilter) ([]domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Recording, 0)
	for _, recording := range f.recordings {
		if filter.SessionID != "" && recording.SessionID != filter.SessionID {
			continue
		}
		out = append(out, recording)
	}
	return out, nil
}

type fakeAnchorRepo struct {
	mu      sync.Mutex
	anchors map[string]domain.AnchorRecord
	getErr  error
}

func newFakeAnchorRepo() *fakeAnchorRepo {
	return &fakeAnchorRepo{anchors: make(map[string]domain.AnchorRecord)}
}

func (f *fakeAnchorRepo) CreateAnchor(ctx context.Context, record domain.AnchorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.anchors[record.RecordingID]; ok {
		return repo.ErrDuplicate
	}
	f.anchors[record.RecordingID] = record
	return nil
}

func (f *fakeAnchorRepo) GetAnchor(ctx context.Context, recordingID string) (domain.AnchorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.AnchorRecord{}, f.getErr
	}
	record, ok := f.anchors[recordingID]
	if !ok {
		return domain.AnchorRecord{}, repo.ErrNotFound
	}
	return record, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]string)}
}

func (f *fakeStore) put(bucket, key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = content
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, storageobjectstore.ObjectInfo, error) {
	f.mu.Lock()
	content, ok := f.objects[bucket+"/"+key]
	f.mu.Unlock()
	if !ok {
		return nil, storageobjectstore.ObjectInfo{}, storageobjectstore.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(content)), storageobjectstore.ObjectInfo{Key: key, Size: int64(len(content))}, nil
}

func (f *fakeStore) PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?put", nil
}

func (f *fakeStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?get", nil
}

type fakeAnchorClient struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *fakeAnchorClient) GetConfig(ctx context.Context) (anchor.Config, error) {
	return anchor.Config{}, nil
}

func (c *fakeAnchorClient) anchorCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeAnchorClient) AnchorArtifact(ctx context.Context, manifestRef string) (anchor.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return anchor.Result{}, c.err
	}
	return anchor.Result{
		Success:    true,
		AnchoredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Proof: domain.Proof{
			Kind: domain.ProofKindMock,
			Mock: &domain.MockProof{Hash: "abc", Timestamp: time.Unix(0, 0).UTC()},
		},
	}, nil
}

type testHarness struct {
	api        *vaultAPI
	mux        *http.ServeMux
	events     *fakeEventRepo
	recordings *fakeRecordingRepo
	anchors    *fakeAnchorRepo
	store      *fakeStore
	client     *fakeAnchorClient
	registry   *pipeline.Registry
}

func newTestHarness(t *testing.T, anchorCfg anchor.Config) *testHarness {
	t.Helper()
	events := &fakeEventRepo{}
	recordings := newFakeRecordingRepo()
	anchors := newFakeAnchorRepo()
	store := newFakeStore()
	bus := pipeline.NewBus()
	registry := pipeline.NewRegistry(bus, pipeline.RegistryOptions{})
	t.Cleanup(registry.Close)

	client := &fakeAnchorClient{}
	confirmer := anchor.NewConfirmer(client, anchorCfg, anchor.ConfirmerOptions{})
	storeCfg := platformstore.Config{
		Endpoint:         "localhost:9000",
		AccessKey:        "a",
		SecretKey:        "b",
		Region:           "us-east-1",
		BucketRecordings: "recordings",
		BucketManifests:  "manifests",
	}

	api := newVaultAPI(
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		events, recordings, anchors, bus, registry, confirmer,
		store, storeCfg, time.Minute, nil,
	)
	mux := http.NewServeMux()
	api.register(mux)

	return &testHarness{
		api:        api,
		mux:        mux,
		events:     events,
		recordings: recordings,
		anchors:    anchors,
		store:      store,
		client:     client,
		registry:   registry,
	}
}

func (h *testHarness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), auth.Identity{
		Subject: "tester",
		Roles:   []string{"admin"},
	}))
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func ingestBody(t *testing.T, event pipeline.Event) string {
	t.Helper()
	payload, err := pipeline.EncodeEvent(event)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	blob, err := json.Marshal(map[string]any{
		"kind":    event.Kind(),
		"payload": json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return string(blob)
}

func mockReadyConfig() anchor.Config {
	return anchor.Config{Enabled: true, Environment: "mock"}
}

func TestIngestEventAndProgress(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())

	events := []pipeline.Event{
		&pipeline.StartedEvent{SessionID: "s1", PipelineName: "export", TotalStages: 3},
		&pipeline.StageStartedEvent{SessionID: "s1", StageIndex: 0, StageName: "capture"},
		&pipeline.StageCompletedEvent{SessionID: "s1", StageIndex: 0, StageName: "capture", DurationMs: 120},
	}
	for _, event := range events {
		rec := h.do(t, http.MethodPost, "/pipeline/events", ingestBody(t, event))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("ingest status=%d body=%s", rec.Code, rec.Body.String())
		}
	}

	rec := h.do(t, http.MethodGet, "/sessions/s1/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got sessionProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal progress: %v", err)
	}
	if got.SessionID != "s1" || got.PipelineName != "export" {
		t.Fatalf("progress=%+v", got)
	}
	if len(got.Stages) != 3 || got.Stages[0].Status != "completed" {
		t.Fatalf("stages=%+v", got.Stages)
	}
	if got.Stages[0].DurationMs == nil || *got.Stages[0].DurationMs != 120 {
		t.Fatalf("stage duration=%+v", got.Stages[0])
	}
}

func TestIngestRejectsUnknownKind(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())

	rec := h.do(t, http.MethodPost, "/pipeline/events", `{"kind":"pipeline_paused","payload":{"session_id":"s1"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown_event_kind") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestProgressReplaysPersistedEvents(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())

	events := []pipeline.Event{
		&pipeline.StartedEvent{SessionID: "s2", PipelineName: "export", TotalStages: 2},
		&pipeline.StageCompletedEvent{SessionID: "s2", StageIndex: 0, StageName: "capture", DurationMs: 50},
		&pipeline.CompletedEvent{SessionID: "s2", TotalDurationMs: 80},
	}
	for _, event := range events {
		if rec := h.do(t, http.MethodPost, "/pipeline/events", ingestBody(t, event)); rec.Code != http.StatusAccepted {
			t.Fatalf("ingest status=%d", rec.Code)
		}
	}

	// Drop the live tracker; progress must come from the stored log.
	h.registry.Release("s2")

	rec := h.do(t, http.MethodGet, "/sessions/s2/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got sessionProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal progress: %v", err)
	}
	if !got.IsComplete {
		t.Fatalf("replayed progress not complete: %+v", got)
	}
	if got.TotalDurationMs == nil || *got.TotalDurationMs != 80 {
		t.Fatalf("total duration=%+v", got.TotalDurationMs)
	}
}

func TestProgressUnknownSession(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	rec := h.do(t, http.MethodGet, "/sessions/nope/progress", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestCreateAndGetRecording(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())

	sha := strings.Repeat("ab", 32)
	rec := h.do(t, http.MethodPost, "/recordings", fmt.Sprintf(
		`{"session_id":"s1","title":"demo","manifest_sha256":"%s","size_bytes":1024}`, sha))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created recordingView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal recording: %v", err)
	}
	if created.RecordingID == "" || created.UploadURL == "" {
		t.Fatalf("created=%+v", created)
	}
	if created.AnchorState != string(anchor.StateReady) {
		t.Fatalf("anchor state=%q, want ready", created.AnchorState)
	}

	rec = h.do(t, http.MethodGet, "/recordings/"+created.RecordingID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", rec.Code, rec.Body.String())
	}
	var fetched recordingView
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("unmarshal recording: %v", err)
	}
	if fetched.ManifestURL == "" || fetched.ManifestSHA256 != sha {
		t.Fatalf("fetched=%+v", fetched)
	}
}

func TestCreateRecordingRejectsBadManifestHash(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	rec := h.do(t, http.MethodPost, "/recordings", `{"session_id":"s1","manifest_sha256":"short","size_bytes":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func createTestRecording(t *testing.T, h *testHarness) recordingView {
	t.Helper()
	sha := strings.Repeat("cd", 32)
	rec := h.do(t, http.MethodPost, "/recordings", fmt.Sprintf(
		`{"session_id":"s9","manifest_sha256":"%s","size_bytes":10}`, sha))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created recordingView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal recording: %v", err)
	}
	return created
}

func TestAnchorRecordingFlow(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	created := createTestRecording(t, h)

	rec := h.do(t, http.MethodPost, "/recordings/"+created.RecordingID+"/anchor", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("anchor status=%d body=%s", rec.Code, rec.Body.String())
	}
	var record domain.AnchorRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal anchor: %v", err)
	}
	if record.RecordingID != created.RecordingID || record.ProofKind != domain.ProofKindMock {
		t.Fatalf("record=%+v", record)
	}
	if _, err := h.anchors.GetAnchor(context.Background(), created.RecordingID); err != nil {
		t.Fatalf("anchor not persisted: %v", err)
	}

	rec = h.do(t, http.MethodPost, "/recordings/"+created.RecordingID+"/anchor", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second anchor status=%d, want 409", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/recordings/"+created.RecordingID+"/anchor", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get anchor status=%d", rec.Code)
	}
}

func TestAnchorNotReady(t *testing.T) {
	h := newTestHarness(t, anchor.Config{Enabled: false})
	created := createTestRecording(t, h)

	rec := h.do(t, http.MethodPost, "/recordings/"+created.RecordingID+"/anchor", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}

func TestAnchorUnknownRecording(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	rec := h.do(t, http.MethodPost, "/recordings/missing/anchor", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestAnchorConfigView(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	rec := h.do(t, http.MethodGet, "/anchor/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if body["enabled"] != true || body["readiness"] != "ready" {
		t.Fatalf("config=%v", body)
	}
}

func TestVerifyRecordingManifest(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())

	manifest := `{"artifact":"demo","chunks":["c1","c2"]}`
	sum := sha256.Sum256([]byte(manifest))
	sha := hex.EncodeToString(sum[:])

	rec := h.do(t, http.MethodPost, "/recordings", fmt.Sprintf(
		`{"session_id":"s5","manifest_sha256":"%s","size_bytes":%d}`, sha, len(manifest)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created recordingView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal recording: %v", err)
	}

	// No upload yet.
	rec = h.do(t, http.MethodGet, "/recordings/"+created.RecordingID+"/verification", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verification status=%d body=%s", rec.Code, rec.Body.String())
	}
	var result verificationView
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}
	if result.Verified || result.Reason != "manifest_missing" {
		t.Fatalf("before upload: %+v", result)
	}

	h.store.put("manifests", created.ManifestKey, manifest)
	rec = h.do(t, http.MethodGet, "/recordings/"+created.RecordingID+"/verification", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verification status=%d body=%s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}
	if !result.Verified || result.ComputedSHA256 != sha {
		t.Fatalf("after upload: %+v", result)
	}

	h.store.put("manifests", created.ManifestKey, manifest+"tampered")
	rec = h.do(t, http.MethodGet, "/recordings/"+created.RecordingID+"/verification", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}
	if result.Verified || result.Reason != "manifest_digest_mismatch" {
		t.Fatalf("after tamper: %+v", result)
	}
}

func TestAnchorFailsClosedWhenStateUnknown(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	created := createTestRecording(t, h)

	h.anchors.getErr = errors.New("connection refused")

	rec := h.do(t, http.MethodPost, "/recordings/"+created.RecordingID+"/anchor", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "anchor_state_unavailable") {
		t.Fatalf("body=%s", rec.Body.String())
	}
	if got := h.client.anchorCalls(); got != 0 {
		t.Fatalf("remote anchor calls=%d, want 0", got)
	}
}

func TestAutoAnchorConsultsPersistedState(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx := context.Background()

	// Already anchored in a previous process lifetime: the confirmer's
	// in-memory map is empty but the row exists.
	anchored := domain.Recording{
		ID:             "rec-anchored",
		SessionID:      "s-done",
		ManifestKey:    "manifests/rec-anchored.json",
		ManifestSHA256: strings.Repeat("ef", 32),
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.recordings.CreateRecording(ctx, anchored); err != nil {
		t.Fatalf("seed recording: %v", err)
	}
	if err := h.anchors.CreateAnchor(ctx, domain.AnchorRecord{
		RecordingID: anchored.ID,
		AnchoredAt:  time.Now().UTC(),
		ChainName:   "mock",
		ProofKind:   domain.ProofKindMock,
	}); err != nil {
		t.Fatalf("seed anchor: %v", err)
	}

	autoAnchorSession(logger, h.recordings, h.anchors, h.api.confirmer, "s-done")
	if got := h.client.anchorCalls(); got != 0 {
		t.Fatalf("anchored recording triggered %d remote calls, want 0", got)
	}

	fresh := domain.Recording{
		ID:             "rec-fresh",
		SessionID:      "s-fresh",
		ManifestKey:    "manifests/rec-fresh.json",
		ManifestSHA256: strings.Repeat("01", 32),
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.recordings.CreateRecording(ctx, fresh); err != nil {
		t.Fatalf("seed recording: %v", err)
	}

	autoAnchorSession(logger, h.recordings, h.anchors, h.api.confirmer, "s-fresh")
	if got := h.client.anchorCalls(); got != 1 {
		t.Fatalf("fresh recording triggered %d remote calls, want 1", got)
	}
	if _, err := h.anchors.GetAnchor(ctx, fresh.ID); err != nil {
		t.Fatalf("auto-anchor not persisted: %v", err)
	}
}

func TestAutoAnchorSkipsWhenStateUnknown(t *testing.T) {
	h := newTestHarness(t, mockReadyConfig())
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx := context.Background()

	recording := domain.Recording{
		ID:             "rec-unknown",
		SessionID:      "s-unknown",
		ManifestKey:    "manifests/rec-unknown.json",
		ManifestSHA256: strings.Repeat("23", 32),
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.recordings.CreateRecording(ctx, recording); err != nil {
		t.Fatalf("seed recording: %v", err)
	}
	h.anchors.getErr = errors.New("connection refused")

	autoAnchorSession(logger, h.recordings, h.anchors, h.api.confirmer, "s-unknown")
	if got := h.client.anchorCalls(); got != 0 {
		t.Fatalf("unknown anchor state triggered %d remote calls, want 0", got)
	}
}

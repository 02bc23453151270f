package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type apiClient struct {
	baseURL   string
	token     string
	requestID string
	http      *http.Client
}

func newAPIClient(baseURL, token, requestID string) *apiClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &apiClient{
		baseURL:   baseURL,
		token:     strings.TrimSpace(token),
		requestID: strings.TrimSpace(requestID),
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(req *http.Request) (*http.Response, []byte, error) {
	if c.requestID != "" {
		req.Header.Set("X-Request-Id", c.requestID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, body, fmt.Errorf("http %s %s: status=%d body=%s", req.Method, req.URL.String(), resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, body, nil
}

func (c *apiClient) getJSON(path string, out any) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	_, body, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) postJSON(path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	_, body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

type anchorConfigView struct {
	Enabled     bool   `json:"enabled"`
	Environment string `json:"environment"`
	ChainName   string `json:"chain_name"`
	Readiness   string `json:"readiness"`
}

type recordingView struct {
	RecordingID    string `json:"recording_id"`
	SessionID      string `json:"session_id"`
	ManifestKey    string `json:"manifest_key"`
	ManifestSHA256 string `json:"manifest_sha256"`
	UploadURL      string `json:"upload_url"`
	AnchorState    string `json:"anchor_state"`
}

type progressView struct {
	SessionID  string  `json:"session_id"`
	Progress   float64 `json:"progress"`
	IsComplete bool    `json:"is_complete"`
	Stages     []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"stages"`
}

type anchorView struct {
	RecordingID string `json:"recording_id"`
	ChainName   string `json:"chain_name"`
	TxHash      string `json:"tx_hash"`
	ProofKind   string `json:"proof_kind"`
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	now := time.Now().UTC()
	defaultRequestID := fmt.Sprintf("demo-%s", now.Format("20060102T150405Z"))
	defaultSession := "demo-session-" + now.Format("20060102-150405")

	var (
		baseURL   = flag.String("vault", envOr("NOTARI_VAULT_URL", "http://localhost:8080"), "Vault base URL")
		token     = flag.String("token", envOr("NOTARI_BEARER_TOKEN", ""), "Bearer token (optional; required for OIDC mode)")
		requestID = flag.String("request-id", envOr("NOTARI_DEMO_REQUEST_ID", defaultRequestID), "X-Request-Id for correlation")
		sessionID = flag.String("session", envOr("NOTARI_DEMO_SESSION", defaultSession), "Recording session id")
	)
	flag.Parse()

	client := newAPIClient(*baseURL, *token, *requestID)

	fmt.Printf("==> notari demo (vault=%s, request_id=%s)\n", client.baseURL, client.requestID)

	// 1) Anchoring capability
	var cfg anchorConfigView
	if err := client.getJSON("/anchor/config", &cfg); err != nil {
		die("fetch anchor config", err)
	}
	fmt.Printf("==> anchoring: enabled=%t env=%s readiness=%s\n", cfg.Enabled, cfg.Environment, cfg.Readiness)

	// 2) Register a recording with a deterministic manifest
	manifest := fmt.Sprintf(`{"session_id":%q,"created_at":%q,"files":[{"name":"recording.webm","size":1024}]}`, *sessionID, now.Format(time.RFC3339))
	sum := sha256.Sum256([]byte(manifest))
	manifestSHA := hex.EncodeToString(sum[:])

	var created recordingView
	if err := client.postJSON("/recordings", map[string]any{
		"session_id":      *sessionID,
		"title":           "Demo recording",
		"manifest_sha256": manifestSHA,
		"size_bytes":      len(manifest),
		"metadata":        map[string]any{"source": "demo"},
	}, &created); err != nil {
		die("create recording", err)
	}
	fmt.Printf("==> created recording: %s (manifest=%s state=%s)\n", created.RecordingID, created.ManifestKey, created.AnchorState)

	// 3) Upload the manifest through the presigned URL, then have the
	// vault re-hash it
	if created.UploadURL != "" {
		if err := uploadManifest(created.UploadURL, manifest); err != nil {
			die("upload manifest", err)
		}
		fmt.Printf("==> uploaded manifest (%d bytes, sha256=%s)\n", len(manifest), manifestSHA[:12]+"...")

		var verification struct {
			Verified bool   `json:"verified"`
			Reason   string `json:"reason"`
		}
		if err := client.getJSON("/recordings/"+created.RecordingID+"/verification", &verification); err != nil {
			die("verify manifest", err)
		}
		if !verification.Verified {
			die("verify manifest", fmt.Errorf("reason=%s", verification.Reason))
		}
		fmt.Printf("==> manifest verified against registered digest\n")
	}

	// 4) Drive a full pipeline run for the session
	stages := []string{"capture", "encode", "manifest"}
	ingest(client, "pipeline_started", map[string]any{
		"session_id":    *sessionID,
		"pipeline_name": "export",
		"total_stages":  len(stages),
	})
	start := time.Now()
	for i, name := range stages {
		ingest(client, "pipeline_stage_started", map[string]any{
			"session_id":  *sessionID,
			"stage_index": i,
			"stage_name":  name,
		})
		ingest(client, "pipeline_stage_completed", map[string]any{
			"session_id":  *sessionID,
			"stage_index": i,
			"stage_name":  name,
			"duration_ms": 25,
		})
	}
	ingest(client, "pipeline_completed", map[string]any{
		"session_id":        *sessionID,
		"total_duration_ms": time.Since(start).Milliseconds(),
	})

	var progress progressView
	if err := client.getJSON("/sessions/"+*sessionID+"/progress", &progress); err != nil {
		die("fetch progress", err)
	}
	fmt.Printf("==> pipeline progress: %.0f%% complete=%t stages=%d\n", progress.Progress*100, progress.IsComplete, len(progress.Stages))

	// 5) Anchor when the capability is ready
	if cfg.Readiness != "ready" {
		fmt.Printf("==> skipping anchor (readiness=%s)\n", cfg.Readiness)
		return
	}
	var anchored anchorView
	if err := client.postJSON("/recordings/"+created.RecordingID+"/anchor", nil, &anchored); err != nil {
		die("anchor recording", err)
	}
	fmt.Printf("==> anchored recording: chain=%s proof=%s tx=%s\n", anchored.ChainName, anchored.ProofKind, anchored.TxHash)
}

func ingest(client *apiClient, kind string, payload map[string]any) {
	err := client.postJSON("/pipeline/events", map[string]any{
		"kind":    kind,
		"payload": payload,
	}, nil)
	if err != nil {
		die("ingest "+kind, err)
	}
}

func uploadManifest(uploadURL, manifest string) error {
	req, err := http.NewRequest(http.MethodPut, uploadURL, strings.NewReader(manifest))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func die(step string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", step, err)
	os.Exit(1)
}

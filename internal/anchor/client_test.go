package anchor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iceinvein/notari-go/internal/domain"
)

func TestHTTPClientGetConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/config" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("authorization=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"enabled":true,"environment":"base-sepolia","chain_id":84532,"has_wallet":true}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "token-1", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() err=%v", err)
	}
	cfg, err := client.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig() err=%v", err)
	}
	if !cfg.Enabled || cfg.ChainID != 84532 || !cfg.HasWallet {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestHTTPClientAnchorArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/anchors" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"success": true,
			"anchored_at": "2025-06-01T12:00:00Z",
			"proof": {"kind": "mock", "mock": {"hash": "abc", "timestamp": "2025-06-01T12:00:00Z"}}
		}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() err=%v", err)
	}
	result, err := client.AnchorArtifact(context.Background(), "manifests/rec-1.json")
	if err != nil {
		t.Fatalf("AnchorArtifact() err=%v", err)
	}
	if !result.Success || result.Proof.Kind != domain.ProofKindMock {
		t.Fatalf("result=%+v", result)
	}
}

func TestHTTPClientAnchorArtifactErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"chain unavailable"}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() err=%v", err)
	}
	_, err = client.AnchorArtifact(context.Background(), "ref")
	if err == nil || !strings.Contains(err.Error(), "chain unavailable") {
		t.Fatalf("AnchorArtifact() err=%v, want error body surfaced", err)
	}
}

func TestHTTPClientAnchorArtifactRejectsEmptyRef(t *testing.T) {
	client, err := NewHTTPClient("http://localhost:1", "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() err=%v", err)
	}
	if _, err := client.AnchorArtifact(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty manifest ref")
	}
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient("  ", "", time.Second); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

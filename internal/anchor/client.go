package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/iceinvein/notari-go/internal/domain"
)

// Result is the anchoring service's response to an anchor request.
type Result struct {
	Success    bool         `json:"success"`
	AnchoredAt time.Time    `json:"anchored_at"`
	Proof      domain.Proof `json:"proof"`
}

// Client is the remote anchoring service as seen by this layer.
type Client interface {
	GetConfig(ctx context.Context) (Config, error)
	AnchorArtifact(ctx context.Context, manifestRef string) (Result, error)
}

// HTTPClient talks to the anchoring service over JSON/HTTP.
type HTTPClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, authToken string, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("anchoring service base url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		authToken:  strings.TrimSpace(authToken),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// NewOAuthHTTPClient authenticates to the anchoring service with the
// client-credentials grant; tokens are fetched and refreshed per
// request through the oauth2 transport.
func NewOAuthHTTPClient(ctx context.Context, baseURL string, creds clientcredentials.Config, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("anchoring service base url is required")
	}
	if strings.TrimSpace(creds.TokenURL) == "" {
		return nil, errors.New("oauth token url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := creds.Client(ctx)
	httpClient.Timeout = timeout
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

func (c *HTTPClient) GetConfig(ctx context.Context) (Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config", nil)
	if err != nil {
		return Config{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Config{}, fmt.Errorf("get anchor config: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Config{}, fmt.Errorf("get anchor config: %s", readErrorBody(resp))
	}
	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode anchor config: %w", err)
	}
	return cfg, nil
}

func (c *HTTPClient) AnchorArtifact(ctx context.Context, manifestRef string) (Result, error) {
	manifestRef = strings.TrimSpace(manifestRef)
	if manifestRef == "" {
		return Result{}, errors.New("manifest ref is required")
	}

	body, err := json.Marshal(map[string]string{"manifest_ref": manifestRef})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/anchors", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("anchor artifact: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Result{}, fmt.Errorf("anchor artifact: %s", readErrorBody(resp))
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode anchor result: %w", err)
	}
	if !result.Success {
		return Result{}, errors.New("anchoring service reported failure")
	}
	return result, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Accept", "application/json")
}

func readErrorBody(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(bytesTrim(raw)) == 0 {
		return resp.Status
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Error) != "" {
		return resp.Status + ": " + strings.TrimSpace(body.Error)
	}
	return resp.Status
}

func bytesTrim(in []byte) []byte {
	return []byte(strings.TrimSpace(string(in)))
}

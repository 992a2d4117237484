// Package statusclient talks to the pipeline backend that owns document
// extraction and readiness scoring. All calls are authenticated with a
// bearer token drawn from an oauth2 token source.
package statusclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// ExtractionStatus is the externally observable state of the extraction pipeline.
type ExtractionStatus struct {
	Status         string
	OCRStoragePath string
}

// ReadinessStatus is the externally observable state of the scoring pipeline.
type ReadinessStatus struct {
	Status string
}

// OnboardingStatus is the server-persisted progress of an onboarding attempt.
type OnboardingStatus struct {
	Completed bool
	Step      string
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Token is a static bearer token. When ClientID/ClientSecret/TokenURL
	// are set they take precedence and tokens are fetched via the OAuth2
	// client-credentials flow.
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Client performs status reads and mutating calls against the pipeline backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

// New constructs a Client from config.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("PIPELINE_BASE_URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var tokens oauth2.TokenSource
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		tokens = cc.TokenSource(context.Background())
	} else if strings.TrimSpace(cfg.Token) != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(cfg.Token)})
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// NewWithTokenSource constructs a Client with a caller-supplied token source.
func NewWithTokenSource(baseURL string, timeout time.Duration, tokens oauth2.TokenSource) (*Client, error) {
	c, err := New(Config{BaseURL: baseURL, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	c.tokens = tokens
	return c, nil
}

// SaveWebsite persists the company website for an org. Idempotent upsert.
func (c *Client) SaveWebsite(ctx context.Context, orgID, website string) error {
	body := map[string]string{"org_id": orgID, "website": website}
	return c.post(ctx, "/api/save-website", body, nil)
}

// UploadDocument notifies the backend that a document has been staged at the
// given storage key so the extraction pipeline can pick it up.
func (c *Client) UploadDocument(ctx context.Context, orgID, storageKey, fileName string, sizeBytes int64) error {
	body := map[string]any{
		"org_id":       orgID,
		"storage_path": storageKey,
		"file_name":    fileName,
		"size_bytes":   sizeBytes,
	}
	return c.post(ctx, "/api/upload-document", body, nil)
}

// ExtractionStatus reads the current extraction pipeline state for an org.
func (c *Client) ExtractionStatus(ctx context.Context, orgID string) (ExtractionStatus, error) {
	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			OCRStoragePath string `json:"ocr_storage_path"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/api/extraction-status", orgID, &envelope); err != nil {
		return ExtractionStatus{}, err
	}
	return ExtractionStatus{
		Status:         normalizeStatus(envelope.Status),
		OCRStoragePath: envelope.Data.OCRStoragePath,
	}, nil
}

// SubmitQuestionnaire delivers the six answers plus any *_other overrides.
func (c *Client) SubmitQuestionnaire(ctx context.Context, orgID string, answers map[string]string) error {
	body := make(map[string]string, len(answers)+1)
	for k, v := range answers {
		body[k] = v
	}
	body["org_id"] = orgID
	return c.post(ctx, "/api/submit-questionnaire", body, nil)
}

// ReadinessStatus reads the scoring pipeline state for an org.
func (c *Client) ReadinessStatus(ctx context.Context, orgID string) (ReadinessStatus, error) {
	var envelope struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/api/readiness-status", orgID, &envelope); err != nil {
		return ReadinessStatus{}, err
	}
	return ReadinessStatus{Status: normalizeStatus(envelope.Status)}, nil
}

// OnboardingStatus reads the persisted onboarding progress for an org.
func (c *Client) OnboardingStatus(ctx context.Context, orgID string) (OnboardingStatus, error) {
	var envelope struct {
		Completed bool   `json:"completed"`
		Step      string `json:"step"`
	}
	if err := c.get(ctx, "/api/onboarding-status", orgID, &envelope); err != nil {
		return OnboardingStatus{}, err
	}
	return OnboardingStatus{Completed: envelope.Completed, Step: envelope.Step}, nil
}

// ClearPartialState asks the backend to drop transient partial-upload state.
// Safe to call unconditionally.
func (c *Client) ClearPartialState(ctx context.Context, orgID string) error {
	return c.post(ctx, "/api/clear-partial-state", map[string]string{"org_id": orgID}, nil)
}

// ResetToStart asks the backend to reset the org's onboarding to the beginning.
func (c *Client) ResetToStart(ctx context.Context, orgID string) error {
	return c.post(ctx, "/api/reset-to-start", map[string]string{"org_id": orgID}, nil)
}

func (c *Client) get(ctx context.Context, path, orgID string, out any) error {
	u := c.baseURL + path + "?org_id=" + url.QueryEscape(orgID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("fetch token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("pipeline %s: read body: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BackendError{Path: path, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("pipeline %s: decode: %w", path, err)
		}
	}
	return nil
}

// BackendError is a non-2xx response from the pipeline backend.
type BackendError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("pipeline %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

func normalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ready", "complete", "completed", "done":
		return StatusReady
	case "failed", "error":
		return StatusFailed
	default:
		return StatusPending
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

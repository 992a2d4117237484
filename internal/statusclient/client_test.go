package statusclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL, Timeout: time.Second, Token: "test-token"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestSaveWebsiteSendsBearerToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.SaveWebsite(context.Background(), "org-1", "https://example.com"); err != nil {
		t.Fatalf("save website: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotBody["org_id"] != "org-1" || gotBody["website"] != "https://example.com" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestExtractionStatusNormalizes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ready", StatusReady},
		{"COMPLETED", StatusReady},
		{"done", StatusReady},
		{"failed", StatusFailed},
		{"error", StatusFailed},
		{"pending", StatusPending},
		{"in_progress", StatusPending},
		{"", StatusPending},
	}
	for _, tc := range tests {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"status": tc.raw,
				"data":   map[string]string{"ocr_storage_path": "path/to/doc"},
			})
		}))
		status, err := client.ExtractionStatus(context.Background(), "org-1")
		if err != nil {
			t.Fatalf("%q: extraction status: %v", tc.raw, err)
		}
		if status.Status != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.raw, tc.want, status.Status)
		}
		if status.OCRStoragePath != "path/to/doc" {
			t.Fatalf("%q: missing ocr path", tc.raw)
		}
	}
}

func TestGetPassesOrgID(t *testing.T) {
	var gotOrg string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = r.URL.Query().Get("org_id")
		json.NewEncoder(w).Encode(map[string]any{"status": "pending"})
	}))

	if _, err := client.ReadinessStatus(context.Background(), "org space"); err != nil {
		t.Fatalf("readiness status: %v", err)
	}
	if gotOrg != "org space" {
		t.Fatalf("org id not escaped through query: %q", gotOrg)
	}
}

func TestNon2xxBecomesBackendError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	err := client.SubmitQuestionnaire(context.Background(), "org-1", map[string]string{"primary_sector": "fintech"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", backendErr.StatusCode)
	}
	if backendErr.Path != "/api/submit-questionnaire" {
		t.Fatalf("unexpected path: %s", backendErr.Path)
	}
}

func TestSubmitQuestionnaireIncludesOrgID(t *testing.T) {
	var gotBody map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))

	answers := map[string]string{
		"revenue_model":       "other",
		"revenue_model_other": "Edtech",
	}
	if err := client.SubmitQuestionnaire(context.Background(), "org-1", answers); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotBody["org_id"] != "org-1" {
		t.Fatalf("missing org_id: %v", gotBody)
	}
	if gotBody["revenue_model_other"] != "Edtech" {
		t.Fatalf("missing override: %v", gotBody)
	}
}

func TestOnboardingStatusDecodes(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"completed": true, "step": "questionnaire"})
	}))

	status, err := client.OnboardingStatus(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("onboarding status: %v", err)
	}
	if !status.Completed || status.Step != "questionnaire" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

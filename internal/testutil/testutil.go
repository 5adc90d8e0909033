// Package testutil provides shared helpers for tests that exercise the full
// analysis stack over in-memory dependencies.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/api"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/classifier"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/engine"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/evidence"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/scheduler"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/store"
)

// CleanClassifier is an engine.Classifier that never detects anything.
// Integration-style tests that only exercise plumbing use it.
type CleanClassifier struct{}

func (CleanClassifier) Classify(ctx context.Context, req classifier.Request) (*classifier.Response, error) {
	return &classifier.Response{Detected: false}, nil
}

func (CleanClassifier) ModelVersion() string { return "test-clean" }

// Stack bundles a fully wired in-memory analysis stack.
type Stack struct {
	Repo      *evidence.InMemoryRepository
	Store     *store.InMemoryStore
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Server    *api.Server
}

// NewStack wires engine, scheduler, and API server over in-memory storage and
// the given classifier. Batch delays are zeroed so tests run instantly.
func NewStack(t *testing.T, cls engine.Classifier) *Stack {
	t.Helper()
	if cls == nil {
		cls = CleanClassifier{}
	}

	repo := evidence.NewInMemoryRepository()
	st := store.NewInMemoryStore()

	eng, err := engine.New(models.DefaultAnalysisConfig(), cls, repo, st, store.PlainCipher{})
	if err != nil {
		t.Fatalf("failed to build test engine: %v", err)
	}

	cfg := scheduler.DefaultConfig()
	cfg.UserDelay = 0
	cfg.BatchDelay = 0
	sched := scheduler.New(eng, repo, st, cfg, "")

	return &Stack{
		Repo:      repo,
		Store:     st,
		Engine:    eng,
		Scheduler: sched,
		Server:    api.NewServer(sched, eng),
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, url, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

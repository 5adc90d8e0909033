package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

func TestNewStackServesStatus(t *testing.T) {
	stack := NewStack(t, nil)

	rec := httptest.NewRecorder()
	req := CreateHTTPRequest(t, http.MethodGet, "/status", nil)
	stack.Server.Handler().ServeHTTP(rec, req)

	AssertHTTPStatus(t, http.StatusOK, rec.Code, "GET /status")
	AssertJSONResponse(t, rec, "ok")
}

func TestNewStackEndToEndAnalyze(t *testing.T) {
	stack := NewStack(t, nil)
	stack.Repo.AddInsight(models.InsightRecord{
		ID: 1, UserID: "user-1", Text: "a reflection", CreatedAt: time.Now().Add(-24 * time.Hour),
	})

	rec := httptest.NewRecorder()
	req := CreateHTTPRequest(t, http.MethodPost, "/analyze", map[string]interface{}{
		"user_ids": []string{"user-1"},
	})
	stack.Server.Handler().ServeHTTP(rec, req)

	AssertHTTPStatus(t, http.StatusOK, rec.Code, "POST /analyze")
	resp := AssertJSONResponse(t, rec, "ok")
	result := resp["result"].(map[string]interface{})
	if result["successful"] != float64(1) {
		t.Errorf("successful = %v, want 1", result["successful"])
	}

	// The analysis run was persisted and is visible through history.
	rec = httptest.NewRecorder()
	req = CreateHTTPRequest(t, http.MethodGet, "/history?user_id=user-1", nil)
	stack.Server.Handler().ServeHTTP(rec, req)
	AssertHTTPStatus(t, http.StatusOK, rec.Code, "GET /history")
	resp = AssertJSONResponse(t, rec, "ok")
	history := resp["result"].(map[string]interface{})
	if history["total"] != float64(1) {
		t.Errorf("history total = %v, want 1", history["total"])
	}
}

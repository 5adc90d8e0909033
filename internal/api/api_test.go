package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/scheduler"
)

type stubSchedulerService struct {
	status    *scheduler.Status
	statusErr error
	pending   []string
	analyzed  [][]string
	failUsers []string
}

func (s *stubSchedulerService) StatusReport(ctx context.Context) (*scheduler.Status, error) {
	return s.status, s.statusErr
}

func (s *stubSchedulerService) UsersForAnalysis(ctx context.Context) ([]string, error) {
	return s.pending, nil
}

func (s *stubSchedulerService) AnalyzeUsersNow(ctx context.Context, userIDs []string) scheduler.BatchResult {
	s.analyzed = append(s.analyzed, userIDs)
	result := scheduler.BatchResult{}
	failSet := make(map[string]bool)
	for _, id := range s.failUsers {
		failSet[id] = true
	}
	for _, id := range userIDs {
		if failSet[id] {
			result.Failed = append(result.Failed, id)
		} else {
			result.Successful++
		}
	}
	return result
}

type stubEngineService struct {
	history    []models.AnalysisResult
	total      int
	historyErr error
	statusErr  error
	updates    []string
}

func (e *stubEngineService) HistoryPage(ctx context.Context, userID string, limit, offset int) ([]models.AnalysisResult, int, error) {
	if e.historyErr != nil {
		return nil, 0, e.historyErr
	}
	return e.history, e.total, nil
}

func (e *stubEngineService) UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error {
	if e.statusErr != nil {
		return e.statusErr
	}
	e.updates = append(e.updates, blockerID)
	return nil
}

func newTestServer(sched *stubSchedulerService, eng *stubEngineService, options ...Option) *Server {
	return NewServer(sched, eng, options...)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return resp
}

func TestStatusHandler(t *testing.T) {
	last := time.Now().Add(-2 * time.Hour)
	sched := &stubSchedulerService{status: &scheduler.Status{
		UsersAnalyzedToday:    3,
		UsersAnalyzedThisWeek: 12,
		PendingAnalysis:       7,
		LastRunTime:           &last,
	}}
	next := time.Now().Add(10 * time.Hour)
	srv := newTestServer(sched, &stubEngineService{}, WithNextRun(func() time.Time { return next }))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("response status = %q, want ok", resp.Status)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is %T, want object", resp.Result)
	}
	if result["users_analyzed_today"] != float64(3) {
		t.Errorf("users_analyzed_today = %v, want 3", result["users_analyzed_today"])
	}
	if _, ok := result["next_run_time"]; !ok {
		t.Error("next_run_time missing from status response")
	}
}

func TestStatusHandlerMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubSchedulerService{status: &scheduler.Status{}}, &stubEngineService{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestAnalyzeHandlerWithUserIDs(t *testing.T) {
	sched := &stubSchedulerService{failUsers: []string{"user-2"}}
	srv := newTestServer(sched, &stubEngineService{})

	body := strings.NewReader(`{"user_ids":["user-1","user-2","user-3"]}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	result := resp.Result.(map[string]interface{})
	if result["requested"] != float64(3) {
		t.Errorf("requested = %v, want 3", result["requested"])
	}
	if result["successful"] != float64(2) {
		t.Errorf("successful = %v, want 2", result["successful"])
	}
	if result["failed"] != float64(1) {
		t.Errorf("failed = %v, want 1", result["failed"])
	}
	failedUsers := result["failed_users"].([]interface{})
	if len(failedUsers) != 1 || failedUsers[0] != "user-2" {
		t.Errorf("failed_users = %v, want [user-2]", failedUsers)
	}
}

func TestAnalyzeHandlerAllPending(t *testing.T) {
	sched := &stubSchedulerService{pending: []string{"user-5", "user-6"}}
	srv := newTestServer(sched, &stubEngineService{})

	body := strings.NewReader(`{"all_pending":true}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sched.analyzed) != 1 || len(sched.analyzed[0]) != 2 {
		t.Errorf("analyzed = %v, want the two pending users", sched.analyzed)
	}
}

func TestAnalyzeHandlerRequiresSelection(t *testing.T) {
	srv := newTestServer(&stubSchedulerService{}, &stubEngineService{})

	body := strings.NewReader(`{}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when neither user_ids nor all_pending given", rec.Code)
	}
}

func TestAnalyzeHandlerRejectsBadJSON(t *testing.T) {
	srv := newTestServer(&stubSchedulerService{}, &stubEngineService{})

	body := strings.NewReader(`{not json`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHistoryHandler(t *testing.T) {
	now := time.Now()
	eng := &stubEngineService{
		history: []models.AnalysisResult{
			{UserID: "user-1", AnalysisDate: now, AnalysisSummary: "summary one",
				BlockersDetected: []models.Blocker{{Type: models.BlockerConfirmationBias}}},
			{UserID: "user-1", AnalysisDate: now.Add(-24 * time.Hour), AnalysisSummary: "summary two"},
		},
		total: 5,
	}
	srv := newTestServer(&stubSchedulerService{}, eng)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?user_id=user-1&limit=2&offset=0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	result := resp.Result.(map[string]interface{})
	entries := result["entries"].([]interface{})
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0].(map[string]interface{})
	if first["blockers_count"] != float64(1) {
		t.Errorf("blockers_count = %v, want 1", first["blockers_count"])
	}
	if result["total"] != float64(5) {
		t.Errorf("total = %v, want 5", result["total"])
	}
}

func TestHistoryHandlerRequiresUserID(t *testing.T) {
	srv := newTestServer(&stubSchedulerService{}, &stubEngineService{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without user_id", rec.Code)
	}
}

func TestBlockerStatusHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"unknown blocker", models.ErrBlockerNotFound, http.StatusNotFound},
		{"backwards transition", models.ErrStatusTransition, http.StatusConflict},
		{"invalid status", models.ErrInvalidStatus, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngineService{statusErr: tt.err}
			srv := newTestServer(&stubSchedulerService{}, eng)

			body := strings.NewReader(`{"blocker_id":"b-1","status":"acknowledged"}`)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/blockers/status", body))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestBlockerStatusHandlerSuccess(t *testing.T) {
	eng := &stubEngineService{}
	srv := newTestServer(&stubSchedulerService{}, eng)

	body := strings.NewReader(`{"blocker_id":"b-1","status":"acknowledged","notes":"seen"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/blockers/status", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(eng.updates) != 1 || eng.updates[0] != "b-1" {
		t.Errorf("updates = %v, want [b-1]", eng.updates)
	}
}

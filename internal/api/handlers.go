package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/scheduler"
)

// defaultHistoryLimit caps unbounded history reads.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// SchedulerService is the scheduling capability the handlers expose.
type SchedulerService interface {
	StatusReport(ctx context.Context) (*scheduler.Status, error)
	UsersForAnalysis(ctx context.Context) ([]string, error)
	AnalyzeUsersNow(ctx context.Context, userIDs []string) scheduler.BatchResult
}

// EngineService is the engine capability the handlers expose.
type EngineService interface {
	HistoryPage(ctx context.Context, userID string, limit, offset int) ([]models.AnalysisResult, int, error)
	UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error
}

type analyzeRequest struct {
	UserIDs    []string `json:"user_ids"`
	AllPending bool     `json:"all_pending"`
}

type analyzeResponse struct {
	Requested   int      `json:"requested"`
	Successful  int      `json:"successful"`
	Failed      int      `json:"failed"`
	FailedUsers []string `json:"failed_users"`
}

type statusResponse struct {
	*scheduler.Status
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
}

type historyEntry struct {
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	AnalysisSummary string    `json:"analysis_summary"`
	BlockersCount   int       `json:"blockers_count"`
}

type historyResponse struct {
	Entries []historyEntry `json:"entries"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Total   int            `json:"total"`
}

type blockerStatusRequest struct {
	BlockerID string `json:"blocker_id"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statusHandler: processing status request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status, err := s.scheduler.StatusReport(r.Context())
	if err != nil {
		slog.Error("Server.statusHandler: status query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute analysis status"))
		return
	}

	resp := statusResponse{Status: status}
	if s.nextRun != nil {
		next := s.nextRun()
		if !next.IsZero() {
			resp.NextRunTime = &next
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.analyzeHandler: processing analyze request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.analyzeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if len(req.UserIDs) == 0 && !req.AllPending {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Either user_ids or all_pending must be supplied"))
		return
	}

	userIDs := req.UserIDs
	if req.AllPending {
		pending, err := s.scheduler.UsersForAnalysis(r.Context())
		if err != nil {
			slog.Error("Server.analyzeHandler: pending user query failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute pending users"))
			return
		}
		userIDs = pending
	}

	result := s.scheduler.AnalyzeUsersNow(r.Context(), userIDs)
	slog.Info("Server.analyzeHandler: batch completed",
		"requested", len(userIDs), "successful", result.Successful, "failed", len(result.Failed))

	writeJSONResponse(w, http.StatusOK, models.Success(analyzeResponse{
		Requested:   len(userIDs),
		Successful:  result.Successful,
		Failed:      len(result.Failed),
		FailedUsers: result.Failed,
	}))
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.historyHandler: processing history request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id query parameter is required"))
		return
	}
	limit := parseQueryInt(r, "limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := parseQueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	results, total, err := s.engine.HistoryPage(r.Context(), userID, limit, offset)
	if err != nil {
		slog.Error("Server.historyHandler: history read failed", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read analysis history"))
		return
	}

	entries := make([]historyEntry, 0, len(results))
	for _, res := range results {
		entries = append(entries, historyEntry{
			UserID:          res.UserID,
			CreatedAt:       res.AnalysisDate,
			AnalysisSummary: res.AnalysisSummary,
			BlockersCount:   len(res.BlockersDetected),
		})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(historyResponse{
		Entries: entries,
		Limit:   limit,
		Offset:  offset,
		Total:   total,
	}))
}

func (s *Server) blockerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.blockerStatusHandler: processing status update", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req blockerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.blockerStatusHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.BlockerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("blocker_id is required"))
		return
	}

	err := s.engine.UpdateBlockerStatus(r.Context(), req.BlockerID, models.BlockerStatus(req.Status), req.Notes)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Blocker status updated", nil))
	case errors.Is(err, models.ErrInvalidStatus):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid blocker status"))
	case errors.Is(err, models.ErrBlockerNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Blocker not found"))
	case errors.Is(err, models.ErrStatusTransition):
		writeJSONResponse(w, http.StatusConflict, models.Error("Status transition not allowed"))
	default:
		slog.Error("Server.blockerStatusHandler: update failed", "error", err, "blocker_id", req.BlockerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update blocker status"))
	}
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

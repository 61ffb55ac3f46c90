package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/eval-studio/internal/run"
	"github.com/stellarlinkco/eval-studio/internal/store"
	"github.com/stellarlinkco/eval-studio/internal/suite"
)

type testCaseInput struct {
	Input          string   `json:"input"`
	ExpectedOutput string   `json:"expected_output"`
	ScoringMethod  string   `json:"scoring_method"`
	Tags           []string `json:"tags,omitempty"`
}

type createRunRequest struct {
	Name         string          `json:"name"`
	TestCases    []testCaseInput `json:"test_cases"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
}

type runCreatedResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type runListingResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	ResultCount int      `json:"result_count"`
	AvgScore    *float64 `json:"avg_score"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateRun(c *gin.Context) {
	if s == nil || s.store == nil || s.orch == nil || s.worker == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run name"))
		return
	}

	cases := make([]suite.TestCase, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		cases = append(cases, suite.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ScoringMethod:  suite.ScoringMethod(tc.ScoringMethod),
			Tags:           tc.Tags,
		})
	}

	r, err := s.orch.CreateRun(c.Request.Context(), cases, name, req.SystemPrompt)
	if err != nil {
		var vErr *suite.ValidationError
		if errors.As(err, &vErr) {
			respondError(c, http.StatusBadRequest, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := s.worker.Enqueue(r); err != nil {
		_ = s.store.MarkRunFailed(c.Request.Context(), r.ID, err.Error())
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	// Status reads "running" from the caller's point of view: execution is
	// already queued and pollers will observe the transition in the store.
	c.JSON(http.StatusAccepted, runCreatedResponse{
		ID:     r.ID,
		Name:   r.Name,
		Status: string(run.StatusRunning),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), 20)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	listings, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]runListingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, runListingResponse{
			ID:          l.ID,
			Name:        l.Name,
			Status:      l.Status,
			CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
			ResultCount: l.ResultCount,
			AvgScore:    l.AvgScore,
		})
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	rec, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, run.FromRecord(rec))
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("limit must be > 0")
	}
	return v, nil
}

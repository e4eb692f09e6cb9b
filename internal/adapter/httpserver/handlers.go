package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/vjudge/internal/config"
	"github.com/fairyhunter13/vjudge/internal/domain"
	"github.com/fairyhunter13/vjudge/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Submissions usecase.SubmissionService
	Problems    usecase.ProblemService
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, subs usecase.SubmissionService, probs usecase.ProblemService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Submissions: subs, Problems: probs, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type submitRequest struct {
	OJName     string `json:"oj_name" validate:"required,max=32"`
	ProblemID  string `json:"problem_id" validate:"required,max=64"`
	Language   string `json:"language" validate:"required,max=32"`
	SourceCode string `json:"source_code" validate:"required,max=1048576"`
}

type submissionResponse struct {
	ID        int64  `json:"id"`
	OJName    string `json:"oj_name"`
	ProblemID string `json:"problem_id"`
	Language  string `json:"language"`
	Verdict   string `json:"verdict"`
	ExeTime   int    `json:"exe_time"`
	ExeMem    int    `json:"exe_mem"`
	RunID     string `json:"run_id,omitempty"`
	TimeStamp string `json:"time_stamp"`
}

func toSubmissionResponse(s domain.Submission) submissionResponse {
	return submissionResponse{
		ID:        s.ID,
		OJName:    s.OJName,
		ProblemID: s.ProblemID,
		Language:  s.Language,
		Verdict:   string(s.Verdict),
		ExeTime:   s.ExeTime,
		ExeMem:    s.ExeMem,
		RunID:     s.RunID,
		TimeStamp: s.TimeStamp.UTC().Format(time.RFC3339),
	}
}

// SubmitHandler accepts a JSON submission and returns its id with 202.
// Judging is asynchronous; the client polls GET /v1/submissions/{id}.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		r.Body = http.MaxBytesReader(w, r.Body, 2*1024*1024)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: malformed json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		id, err := s.Submissions.Submit(r.Context(), req.OJName, req.ProblemID, req.Language, req.SourceCode)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "verdict": string(domain.VerdictQueuing)})
	}
}

// SubmissionHandler serves one submission's current state.
func (s *Server) SubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: id must be an integer", domain.ErrInvalidArgument), nil)
			return
		}
		sub, err := s.Submissions.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
	}
}

// ProblemsHandler lists cached problems with optional oj_name / problem_id
// LIKE filters and limit/offset pagination.
func (s *Server) ProblemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		f := domain.ProblemFilter{OJName: q.Get("oj_name"), ProblemID: q.Get("problem_id")}
		items, total, err := s.Problems.List(r.Context(), f, limit, offset)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]map[string]any, 0, len(items))
		for _, p := range items {
			out = append(out, map[string]any{
				"oj_name":     p.OJName,
				"problem_id":  p.ProblemID,
				"title":       p.Title,
				"last_update": p.LastUpdate.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"problems": out, "total": total})
	}
}

// ProblemHandler serves one cached problem in full.
func (s *Server) ProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ojName := chi.URLParam(r, "oj")
		problemID := chi.URLParam(r, "problem")
		p, err := s.Problems.Get(r.Context(), ojName, problemID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"oj_name":       p.OJName,
			"problem_id":    p.ProblemID,
			"title":         p.Title,
			"description":   p.Description,
			"input":         p.Input,
			"output":        p.Output,
			"sample_input":  p.SampleInput,
			"sample_output": p.SampleOutput,
			"time_limit":    p.TimeLimit,
			"mem_limit":     p.MemLimit,
			"last_update":   p.LastUpdate.UTC().Format(time.RFC3339),
		})
	}
}

// RefreshHandler forces a re-crawl of one problem, or the whole OJ with
// ?all=true.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ojName := chi.URLParam(r, "oj")
		problemID := chi.URLParam(r, "problem")
		if r.URL.Query().Get("all") == "true" {
			problemID = ""
		}
		if err := s.Problems.Refresh(r.Context(), ojName, problemID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
	}
}

// HealthzHandler is the liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler checks the backing stores with a short deadline.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]func(context.Context) error{"db": s.DBCheck, "redis": s.RedisCheck}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "failing": name})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// Package httpapi exposes the thin REST surface next to the websocket
// channel: interview CRUD-lite, per-question scores, evaluation reports, and
// the coding-problem bank. All routes sit behind bearer-token auth.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/mianlab/koushi/internal/evaluator"
	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/observe"
	"github.com/mianlab/koushi/internal/store"
)

// API serves the REST routes. Construct with [New], mount with [API.Router].
type API struct {
	store     store.Store
	evaluator *evaluator.Evaluator
	log       *slog.Logger
}

// New creates the API over st and ev.
func New(st store.Store, ev *evaluator.Evaluator, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{store: st, evaluator: ev, log: log}
}

// reqLog is the API logger annotated with the request's trace and span IDs,
// so handler errors line up with the middleware's completion log line.
func (a *API) reqLog(r *http.Request) *slog.Logger {
	return observe.WithTrace(r.Context(), a.log)
}

// Router builds the route table. ws is mounted at GET /ws; extra carries the
// unauthenticated operational endpoints (healthz, readyz, metrics) as
// pattern → handler.
func (a *API) Router(ws http.Handler, tokens []string, metrics *observe.Metrics, extra map[string]http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/interviews", a.createInterview)
	mux.HandleFunc("GET /api/interviews", a.listInterviews)
	mux.HandleFunc("GET /api/interviews/{id}/scores", a.interviewScores)
	mux.HandleFunc("GET /api/interviews/{id}/evaluation", a.interviewEvaluation)
	mux.HandleFunc("GET /api/users/{id}/evaluation", a.userEvaluation)
	mux.HandleFunc("GET /api/problems", a.listProblems)
	mux.HandleFunc("GET /api/problems/{id}", a.getProblem)
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	var handler http.Handler = mux
	handler = authMiddleware(tokens)(handler)
	if metrics != nil {
		handler = observe.Middleware(metrics)(handler)
	}

	// Operational endpoints bypass auth: probes and scrapers do not carry
	// bearer tokens.
	outer := http.NewServeMux()
	for pattern, h := range extra {
		outer.Handle(pattern, h)
	}
	outer.Handle("/", handler)
	return outer
}

// authMiddleware enforces the configured bearer tokens. An empty token list
// disables authentication (development only). Websocket clients may pass the
// token as a query parameter because browsers cannot set headers on upgrade
// requests.
func authMiddleware(tokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		allowed[t] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			token := r.URL.Query().Get("token")
			if auth := r.Header.Get("Authorization"); auth != "" {
				const prefix = "Bearer "
				if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
					token = auth[len(prefix):]
				}
			}
			if !allowed[token] {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// createInterviewRequest is the POST /api/interviews body.
type createInterviewRequest struct {
	UserID               int64     `json:"user_id"`
	ResumeID             int64     `json:"resume_id"`
	PositionName         string    `json:"position_name"`
	CompanyName          string    `json:"company_name"`
	PositionDescription  string    `json:"position_description"`
	PositionRequirements string    `json:"position_requirements"`
	PositionType         string    `json:"position_type"`
	InterviewAt          time.Time `json:"interview_time"`
}

func (a *API) createInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 || req.ResumeID <= 0 || req.PositionName == "" {
		writeError(w, http.StatusBadRequest, "user_id, resume_id and position_name are required")
		return
	}
	at := req.InterviewAt
	if at.IsZero() {
		at = time.Now()
	}

	iv, err := a.store.CreateInterview(r.Context(), interview.Interview{
		UserID:               req.UserID,
		ResumeID:             req.ResumeID,
		PositionName:         req.PositionName,
		CompanyName:          req.CompanyName,
		PositionDescription:  req.PositionDescription,
		PositionRequirements: req.PositionRequirements,
		PositionType:         interview.NormalizePositionType(req.PositionType),
		InterviewAt:          at,
	})
	if err != nil {
		a.reqLog(r).Error("interview create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "interview create failed")
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (a *API) listInterviews(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "missing or invalid user_id")
		return
	}
	interviews, err := a.store.ListInterviews(r.Context(), userID)
	if err != nil {
		a.reqLog(r).Error("interview list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "interview list failed")
		return
	}
	// Newest first.
	sort.Slice(interviews, func(i, j int) bool {
		return interviews[i].InterviewAt.After(interviews[j].InterviewAt)
	})
	writeJSON(w, http.StatusOK, interviews)
}

// scoreRow is one entry of the per-question score listing.
type scoreRow struct {
	QuestionIndex int                    `json:"question_index"`
	Question      string                 `json:"question"`
	Answer        string                 `json:"answer"`
	Scores        interview.RubricScores `json:"scores"`
	Analysis      string                 `json:"analysis"`
}

func (a *API) interviewScores(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := a.store.GetInterview(r.Context(), id); err != nil {
		notFoundOr500(w, a.reqLog(r), "interview load failed", err)
		return
	}
	answers, err := a.store.ListAnswers(r.Context(), id)
	if err != nil {
		a.reqLog(r).Error("answer list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "answer list failed")
		return
	}
	rows := make([]scoreRow, 0, len(answers))
	for _, ans := range answers {
		rows = append(rows, scoreRow{
			QuestionIndex: ans.QuestionIndex,
			Question:      ans.Question,
			Answer:        ans.Text,
			Scores:        ans.Scores,
			Analysis:      ans.Analysis,
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) interviewEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := a.evaluator.Evaluate(r.Context(), id)
	if err != nil {
		notFoundOr500(w, a.reqLog(r), "evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) userEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	overview, err := a.evaluator.UserOverview(r.Context(), id)
	if err != nil {
		notFoundOr500(w, a.reqLog(r), "user evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) listProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := a.store.ListProblems(r.Context())
	if err != nil {
		a.reqLog(r).Error("problem list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "problem list failed")
		return
	}
	writeJSON(w, http.StatusOK, problems)
}

func (a *API) getProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	problem, err := a.store.GetProblem(r.Context(), id)
	if err != nil {
		notFoundOr500(w, a.reqLog(r), "problem load failed", err)
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func notFoundOr500(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	log.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mianlab/koushi/internal/evaluator"
	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/store"
)

const testToken = "sekrit"

func newTestAPI(t *testing.T) (*store.MemStore, http.Handler) {
	t.Helper()
	st := store.NewMemStore()
	ev := evaluator.New(st, nil, nil)
	api := New(st, ev, nil)
	healthz := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := api.Router(nil, []string{testToken}, nil, map[string]http.Handler{
		"GET /healthz": healthz,
	})
	return st, handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec
}

func TestAuthRequired(t *testing.T) {
	_, handler := newTestAPI(t)

	req := httptest.NewRequest("GET", "/api/problems", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/problems", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}

	// Query-parameter tokens work for websocket clients.
	req = httptest.NewRequest("GET", "/api/problems?token="+testToken, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token: status = %d, want 200", rec.Code)
	}
}

func TestOperationalEndpointsBypassAuth(t *testing.T) {
	_, handler := newTestAPI(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz without token: status = %d, want 200", rec.Code)
	}
}

func TestCreateAndListInterviews(t *testing.T) {
	_, handler := newTestAPI(t)

	var created interview.Interview
	rec := doJSON(t, handler, "POST", "/api/interviews",
		`{"user_id":7,"resume_id":1,"position_name":"后端工程师","position_type":"backend"}`, &created)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if created.ID == 0 || created.PositionType != interview.PositionBackend {
		t.Fatalf("created = %+v", created)
	}

	rec = doJSON(t, handler, "POST", "/api/interviews", `{"user_id":7}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete create: status = %d, want 400", rec.Code)
	}

	var listed []interview.Interview
	rec = doJSON(t, handler, "GET", "/api/interviews?user_id=7", "", &listed)
	if rec.Code != http.StatusOK || len(listed) != 1 {
		t.Fatalf("list: status = %d, %d interviews", rec.Code, len(listed))
	}

	rec = doJSON(t, handler, "GET", "/api/interviews", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("list without user_id: status = %d, want 400", rec.Code)
	}
}

func TestListInterviewsNewestFirst(t *testing.T) {
	st, handler := newTestAPI(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := st.CreateInterview(context.Background(), interview.Interview{
			UserID:       7,
			ResumeID:     1,
			PositionName: "岗位",
			PositionType: interview.PositionBackend,
			InterviewAt:  base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	var listed []interview.Interview
	doJSON(t, handler, "GET", "/api/interviews?user_id=7", "", &listed)
	if len(listed) != 3 {
		t.Fatalf("got %d interviews", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].InterviewAt.After(listed[i-1].InterviewAt) {
			t.Fatalf("interviews not newest first: %v", listed)
		}
	}
}

func TestInterviewScores(t *testing.T) {
	st, handler := newTestAPI(t)
	iv, err := st.CreateInterview(context.Background(), interview.Interview{
		UserID: 7, ResumeID: 1, PositionName: "岗位", PositionType: interview.PositionBackend,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, _, err = st.CreateAnswer(context.Background(), interview.Answer{
		InterviewID:   iv.ID,
		QuestionIndex: 1,
		Question:      "问题 1",
		Text:          "回答 1",
		Scores:        interview.NeutralRubric(),
		Analysis:      "表现平稳",
	})
	if err != nil {
		t.Fatalf("seed answer: %v", err)
	}

	var rows []scoreRow
	rec := doJSON(t, handler, "GET", "/api/interviews/"+itoa(iv.ID)+"/scores", "", &rows)
	if rec.Code != http.StatusOK || len(rows) != 1 {
		t.Fatalf("scores: status = %d, %d rows", rec.Code, len(rows))
	}
	if rows[0].Question != "问题 1" || rows[0].Analysis != "表现平稳" {
		t.Fatalf("row = %+v", rows[0])
	}

	rec = doJSON(t, handler, "GET", "/api/interviews/999/scores", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown interview: status = %d, want 404", rec.Code)
	}
}

func TestEvaluationEndpoints(t *testing.T) {
	st, handler := newTestAPI(t)
	iv, err := st.CreateInterview(context.Background(), interview.Interview{
		UserID: 7, ResumeID: 1, PositionName: "岗位", PositionType: interview.PositionBackend,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, _, err = st.CreateAnswer(context.Background(), interview.Answer{
		InterviewID:   iv.ID,
		QuestionIndex: 0,
		Question:      "自我介绍",
		Text:          "你好",
		Scores:        interview.NeutralRubric(),
	})
	if err != nil {
		t.Fatalf("seed answer: %v", err)
	}
	if err := st.MarkCompleted(context.Background(), iv.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var report evaluator.Report
	rec := doJSON(t, handler, "GET", "/api/interviews/"+itoa(iv.ID)+"/evaluation", "", &report)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluation: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if report.Score == 0 {
		t.Fatalf("report = %+v, want non-zero overall", report)
	}

	var overview evaluator.Overview
	rec = doJSON(t, handler, "GET", "/api/users/7/evaluation", "", &overview)
	if rec.Code != http.StatusOK || len(overview.Interviews) != 1 {
		t.Fatalf("overview: status = %d, %+v", rec.Code, overview)
	}

	rec = doJSON(t, handler, "GET", "/api/interviews/999/evaluation", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown interview: status = %d, want 404", rec.Code)
	}
}

func TestProblemEndpoints(t *testing.T) {
	st, handler := newTestAPI(t)
	err := st.UpsertProblems(context.Background(), []interview.CodingProblem{
		{ID: 1, Number: 1, Title: "两数之和", Difficulty: interview.DifficultyEasy},
		{ID: 2, Number: 2, Title: "反转链表", Difficulty: interview.DifficultyMedium},
	})
	if err != nil {
		t.Fatalf("seed problems: %v", err)
	}

	var problems []interview.CodingProblem
	rec := doJSON(t, handler, "GET", "/api/problems", "", &problems)
	if rec.Code != http.StatusOK || len(problems) != 2 {
		t.Fatalf("list: status = %d, %d problems", rec.Code, len(problems))
	}

	var problem interview.CodingProblem
	rec = doJSON(t, handler, "GET", "/api/problems/2", "", &problem)
	if rec.Code != http.StatusOK || problem.Title != "反转链表" {
		t.Fatalf("get: status = %d, %+v", rec.Code, problem)
	}

	rec = doJSON(t, handler, "GET", "/api/problems/99", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown problem: status = %d, want 404", rec.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

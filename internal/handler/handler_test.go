package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cortexai/coursebot/internal/agent"
	"github.com/cortexai/coursebot/internal/models"
	"github.com/cortexai/coursebot/internal/rag"
	"github.com/cortexai/coursebot/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	got rag.Request
	res *rag.Result
	err error
}

func (f *fakeAsker) Query(_ context.Context, req rag.Request) (*rag.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeSessions struct {
	n   int
	err error
}

func (f *fakeSessions) Create(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("session_%d", f.n), nil
}

func postQuery(t *testing.T, h *QueryHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Query(rr, req)
	return rr
}

func TestQuery_CreatesSession(t *testing.T) {
	asker := &fakeAsker{res: &rag.Result{
		Answer:  "Lesson 1 covers background.",
		Sources: []tools.Citation{tools.NewCitation("Course - Lesson 1", "https://example.test/l1"), tools.NewCitation("Course", "")},
	}}
	h := NewQueryHandler(asker, &fakeSessions{})

	rr := postQuery(t, h, `{"query":"  What is in lesson 1?  "}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp models.QueryResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Lesson 1 covers background.", resp.Answer)
	assert.Equal(t, "session_1", resp.SessionID)
	require.Len(t, resp.Sources, 2)
	require.NotNil(t, resp.Sources[0].URL)
	assert.Equal(t, "https://example.test/l1", *resp.Sources[0].URL)
	assert.Nil(t, resp.Sources[1].URL)

	assert.Equal(t, "What is in lesson 1?", asker.got.Query)
	assert.Equal(t, "session_1", asker.got.SessionID)
}

func TestQuery_KeepsSessionAndEmptySources(t *testing.T) {
	asker := &fakeAsker{res: &rag.Result{Answer: "Hi"}}
	sessions := &fakeSessions{}
	h := NewQueryHandler(asker, sessions)

	rr := postQuery(t, h, `{"query":"hello","session_id":"existing"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, sessions.n)

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	assert.Equal(t, "existing", raw["session_id"])
	assert.Equal(t, []interface{}{}, raw["sources"])
}

func TestQuery_BadRequests(t *testing.T) {
	h := NewQueryHandler(&fakeAsker{}, &fakeSessions{})

	rr := postQuery(t, h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postQuery(t, h, `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "query is required", resp.Fields["query"])

	rr = postQuery(t, h, fmt.Sprintf(`{"query":%q}`, strings.Repeat("x", 4001)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuery_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("%w: too long", rag.ErrInvalidQuery), http.StatusBadRequest},
		{"timeout", fmt.Errorf("%w: %w", agent.ErrUpstream, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", fmt.Errorf("%w: overloaded", agent.ErrUpstream), http.StatusBadGateway},
		{"malformed", agent.ErrMalformedReply, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewQueryHandler(&fakeAsker{err: tt.err}, &fakeSessions{})
			rr := postQuery(t, h, `{"query":"q","session_id":"s"}`)
			assert.Equal(t, tt.want, rr.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.err.Error(), resp.Message)
		})
	}
}

func TestQuery_SessionCreateFails(t *testing.T) {
	h := NewQueryHandler(&fakeAsker{}, &fakeSessions{err: errors.New("db down")})
	rr := postQuery(t, h, `{"query":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type fakeStats struct {
	stats models.CourseStats
	err   error
}

func (f fakeStats) CourseAnalytics(context.Context) (models.CourseStats, error) {
	return f.stats, f.err
}

func TestCoursesStats(t *testing.T) {
	h := NewCoursesHandler(fakeStats{stats: models.CourseStats{TotalCourses: 2, CourseTitles: []string{"A", "B"}}})
	rr := httptest.NewRecorder()
	h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/courses", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total_courses":2,"course_titles":["A","B"]}`, rr.Body.String())

	rr = httptest.NewRecorder()
	NewCoursesHandler(fakeStats{err: errors.New("index down")}).Stats(rr, httptest.NewRequest(http.MethodGet, "/api/courses", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	rr := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"index": ok, "audit": nil}).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]string{"server": "ok", "index": "ok", "audit": "disabled"}, resp.Checks)

	rr = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"index": ok, "sessions": down}).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unavailable: refused", resp.Checks["sessions"])
}

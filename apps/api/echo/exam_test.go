package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/schedule"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	teacher      = testutil.NewUser("teacher", user.RoleTeacher)
	otherTeacher = testutil.NewUser("other-teacher", user.RoleTeacher)
	admin        = testutil.NewUser("admin", user.RoleAdminPrincipal)
	student      = testutil.NewUser("student", user.RoleStudent)
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	actor    *user.User
	wantCode int
	wantErr  string
}

type testApp struct {
	conf   *core.Config
	server *echoapi.Server
	repo   exam.Repository
	clock  *testutil.Clock
	logger *testutil.Logger
}

func setup(t *testing.T) *testApp {
	conf := &core.Config{
		AppName:   "Academia",
		TestMode:  true,
		SecretKey: "secret",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}
	logger := testutil.NewLogger()
	clock := testutil.NewClock(t0)
	validate, translator := testutil.NewValidator()
	repo := inmemdb.NewExamRepository(inmemdb.Open())

	registry := schedule.NewRegistry(logger, schedule.WithClock(clock), schedule.WithWorkers(1))
	registry.Start()
	t.Cleanup(func() { _ = registry.Stop(context.Background()) })

	svc := exam.NewService(repo, registry, validate, logger, exam.WithClock(clock))
	return &testApp{
		conf:   conf,
		server: echoapi.NewServer(conf, logger, translator, svc),
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

func (app *testApp) do(t *testing.T, method, path string, actor *user.User, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+app.token(t, *actor))
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, tt.method, tt.path, tt.actor, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				var got httpErr
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, tt.wantErr, got.Error)
			}
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func newExamBody(begin, end time.Time) map[string]interface{} {
	return map[string]interface{}{
		"title":        "Algebra",
		"classroom_id": "6th-grade",
		"begin_time":   begin,
		"end_time":     end,
		"time_limit":   int64(30 * time.Minute),
	}
}

func (app *testApp) createExam(t *testing.T) exam.Exam {
	rec := app.do(t, http.MethodPost, "/v1/exams", &teacher, newExamBody(t0, t0.Add(2*time.Hour)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e exam.Exam
	decode(t, rec, &e)
	return e
}

func TestServer_home(t *testing.T) {
	app := setup(t)
	rec := app.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
}

func Test_examApi_create(t *testing.T) {
	app := setup(t)

	t.Run("created", func(t *testing.T) {
		e := app.createExam(t)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, teacher.ID, e.CreatorID)
		assert.Equal(t, teacher.Email, e.CreatorEmail)
		assert.Equal(t, exam.StateOngoing, e.State)
		assert.Equal(t, 30*time.Minute, e.TimeLimit)
	})

	t.Run("validation", func(t *testing.T) {
		noTitle := newExamBody(t0, t0.Add(time.Hour))
		delete(noTitle, "title")
		rec := app.do(t, http.MethodPost, "/v1/exams", &teacher, noTitle)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, map[string]string{"title": "this field is required"}, fields)

		rec = app.do(t, http.MethodPost, "/v1/exams", &teacher, newExamBody(t0, t0.Add(-time.Hour)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields = nil
		decode(t, rec, &fields)
		assert.Equal(t, map[string]string{"end_time": "end time must be after begin time"}, fields)
	})

	app.run(t, []httpTest{
		{name: "no token", method: http.MethodPost, path: "/v1/exams", body: newExamBody(t0, t0.Add(time.Hour)), wantCode: http.StatusUnauthorized, wantErr: "missing or malformed jwt"},
		{name: "student", method: http.MethodPost, path: "/v1/exams", actor: &student, body: newExamBody(t0, t0.Add(time.Hour)), wantCode: http.StatusForbidden, wantErr: "permission denied"},
		{name: "on behalf of someone else", method: http.MethodPost, path: "/v1/exams", actor: &otherTeacher, body: func() interface{} {
			b := newExamBody(t0, t0.Add(time.Hour))
			b["creator_id"] = teacher.ID
			return b
		}(), wantCode: http.StatusForbidden, wantErr: exam.ErrForbidden.Error()},
		{name: "admin on behalf of a teacher", method: http.MethodPost, path: "/v1/exams", actor: &admin, body: func() interface{} {
			b := newExamBody(t0, t0.Add(time.Hour))
			b["creator_id"] = teacher.ID
			return b
		}(), wantCode: http.StatusCreated},
	})
}

func Test_examApi_lifecycle(t *testing.T) {
	app := setup(t)
	e := app.createExam(t)
	cancelled := app.createExam(t)
	path := "/v1/exams/" + e.ID

	app.clock.Set(t0.Add(10 * time.Minute))
	rec := app.do(t, http.MethodPost, path+"/attend", &student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var as exam.AttenderState
	decode(t, rec, &as)
	assert.Equal(t, exam.ProgressOngoing, as.Progress)
	assert.Equal(t, t0.Add(10*time.Minute), as.ExamStartTime)

	newEnd := t0.Add(3 * time.Hour)
	app.run(t, []httpTest{
		{name: "get: unknown", method: http.MethodGet, path: "/v1/exams/unknown", actor: &teacher, wantCode: http.StatusNotFound, wantErr: exam.ErrNotFound.Error()},
		{name: "get: other teacher", method: http.MethodGet, path: path, actor: &otherTeacher, wantCode: http.StatusForbidden},
		{name: "get: attender", method: http.MethodGet, path: path, actor: &student, wantCode: http.StatusOK},
		{name: "get: admin", method: http.MethodGet, path: path, actor: &admin, wantCode: http.StatusOK},
		{name: "update: other teacher", method: http.MethodPut, path: path, actor: &otherTeacher, body: map[string]interface{}{"end_time": newEnd}, wantCode: http.StatusForbidden},
		{name: "update: end before begin", method: http.MethodPut, path: path, actor: &teacher, body: map[string]interface{}{"end_time": t0.Add(-time.Hour)}, wantCode: http.StatusBadRequest},
		{name: "update", method: http.MethodPut, path: path, actor: &teacher, body: map[string]interface{}{"end_time": newEnd}, wantCode: http.StatusOK},
		{name: "attend: teacher", method: http.MethodPost, path: path + "/attend", actor: &teacher, wantCode: http.StatusForbidden},
		{name: "submit: negative score", method: http.MethodPost, path: "/v1/attempts/" + as.ID + "/submit", actor: &student, body: map[string]interface{}{"score": -1}, wantCode: http.StatusBadRequest},
		{name: "submit", method: http.MethodPost, path: "/v1/attempts/" + as.ID + "/submit", actor: &student, body: map[string]interface{}{"score": 15.5}, wantCode: http.StatusOK},
		{name: "submit: again", method: http.MethodPost, path: "/v1/attempts/" + as.ID + "/submit", actor: &student, body: map[string]interface{}{"score": 20}, wantCode: http.StatusConflict, wantErr: exam.ErrAlreadyComplete.Error()},
		{name: "cancel: other teacher", method: http.MethodPost, path: path + "/cancel", actor: &otherTeacher, wantCode: http.StatusForbidden},
		{name: "cancel", method: http.MethodPost, path: "/v1/exams/" + cancelled.ID + "/cancel", actor: &teacher, wantCode: http.StatusNoContent},
		{name: "attend: cancelled exam", method: http.MethodPost, path: "/v1/exams/" + cancelled.ID + "/attend", actor: &student, wantCode: http.StatusConflict, wantErr: exam.ErrAlreadyCancelled.Error()},
		{name: "finish: cancelled exam", method: http.MethodPost, path: "/v1/exams/" + cancelled.ID + "/finish", actor: &teacher, wantCode: http.StatusConflict, wantErr: exam.ErrAlreadyCancelled.Error()},
		{name: "finish", method: http.MethodPost, path: path + "/finish", actor: &teacher, wantCode: http.StatusNoContent},
		{name: "cancel: finished exam", method: http.MethodPost, path: path + "/cancel", actor: &teacher, wantCode: http.StatusConflict, wantErr: exam.ErrAlreadyFinished.Error()},
		{name: "delete: other teacher", method: http.MethodDelete, path: path, actor: &otherTeacher, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: path, actor: &teacher, wantCode: http.StatusNoContent},
		{name: "get: deleted", method: http.MethodGet, path: path, actor: &teacher, wantCode: http.StatusNotFound},
	})

	_, err := app.repo.FindAttenderState(context.Background(), as.ID)
	assert.True(t, exam.IsNotFound(err), "attender states are deleted with their exam")
}

func Test_examApi_badRequest(t *testing.T) {
	app := setup(t)

	rec := app.do(t, http.MethodPost, "/v1/exams", &teacher, "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, app.logger.Entries("error"))
}

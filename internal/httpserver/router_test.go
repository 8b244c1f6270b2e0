package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sentraguard/internal/auth"
	"sentraguard/internal/events"
	"sentraguard/internal/metrics"
	"sentraguard/internal/scan"
	"sentraguard/internal/shutdown"
)

type fakeUsers map[string]*auth.User

func (f fakeUsers) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, ok := f[username]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

type fakeScanner struct {
	runs        int
	during      func()
	ctxErr      error
	hasDeadline bool
}

func (f *fakeScanner) Run(ctx context.Context) scan.Report {
	f.runs++
	if f.during != nil {
		f.during()
	}
	f.ctxErr = ctx.Err()
	_, f.hasDeadline = ctx.Deadline()
	return scan.Report{CycleID: uuid.New(), Indicators: 2, Stored: 2}
}

func (f *fakeScanner) Status(ctx context.Context) (*scan.Status, error) {
	return &scan.Status{State: shutdown.StateOperational}, nil
}

type fakeControls struct {
	lastReq  shutdown.Request
	shutErr  error
	linkErr  error
	restored *shutdown.Status
	restErr  error
	restorer string
}

func (f *fakeControls) RequestShutdown(ctx context.Context, req shutdown.Request) (*shutdown.Status, error) {
	f.lastReq = req
	if f.shutErr != nil {
		return nil, f.shutErr
	}
	return &shutdown.Status{ID: uuid.New(), IsShutdown: true, Level: req.Level, TriggeredBy: req.TriggeredBy}, f.linkErr
}

func (f *fakeControls) Restore(ctx context.Context, restoredBy string) (*shutdown.Status, error) {
	f.restorer = restoredBy
	return f.restored, f.restErr
}

type fixture struct {
	handler  http.Handler
	scanner  *fakeScanner
	controls *fakeControls
	svc      *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	users := fakeUsers{
		"alice": {ID: 1, Username: "alice", PasswordHash: string(hash), Role: auth.RoleSecurityAdmin},
		"rita":  {ID: 2, Username: "rita", PasswordHash: string(hash), Role: auth.RoleReadOnly},
	}
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObserveCycle(time.Second)

	f := &fixture{
		scanner:  &fakeScanner{},
		controls: &fakeControls{},
		svc:      auth.NewService(users, "test-secret", time.Hour),
	}
	f.handler = NewRouter(Deps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Auth:           f.svc,
		Events:         events.NewMemory(events.Event{Kind: events.KindLogin, ActorID: "alice", Timestamp: time.Now().UTC()}),
		Scanner:        f.scanner,
		Controls:       f.controls,
		Gatherer:       reg,
		SchedulerToken: "sched-token",
	})
	return f
}

func (f *fixture) token(t *testing.T, username string) string {
	t.Helper()
	session, err := f.svc.Login(context.Background(), username, "pw")
	require.NoError(t, err)
	return session.Token
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sentraguard_scan_cycles_total 1")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)

	rec = f.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScanAccepts(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", nil)
	req.Header.Set("X-Api-Key", "sched-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/scan", nil)
	req.Header.Set("X-Api-Key", "wrong")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/scan", f.token(t, "alice"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stored":2`)

	rec = f.do(http.MethodPost, "/api/v1/scan", f.token(t, "rita"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/scan", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 2, f.scanner.runs)
}

func TestScanSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t)
	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.scanner.during = cancel

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", nil).WithContext(reqCtx)
	req.Header.Set("X-Api-Key", "sched-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Error(t, reqCtx.Err())
	assert.NoError(t, f.scanner.ctxErr)
	assert.True(t, f.scanner.hasDeadline)
}

func TestStatusRequiresToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/status", "", "").Code)
	rec := f.do(http.MethodGet, "/api/v1/status", f.token(t, "rita"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"operational"`)
}

func TestShutdownUsesTokenActor(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/shutdown", f.token(t, "alice"),
		`{"level":"partial","reason":"suspicious export","restore_after":"30m"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", f.controls.lastReq.TriggeredBy)
	assert.Equal(t, shutdown.LevelPartial, f.controls.lastReq.Level)
	assert.Equal(t, 30*time.Minute, f.controls.lastReq.RestoreAfter)
	assert.False(t, f.controls.lastReq.Automatic)
}

func TestShutdownErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %q", shutdown.ErrForbidden, "rita"), http.StatusForbidden},
		{fmt.Errorf("%w: partial active", shutdown.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: unknown level", shutdown.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("insert shutdown status: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.controls.shutErr = tc.err
		rec := f.do(http.MethodPost, "/api/v1/shutdown", f.token(t, "rita"), `{"level":"complete","reason":"test"}`)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestShutdownEnteredWithoutEmergencyEvent(t *testing.T) {
	f := newFixture(t)
	f.controls.linkErr = errors.New("record emergency event: connection reset")
	rec := f.do(http.MethodPost, "/api/v1/shutdown", f.token(t, "alice"), `{"level":"complete","reason":"lockdown"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "complete", body["shutdown_level"])
	assert.Contains(t, body["warning"], "record emergency event")
}

func TestShutdownValidatesBody(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "alice")
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/shutdown", tok, `{"level":"partial"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/shutdown", tok, `{"level":"partial","reason":"x","restore_after":"soon"}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/v1/shutdown", tok, "").Code)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/restore", f.token(t, "alice"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", f.controls.restorer)
	assert.Contains(t, rec.Body.String(), `"restored":false`)

	f.controls.restErr = fmt.Errorf("%w: %q", shutdown.ErrForbidden, "rita")
	rec = f.do(http.MethodPost, "/api/v1/restore", f.token(t, "rita"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventsQuery(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/events?kind=login", f.token(t, "rita"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var evts []events.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&evts))
	assert.Len(t, evts, 1)

	rec = f.do(http.MethodGet, "/api/v1/events?since=yesterday", f.token(t, "rita"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodOptions, "/api/v1/shutdown", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Api-Key")
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/terminal"
	"github.com/nerrad567/gray-logic-access/internal/terminal/simulator"
	"github.com/nerrad567/gray-logic-access/internal/terminal/terminaltest"
	_ "github.com/nerrad567/gray-logic-access/migrations" // registers the schema
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

var fixedNow = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

// recordingAuditor captures operation records synchronously.
type recordingAuditor struct {
	mu   sync.Mutex
	recs []terminal.OperationRecord
}

func (a *recordingAuditor) RecordOperation(_ context.Context, rec terminal.OperationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

func (a *recordingAuditor) records() []terminal.OperationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]terminal.OperationRecord(nil), a.recs...)
}

type testEnv struct {
	handler http.Handler
	fake    *terminaltest.Driver
	auditor *recordingAuditor
}

func terminalDefaults() config.TerminalConfig {
	return config.TerminalConfig{
		Host:              "192.168.1.201",
		Port:              4370,
		CommKey:           454545,
		Timeout:           5,
		Transport:         "tcp",
		FallbackTransport: "udp",
		Driver:            "simulator",
	}
}

// newTestEnv builds a server over the in-memory fake. mutate may adjust
// the deps before the server is created.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	fake := terminaltest.New()
	rec := &recordingAuditor{}
	svc := terminal.NewService(terminal.Options{
		Driver:    fake,
		Primary:   terminal.TransportTCP,
		Secondary: terminal.TransportUDP,
		Location:  time.UTC,
		Now:       func() time.Time { return fixedNow },
		Auditor:   rec,
	})

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Terminal: terminalDefaults(),
		Logger:   logging.Discard(),
		Service:  svc,
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &testEnv{handler: srv.Handler(), fake: fake, auditor: rec}
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

// ─── Server Tests ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without service should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health", "/api/v1/health"} {
		t.Run(path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, path, "")
			expectStatus(t, w, http.StatusOK)

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			resp := decode[map[string]any](t, w)
			if resp["status"] != "ok" || resp["version"] != "test" {
				t.Errorf("body = %v", resp)
			}
		})
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	if got := env.do(t, http.MethodGet, "/health", "").Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header to be set")
	}
	w := env.do(t, http.MethodGet, "/health", "", "X-Request-ID", "client-123")
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodOptions, "/api/v1/users", "", "Origin", "http://localhost:3000")
	expectStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
	if len(env.fake.Dials()) != 0 {
		t.Error("preflight should not reach the terminal")
	}
}

func TestNotFound_Envelope(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", "")
	expectStatus(t, w, http.StatusNotFound)
	if resp := decode[Error](t, w); resp.Error == "" {
		t.Error("expected error envelope")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Security.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	})

	for i := range 2 {
		w := env.do(t, http.MethodGet, "/api/v1/device/time", "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
	w := env.do(t, http.MethodGet, "/api/v1/device/time", "")
	expectStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Gateway liveness is not limited.
	expectStatus(t, env.do(t, http.MethodGet, "/health", ""), http.StatusOK)
}

func TestClientLimiterSweep(t *testing.T) {
	l := newClientLimiter(60)
	now := fixedNow
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(limiterTTL + time.Second)
	l.Allow("10.0.0.2")
	l.sweep()

	if _, ok := l.limiters["10.0.0.1"]; ok {
		t.Error("idle limiter should be swept")
	}
	if _, ok := l.limiters["10.0.0.2"]; !ok {
		t.Error("active limiter should be kept")
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestAuth(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Security.JWT = config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15}
	})

	token := func(role auth.Role) string {
		tok, err := auth.GenerateAccessToken("ops@site", role, testJWTSecret, time.Minute)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error = %v", err)
		}
		return "Bearer " + tok
	}

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		want   int
	}{
		{"health is open", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"missing token", http.MethodGet, "/api/v1/users", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/users", "Bearer nope", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/users", token(auth.RoleViewer), http.StatusOK},
		{"viewer cannot unlock", http.MethodPost, "/api/v1/device/unlock", token(auth.RoleViewer), http.StatusForbidden},
		{"operator unlocks", http.MethodPost, "/api/v1/device/unlock", token(auth.RoleOperator), http.StatusOK},
		{"operator cannot restart", http.MethodPost, "/api/v1/device/restart", token(auth.RoleOperator), http.StatusForbidden},
		{"admin restarts", http.MethodPost, "/api/v1/device/restart", token(auth.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.authz == "" {
				w = env.do(t, tt.method, tt.path, "")
			} else {
				w = env.do(t, tt.method, tt.path, "", "Authorization", tt.authz)
			}
			expectStatus(t, w, tt.want)
		})
	}

	recs := env.auditor.records()
	if len(recs) == 0 {
		t.Fatal("expected audited operations")
	}
	for _, rec := range recs {
		if rec.Actor != "ops@site" {
			t.Errorf("%s actor = %q, want token subject", rec.Action, rec.Actor)
		}
	}
}

// ─── Endpoint Parameter Tests ──────────────────────────────────────

func TestEndpointParams(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet,
		"/api/v1/device/time?ip=10.1.2.3&port=4371&comm_key=7&timeout=9&force_udp=true&ommit_ping=1", "")
	expectStatus(t, w, http.StatusOK)

	got := env.fake.LastEndpoint()
	want := terminal.Endpoint{
		Host:      "10.1.2.3",
		Port:      4371,
		CommKey:   7,
		Timeout:   9 * time.Second,
		Transport: terminal.TransportUDP,
		OmitPing:  true,
	}
	if got != want {
		t.Errorf("endpoint = %+v, want %+v", got, want)
	}

	env.do(t, http.MethodGet, "/api/v1/device/time?host=10.9.9.9&omit_ping=yes", "")
	if got := env.fake.LastEndpoint(); got.Host != "10.9.9.9" || !got.OmitPing || got.Port != 4370 || got.Transport != terminal.TransportTCP {
		t.Errorf("aliases and defaults: %+v", got)
	}
}

func TestEndpointParams_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, q := range []string{"port=abc", "port=70000", "comm_key=x", "timeout=0", "force_udp=maybe"} {
		t.Run(q, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/users?"+q, "")
			expectStatus(t, w, http.StatusBadRequest)
		})
	}
	if len(env.fake.Dials()) != 0 {
		t.Error("invalid endpoints must not dial")
	}
}

// ─── User Tests ────────────────────────────────────────────────────

func TestCreateThenListUsers(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/users",
		`{"uid": 7, "name": "Ann", "privilege": 0, "password": "1234", "group_id": 3, "user_id": "E007"}`)
	expectStatus(t, w, http.StatusOK)
	if resp := decode[map[string]any](t, w); resp["status"] != "success" {
		t.Errorf("create body = %v", resp)
	}

	w = env.do(t, http.MethodGet, "/api/v1/users", "")
	expectStatus(t, w, http.StatusOK)
	users := decode[[]map[string]any](t, w)
	if len(users) != 1 {
		t.Fatalf("users = %v, want 1", users)
	}
	u := users[0]
	if u["uid"] != float64(7) || u["name"] != "Ann" || u["user_id"] != "E007" {
		t.Errorf("user = %v", u)
	}
	for _, hidden := range []string{"group_id", "card", "password"} {
		if _, ok := u[hidden]; ok {
			t.Errorf("list projection should not include %s", hidden)
		}
	}

	w = env.do(t, http.MethodGet, "/api/v1/users/7", "")
	expectStatus(t, w, http.StatusOK)
	detail := decode[map[string]any](t, w)
	if detail["group_id"] != "3" {
		t.Errorf("group_id = %v, want \"3\"", detail["group_id"])
	}
	if _, ok := detail["password"]; ok {
		t.Error("detail should not include password")
	}
}

func TestCreateUser_GroupIDString(t *testing.T) {
	env := newTestEnv(t, nil)

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/users", `{"uid": 8, "name": "Bo", "group_id": "2"}`), http.StatusOK)
	u := env.fake.Terminal().Users[0]
	if u.GroupID != "2" || u.UserID != "8" {
		t.Errorf("stored user = %+v, want group 2 and user_id defaulted to uid", u)
	}
}

func TestCreateUser_BadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"uid":`},
		{"missing name", `{"uid": 9}`},
		{"uid out of range", `{"uid": 0, "name": "X"}`},
		{"group_id bool", `{"uid": 9, "name": "X", "group_id": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/users", tt.body)
			expectStatus(t, w, http.StatusBadRequest)
			if resp := decode[Error](t, w); resp.Error == "" {
				t.Error("expected error envelope")
			}
		})
	}
}

func TestUpdateUser_Merges(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.Terminal().Users = []terminal.RawUser{{UID: 5, Name: "A", Privilege: 0, GroupID: "1", UserID: "5"}}

	w := env.do(t, http.MethodPut, "/api/v1/users/5", `{"privilege": 1}`)
	expectStatus(t, w, http.StatusOK)

	resp := decode[struct {
		Status string     `json:"status"`
		User   userDetail `json:"user"`
	}](t, w)
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.User.UID != 5 || resp.User.Name != "A" || resp.User.Privilege != 1 {
		t.Errorf("user = %+v, want uid 5 name A privilege 1", resp.User)
	}
}

func TestUpdateUser_CardAndUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.Terminal().Users = []terminal.RawUser{{UID: 5, Name: "A", UserID: "5"}}

	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/users/5", `{"card": 123456}`), http.StatusOK)
	if got := env.fake.Terminal().Users[0].Card; got != 123456 {
		t.Errorf("card = %d, want 123456", got)
	}

	w := env.do(t, http.MethodPut, "/api/v1/users/42", `{"name": "Z"}`)
	expectStatus(t, w, http.StatusNotFound)
	if resp := decode[Error](t, w); !strings.Contains(resp.Error, "42") {
		t.Errorf("error = %q, want it to name the uid", resp.Error)
	}
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.Terminal().Users = []terminal.RawUser{
		{UID: 5, Name: "A", UserID: "5"},
		{UID: 6, Name: "B", UserID: "E006"},
	}

	w := env.do(t, http.MethodDelete, "/api/v1/users/5", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[map[string]any](t, w); resp["status"] != "deleted" || resp["uid"] != float64(5) {
		t.Errorf("body = %v", resp)
	}
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/users/5", ""), http.StatusNotFound)

	w = env.do(t, http.MethodDelete, "/api/v1/users/by_user_id/E006", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[map[string]any](t, w); resp["status"] != "deleted" || resp["user_id"] != "E006" {
		t.Errorf("body = %v", resp)
	}
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/users/by_user_id/E006", ""), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/users/abc", ""), http.StatusBadRequest)
}

func TestGetUser_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users/99", ""), http.StatusNotFound)
}

// ─── Attendance Tests ──────────────────────────────────────────────

func seedAttendance(env *testEnv) {
	at := func(s string) time.Time {
		t, _ := time.Parse(terminal.TimestampLayout, s)
		return t
	}
	env.fake.Terminal().Attendance = []terminal.RawAttendance{
		{UID: 1, UserID: "1", Timestamp: at("2024-05-02T09:00:00"), Status: 1},
		{UID: 1, UserID: "1", Timestamp: at("2024-06-20T08:00:00"), Status: 1},
		{UID: 2, UserID: "2", Timestamp: at("2024-06-20T23:59:00"), Status: 1},
		{UID: 1, UserID: "1", Timestamp: at("2024-06-21T00:01:00"), Status: 1},
		{UID: 1, UserID: "1", Timestamp: at("2024-04-30T17:00:00"), Status: 1},
	}
}

func TestAttendance(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAttendance(env)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"all", "/api/v1/attendance", 5},
		{"by date", "/api/v1/attendance?date=2024-06-20", 2},
		{"by user and date", "/api/v1/attendance?date=2024-06-20&user_id=1", 1},
		{"today", "/api/v1/attendance/today", 2},
		{"month window", "/api/v1/attendance/month", 3},
		{"user on date", "/api/v1/attendance/2/2024-06-20", 1},
		{"no matches", "/api/v1/attendance?user_id=nobody", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "")
			expectStatus(t, w, http.StatusOK)
			events := decode[[]map[string]any](t, w)
			if len(events) != tt.want {
				t.Errorf("events = %d, want %d: %v", len(events), tt.want, events)
			}
		})
	}
}

func TestAttendance_Shape(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAttendance(env)

	w := env.do(t, http.MethodGet, "/api/v1/attendance?date=2024-06-20&user_id=1", "")
	expectStatus(t, w, http.StatusOK)
	events := decode[[]map[string]any](t, w)
	if len(events) != 1 {
		t.Fatalf("events = %v", events)
	}
	e := events[0]
	if e["user_id"] != "1" || e["timestamp"] != "2024-06-20T08:00:00" || e["status"] != float64(1) {
		t.Errorf("event = %v", e)
	}
	if len(e) != 3 {
		t.Errorf("event keys = %v, want user_id, timestamp, status", e)
	}
}

func TestAttendance_BadDate(t *testing.T) {
	env := newTestEnv(t, nil)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/attendance?date=20-06-2024", ""), http.StatusBadRequest)
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestDeviceInfo_UnsupportedFieldsAreNull(t *testing.T) {
	env := newTestEnv(t, nil)
	delete(env.fake.Terminal().Info, terminal.FieldFaceVersion)
	env.fake.Terminal().InfoErrors[terminal.FieldMAC] = errors.New("read failed")

	w := env.do(t, http.MethodGet, "/api/v1/device/info", "")
	expectStatus(t, w, http.StatusOK)
	info := decode[map[string]any](t, w)

	if len(info) != len(terminal.InfoFields) {
		t.Errorf("info keys = %d, want %d", len(info), len(terminal.InfoFields))
	}
	if info["face_version"] != nil || info["mac"] != nil {
		t.Errorf("failed fields should be null: %v", info)
	}
	if info["device_name"] != "K40" {
		t.Errorf("device_name = %v", info["device_name"])
	}
}

func TestDeviceTime_SetAndGet(t *testing.T) {
	env := newTestEnv(t, nil)

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/device/time", `{"timestamp": "2024-07-01T10:11:12"}`), http.StatusOK)
	w := env.do(t, http.MethodGet, "/api/v1/device/time", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[map[string]string](t, w); resp["device_time"] != "2024-07-01T10:11:12" {
		t.Errorf("device_time = %q", resp["device_time"])
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/device/time?timestamp=2024-07-02%2008:00:00", ""), http.StatusOK)
	if got := env.fake.Terminal().Clock.Format(terminal.TimestampLayout); got != "2024-07-02T08:00:00" {
		t.Errorf("clock = %s", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/device/time", ""), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/device/time?timestamp=yesterday", ""), http.StatusBadRequest)
}

func TestDeviceReads(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/device/network", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[terminal.NetworkParams](t, w); resp.Gateway != "192.168.1.1" {
		t.Errorf("network = %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/api/v1/device/memory", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[terminal.MemoryUsage](t, w); resp.UsersCapacity != 3000 {
		t.Errorf("memory = %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/api/v1/device/memory/size", "")
	expectStatus(t, w, http.StatusOK)
	nested := decode[map[string]terminal.MemoryUsage](t, w)
	if nested["memory_size"].RecordsCapacity != 100000 {
		t.Errorf("memory_size = %+v", nested)
	}
}

func TestRestart(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		w := env.do(t, method, "/api/v1/device/restart", "")
		expectStatus(t, w, http.StatusOK)
		if resp := decode[map[string]any](t, w); resp["status"] != "success" {
			t.Errorf("%s body = %v", method, resp)
		}
	}
	if got := env.fake.Terminal().Restarts; got != 2 {
		t.Errorf("restarts = %d, want 2", got)
	}
}

func TestUnlock_FallsBackToUDP(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.FailDial(terminal.TransportTCP, errors.New("tcp refused"))

	w := env.do(t, http.MethodPost, "/api/v1/device/unlock?time=5", "")
	expectStatus(t, w, http.StatusOK)
	resp := decode[map[string]any](t, w)
	if resp["status"] != "success" || resp["transport"] != "udp" {
		t.Errorf("body = %v", resp)
	}
	if got := env.fake.Terminal().Unlocks; len(got) != 1 || got[0] != 5*time.Second {
		t.Errorf("unlocks = %v", got)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/device/unlock?time=0", ""), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/device/unlock?time=x", ""), http.StatusBadRequest)
}

func TestTestVoice(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/device/test-voice?voice_id=4", "")
	expectStatus(t, w, http.StatusOK)
	resp := decode[map[string]any](t, w)
	if resp["status"] != "success" || resp["voice_id"] != float64(4) || resp["transport"] != "tcp" {
		t.Errorf("body = %v", resp)
	}

	env.fake.FailDial(terminal.TransportTCP, errors.New("tcp refused"))
	env.fake.FailDial(terminal.TransportUDP, errors.New("udp timeout"))
	w = env.do(t, http.MethodPost, "/api/v1/device/test-voice", "")
	expectStatus(t, w, http.StatusInternalServerError)
	msg := decode[Error](t, w).Error
	if !strings.Contains(msg, "tcp refused") || !strings.Contains(msg, "udp timeout") {
		t.Errorf("error = %q, want both transport failures", msg)
	}
}

func TestDeviceHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/device/health", "")
	expectStatus(t, w, http.StatusOK)
	ok := decode[map[string]any](t, w)
	if ok["ok"] != true || ok["transport"] != "tcp" || ok["time"] != "2024-06-20T09:30:00" {
		t.Errorf("healthy body = %v", ok)
	}

	env.fake.FailDial(terminal.TransportTCP, errors.New("tcp refused"))
	env.fake.FailDial(terminal.TransportUDP, errors.New("udp timeout"))
	w = env.do(t, http.MethodGet, "/api/v1/device/health", "")
	expectStatus(t, w, http.StatusOK)
	bad := decode[map[string]any](t, w)
	if bad["ok"] != false {
		t.Errorf("ok = %v, want false", bad["ok"])
	}
	if bad["error"] != "health over tcp: tcp refused" || bad["udp_error"] != "health over udp: udp timeout" {
		t.Errorf("failure body = %v", bad)
	}
}

func TestDeviceStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/device/status", "")
	expectStatus(t, w, http.StatusOK)
	up := decode[map[string]any](t, w)
	if up["connected"] != true || up["transport"] != "tcp" {
		t.Errorf("body = %v", up)
	}
	if _, ok := up["latency_ms"].(float64); !ok {
		t.Errorf("latency_ms = %v, want a number", up["latency_ms"])
	}

	env.fake.FailDial(terminal.TransportTCP, errors.New("tcp refused"))
	env.fake.FailDial(terminal.TransportUDP, errors.New("udp timeout"))
	w = env.do(t, http.MethodGet, "/api/v1/device/status", "")
	expectStatus(t, w, http.StatusOK)
	down := decode[map[string]any](t, w)
	if down["connected"] != false || down["error"] == "" {
		t.Errorf("body = %v", down)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/device/connect", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[map[string]any](t, w); resp["status"] != "connected" {
		t.Errorf("body = %v", resp)
	}
	w = env.do(t, http.MethodPost, "/api/v1/device/disconnect", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decode[map[string]any](t, w); resp["status"] != "disconnected" {
		t.Errorf("body = %v", resp)
	}
	if got := env.fake.Disconnects(); got != 2 {
		t.Errorf("disconnects = %d, want 2", got)
	}
}

func TestToggle_NotImplemented(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/device/toggle", "")
	expectStatus(t, w, http.StatusNotImplemented)
	if resp := decode[Error](t, w); resp.Error == "" {
		t.Error("expected error envelope")
	}
	if len(env.fake.Dials()) != 0 {
		t.Error("toggle should not dial")
	}
}

func TestTerminalErrors_Flatten(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.RequireCommKey(1)

	w := env.do(t, http.MethodGet, "/api/v1/users", "")
	expectStatus(t, w, http.StatusInternalServerError)
	if msg := decode[Error](t, w).Error; !strings.Contains(msg, "comm key") {
		t.Errorf("error = %q", msg)
	}

	env.fake.RequireCommKey(0)
	env.fake.FailOp(terminaltest.MethodUsers, errors.New("checksum mismatch"))
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users", ""), http.StatusInternalServerError)
}

func TestPanicRecovered(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.PanicOp(terminaltest.MethodNetworkParams)

	w := env.do(t, http.MethodGet, "/api/v1/device/network", "")
	expectStatus(t, w, http.StatusInternalServerError)
	if env.fake.Disconnects() != 1 {
		t.Errorf("disconnects = %d, want session released once", env.fake.Disconnects())
	}
}

// ─── Audit Tests ───────────────────────────────────────────────────

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestListAuditLogs(t *testing.T) {
	repo := audit.NewSQLiteRepository(openTestDB(t).DB)
	ctx := context.Background()
	for _, action := range []string{"user.create", "door.unlock", "door.unlock"} {
		if err := repo.Create(ctx, &audit.AuditLog{Action: action, Endpoint: "tcp://192.168.1.201:4370"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	env := newTestEnv(t, func(d *Deps) { d.Audit = repo })

	w := env.do(t, http.MethodGet, "/api/v1/audit?action=door.unlock&limit=1", "")
	expectStatus(t, w, http.StatusOK)
	result := decode[audit.ListResult](t, w)
	if result.Total != 2 || len(result.Logs) != 1 || result.Limit != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestListAuditLogs_BadParams(t *testing.T) {
	repo := audit.NewSQLiteRepository(openTestDB(t).DB)
	env := newTestEnv(t, func(d *Deps) { d.Audit = repo })

	for _, q := range []string{"limit=ten", "offset=-x", "outcome=maybe"} {
		t.Run(q, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodGet, "/api/v1/audit?"+q, ""), http.StatusBadRequest)
		})
	}
}

func TestListAuditLogs_NotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/audit", ""), http.StatusInternalServerError)
}

// ─── Simulator Backend ─────────────────────────────────────────────

func TestSimulatorBackend(t *testing.T) {
	db := openTestDB(t)
	sim := simulator.New(db.DB, time.UTC, nil)
	if _, err := sim.Seed(context.Background(), config.SimulatedTerminal{
		Host:       "192.168.1.201",
		Port:       4370,
		CommKey:    454545,
		DeviceName: "K40",
	}); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	svc := terminal.NewService(terminal.Options{Driver: sim, Location: time.UTC})
	srv, err := New(Deps{Terminal: terminalDefaults(), Logger: logging.Discard(), Service: svc, Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env := &testEnv{handler: srv.Handler()}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/users", `{"uid": 3, "name": "Cy", "user_id": "E003"}`), http.StatusOK)

	w := env.do(t, http.MethodGet, "/api/v1/users", "")
	expectStatus(t, w, http.StatusOK)
	users := decode[[]userSummary](t, w)
	if len(users) != 1 || users[0].UserID != "E003" {
		t.Errorf("users = %+v", users)
	}

	w = env.do(t, http.MethodGet, "/api/v1/users?comm_key=1", "")
	expectStatus(t, w, http.StatusInternalServerError)
	if decode[Error](t, w).Error == "" {
		t.Error("expected error envelope for rejected comm key")
	}
}

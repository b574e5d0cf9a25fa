package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
)

type testServer struct {
	t   *testing.T
	app *fiber.App
}

type serverOptions struct {
	loginPerMinute int
	loginBurst     int
	deps           map[string]handlers.Pinger
	sessionStore   repository.SessionRepository
	logger         *zap.Logger
}

func newTestServer(t *testing.T, loginPerMinute, loginBurst int, deps map[string]handlers.Pinger) *testServer {
	return newTestServerWith(t, serverOptions{loginPerMinute: loginPerMinute, loginBurst: loginBurst, deps: deps})
}

func newTestServerWith(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := opts.sessionStore
	if store == nil {
		store = memory.NewSessionRepository()
	}
	loginPerMinute, loginBurst, deps := opts.loginPerMinute, opts.loginBurst, opts.deps
	metrics := observability.NewMetrics("helpdesk")

	users := memory.NewUserRepository()
	sessions := auth.NewSessionManager(store, 7*24*time.Hour)
	sessionMW := auth.NewSessionMiddleware(sessions, users, auth.CookieConfig{Name: "sid"}, logger)

	authService, err := service.NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, service.AuthDependencies{
		UserRepo: users,
		Sessions: sessions,
		Metrics:  metrics,
		Logger:   logger,
	})
	require.NoError(t, err)
	require.NoError(t, authService.SeedDefaultUsers(context.Background()))

	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, logger, metrics).RegisterHandlers()
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: memory.NewTicketRepository(),
		UserRepo:   users,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := NewApp("helpdesk-test", logger)
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:       handlers.NewHealthHandler("helpdesk", "test", deps),
		Auth:         handlers.NewAuthHandler(authService, sessionMW, logger),
		Users:        handlers.NewUsersHandler(authService),
		Tickets:      handlers.NewTicketsHandler(ticketService),
		Sessions:     sessionMW,
		LoginLimiter: LoginRateLimiter(loginPerMinute, loginBurst),
		Metrics:      metrics,
	})
	return &testServer{t: t, app: app}
}

func (s *testServer) do(method, path, cookie string, body any) (*http.Response, []byte) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: cookie})
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp, data
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	resp, _ := s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			return c.Value
		}
	}
	s.t.Fatal("no session cookie set")
	return ""
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestLoginFlow(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)

	resp, body := s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "password")
	payload := decode[map[string]any](t, body)
	assert.Equal(t, "Login successful", payload["message"])
	assert.Equal(t, "admin", payload["user"].(map[string]any)["role"])
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "HttpOnly")

	resp, body = s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	env := decode[errorEnvelope](t, body)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	assert.Equal(t, "Invalid username or password", env.Error.Message)

	resp, body = s.do(http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "ghost", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid username or password", decode[errorEnvelope](t, body).Error.Message)
}

func TestLoginRejectsMissingOrPaddedCredentials(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)

	for _, creds := range []fiber.Map{
		{"username": "admin", "password": ""},
		{"username": "admin"},
		{},
		{"username": " admin ", "password": "admin123"},
	} {
		resp, body := s.do(http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "credentials %v", creds)
		env := decode[errorEnvelope](t, body)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
		assert.Equal(t, "Invalid username or password", env.Error.Message)
	}
}

type failingDeleteStore struct {
	repository.SessionRepository
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("session store unavailable")
}

func TestLoginLogsFailedSessionReplacement(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := newTestServerWith(t, serverOptions{
		sessionStore: failingDeleteStore{SessionRepository: memory.NewSessionRepository()},
		logger:       zap.New(core),
	})

	old := s.login("user", "user123")
	resp, _ := s.do(http.MethodPost, "/api/auth/login", old, fiber.Map{"username": "user", "password": "user123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := logs.FilterMessage("destroy replaced session").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "session store unavailable")
}

func TestCurrentUserAndLogout(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)

	resp, body := s.do(http.MethodGet, "/api/auth/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication required", decode[errorEnvelope](t, body).Error.Message)

	token := s.login("user", "user123")
	resp, body = s.do(http.MethodGet, "/api/auth/user", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user", decode[map[string]any](t, body)["username"])

	resp, _ = s.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "sid=;")

	resp, _ = s.do(http.MethodGet, "/api/auth/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)
	body := fiber.Map{"username": "newbie", "password": "secret1", "confirmPassword": "secret1", "role": "admin"}

	resp, data := s.do(http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	payload := decode[map[string]any](t, data)
	assert.Equal(t, "User created successfully", payload["message"])
	assert.Equal(t, "user", payload["user"].(map[string]any)["role"])
	assert.Empty(t, resp.Header.Get("Set-Cookie"))

	resp, data = s.do(http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_RESOURCE", decode[errorEnvelope](t, data).Error.Code)

	resp, data = s.do(http.MethodPost, "/api/auth/register", "", fiber.Map{"username": "x", "password": "secret1", "confirmPassword": "other"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decode[errorEnvelope](t, data)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "username")
	assert.Contains(t, env.Error.Details, "confirmPassword")

	s.login("newbie", "secret1")
}

func TestTicketAccessControl(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)
	admin := s.login("admin", "admin123")
	user := s.login("user", "user123")

	resp, _ := s.do(http.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data := s.do(http.MethodPost, "/api/tickets", user, fiber.Map{
		"date": "2024-01-01", "room": "Lab Room", "issue": "Projector broken", "createdBy": "someone-else",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	userTicket := decode[map[string]any](t, data)
	assert.Equal(t, "pending", userTicket["status"])
	me := decode[map[string]any](t, mustBody(s.do(http.MethodGet, "/api/auth/user", user, nil)))
	assert.Equal(t, me["id"], userTicket["createdBy"])

	resp, data = s.do(http.MethodPost, "/api/tickets", admin, fiber.Map{
		"date": "2024-01-02", "room": "Server Room", "issue": "Rack fan noisy",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	adminTicket := decode[map[string]any](t, data)

	resp, data = s.do(http.MethodGet, "/api/tickets", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, data), 1)

	resp, data = s.do(http.MethodGet, "/api/tickets", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]map[string]any](t, data)
	require.Len(t, list, 2)
	assert.Equal(t, adminTicket["id"], list[0]["id"])

	resp, _ = s.do(http.MethodGet, "/api/tickets/"+adminTicket["id"].(string), user, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/api/tickets/does-not-exist", user, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = s.do(http.MethodPatch, "/api/tickets/"+adminTicket["id"].(string), user, fiber.Map{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	userTicketPath := "/api/tickets/" + userTicket["id"].(string)
	resp, data = s.do(http.MethodPatch, userTicketPath, user, fiber.Map{"status": "resolved", "actionTaken": "Replaced lamp"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decode[map[string]any](t, data)
	assert.Equal(t, "resolved", patched["status"])
	assert.Equal(t, "Replaced lamp", patched["actionTaken"])
	assert.Equal(t, "Lab Room", patched["room"])

	resp, data = s.do(http.MethodPatch, userTicketPath, user, fiber.Map{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[errorEnvelope](t, data).Error.Details, "status")

	resp, data = s.do(http.MethodGet, "/api/stats", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"total": 1.0, "pending": 0.0, "resolved": 1.0, "thisWeek": 1.0}, decode[map[string]any](t, data))

	resp, _ = s.do(http.MethodDelete, userTicketPath, user, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = s.do(http.MethodDelete, userTicketPath, admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(http.MethodDelete, userTicketPath, admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, userTicketPath, user, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTicketTextRoundTripsVerbatim(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)
	user := s.login("user", "user123")

	resp, data := s.do(http.MethodPost, "/api/tickets", user, fiber.Map{
		"date": "2024-01-01", "room": " Lab Room ", "issue": "Projector broken\n", "actionTaken": "",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]any](t, data)

	resp, data = s.do(http.MethodGet, "/api/tickets/"+created["id"].(string), user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, data)
	assert.Equal(t, " Lab Room ", got["room"])
	assert.Equal(t, "Projector broken\n", got["issue"])
	assert.Equal(t, "", got["actionTaken"])
	assert.Nil(t, got["solvedBy"])

	resp, data = s.do(http.MethodPost, "/api/tickets", user, fiber.Map{"date": "2024-01-01", "room": "  ", "issue": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "must not be blank", decode[errorEnvelope](t, data).Error.Details["room"])
}

func mustBody(_ *http.Response, body []byte) []byte {
	return body
}

func TestUsersListIsAdminOnly(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)

	resp, _ := s.do(http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data := s.do(http.MethodGet, "/api/users", s.login("user", "user123"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Admin access required", decode[errorEnvelope](t, data).Error.Message)

	resp, data = s.do(http.MethodGet, "/api/users", s.login("admin", "admin123"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, data), 2)
	assert.NotContains(t, string(data), "password")
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, 1, 2, nil)
	creds := fiber.Map{"username": "admin", "password": "bad"}

	for i := 0; i < 2; i++ {
		resp, _ := s.do(http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, data := s.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", decode[errorEnvelope](t, data).Error.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 0, 0, map[string]handlers.Pinger{"postgres": stubPinger{}})
	resp, _ := s.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "helpdesk_http_requests_total")

	down := newTestServer(t, 0, 0, map[string]handlers.Pinger{"redis": stubPinger{err: errors.New("connection refused")}})
	resp, data = down.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), "connection refused")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t, 0, 0, nil)
	resp, data := s.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[errorEnvelope](t, data).Error.Code)
}

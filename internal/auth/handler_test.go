package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/users"
)

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]*users.User
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: map[string]*users.User{}}
}

func (m *memUsers) Create(_ context.Context, name, email, hash string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	if _, ok := m.byEmail[email]; ok {
		return nil, users.ErrEmailTaken
	}
	u := &users.User{ID: uuid.New(), Name: name, Email: email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	m.byEmail[email] = u
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEmail[strings.ToLower(email)], nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	u, _ := m.GetByEmail(context.Background(), email)
	return u != nil, nil
}

type handlerFixture struct {
	handler *Handler
	users   *memUsers
	events  *events.Recorder
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	svc, _ := newTestService(t)
	f := handlerFixture{users: newMemUsers(), events: &events.Recorder{}}
	f.handler = NewHandler(svc, f.users, f.events)
	return f
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeTokens(t *testing.T, rec *httptest.ResponseRecorder) TokenPair {
	t.Helper()
	var body struct {
		Data TokenPair `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestRegister(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.handler.Register, "/api/v1/auth/register", map[string]string{
		"name": "Amina", "email": "Amina@Example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	pair := decodeTokens(t, rec)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, []string{events.TypeUserRegistered}, f.events.Types())

	rec = postJSON(t, f.handler.Register, "/api/v1/auth/register", map[string]string{
		"name": "Amina", "email": "amina@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_Validation(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short password", map[string]string{"name": "A", "email": "a@example.com", "password": "short"}},
		{"bad email", map[string]string{"name": "A", "email": "not-an-email", "password": "password123"}},
		{"missing name", map[string]string{"email": "a@example.com", "password": "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, f.handler.Register, "/api/v1/auth/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegister_MultiBytePassword(t *testing.T) {
	f := newHandlerFixture(t)

	// 40 characters, 80 bytes.
	rec := postJSON(t, f.handler.Register, "/api/v1/auth/register", map[string]string{
		"name": "Hélène", "email": "helene@example.com", "password": strings.Repeat("é", 40),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "password exceeds 72 bytes")
	assert.Empty(t, f.users.byEmail)
	assert.Empty(t, f.events.Types())

	// 36 characters, exactly 72 bytes.
	rec = postJSON(t, f.handler.Register, "/api/v1/auth/register", map[string]string{
		"name": "Hélène", "email": "helene@example.com", "password": strings.Repeat("é", 36),
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogin(t *testing.T) {
	f := newHandlerFixture(t)
	rec := postJSON(t, f.handler.Register, "/", map[string]string{
		"name": "Youssef", "email": "youssef@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("json body", func(t *testing.T) {
		rec := postJSON(t, f.handler.Login, "/api/v1/auth/login", map[string]string{
			"email": "youssef@example.com", "password": "password123",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeTokens(t, rec).RefreshToken)
	})

	t.Run("oauth2 password form", func(t *testing.T) {
		form := url.Values{"username": {"youssef@example.com"}, "password": {"password123"}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.handler.Login(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := postJSON(t, f.handler.Login, "/", map[string]string{
			"email": "youssef@example.com", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body api.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "invalid email or password", body.Error)
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := postJSON(t, f.handler.Login, "/", map[string]string{
			"email": "ghost@example.com", "password": "password123",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	f := newHandlerFixture(t)
	rec := postJSON(t, f.handler.Register, "/", map[string]string{
		"name": "Salma", "email": "salma@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	pair := decodeTokens(t, rec)

	rec = postJSON(t, f.handler.Refresh, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeTokens(t, rec)

	rec = postJSON(t, f.handler.Refresh, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	claims, err := f.handler.authSvc.ValidateAccessToken(rotated.AccessToken)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = req.WithContext(WithUserClaims(req.Context(), claims))
	out := httptest.NewRecorder()
	f.handler.Logout(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	rec = postJSON(t, f.handler.Refresh, "/api/v1/auth/refresh", map[string]string{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	f := newHandlerFixture(t)
	rec := postJSON(t, f.handler.Register, "/", map[string]string{
		"name": "Karim", "email": "karim@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	claims, err := f.handler.authSvc.ValidateAccessToken(decodeTokens(t, rec).AccessToken)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(WithUserClaims(req.Context(), claims))
	out := httptest.NewRecorder()
	f.handler.Me(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var body struct {
		Data users.Profile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &body))
	assert.Equal(t, "Karim", body.Data.Name)
	assert.Equal(t, "karim@example.com", body.Data.Email)
	assert.NotContains(t, out.Body.String(), "password")
}

func TestMiddleware(t *testing.T) {
	mgr := newTestJWT()
	pair, _, err := mgr.GenerateTokenPair("user-1", "a@example.com")
	require.NoError(t, err)

	var seen *AccessClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(mgr)(next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + pair.AccessToken, http.StatusNoContent},
		{"lowercase scheme", "bearer " + pair.AccessToken, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "user-1", seen.UserID)
			}
		})
	}
}

package conversations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/auth"
	"github.com/moroccoguide/guide/internal/crypto"
	"github.com/moroccoguide/guide/internal/events"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type memRepo struct {
	mu    sync.Mutex
	logs  map[uuid.UUID]int
	turns map[uuid.UUID][]sealedTurn
}

func newMemRepo() *memRepo {
	return &memRepo{logs: map[uuid.UUID]int{}, turns: map[uuid.UUID][]sealedTurn{}}
}

func (m *memRepo) Append(_ context.Context, userID uuid.UUID, turn sealedTurn) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.logs[userID]
	m.logs[userID]++
	m.turns[userID] = append(m.turns[userID], turn)
	return !existed, nil
}

func (m *memRepo) List(_ context.Context, userID uuid.UUID, page, pageSize int) ([]sealedTurn, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append([]sealedTurn(nil), m.turns[userID]...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []sealedTurn{}, int64(len(all)), nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], int64(len(all)), nil
}

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	sealer, err := crypto.NewSealer(testKey)
	require.NoError(t, err)
	repo := newMemRepo()
	return NewService(repo, sealer), repo
}

func TestService_SaveReportsCreatedThenAppended(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	first, err := svc.Save(ctx, user, "Where to stay in Fes?", "A riad in the medina.")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, user, first.UserID)

	second, err := svc.Save(ctx, user, "And in Tangier?", "Near the kasbah.")
	require.NoError(t, err)
	assert.False(t, second.Created)

	stored := repo.turns[user]
	require.Len(t, stored, 2)
	assert.NotContains(t, stored[0].Query, "Fes", "text is encrypted at rest")
	assert.NotContains(t, stored[0].Response, "riad")
}

func TestService_ListDecrypts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := svc.Save(ctx, user, "q1", "r1")
	require.NoError(t, err)
	_, err = svc.Save(ctx, user, "q2", "r2")
	require.NoError(t, err)

	turns, total, err := svc.List(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, turns, 2)

	got := []string{turns[0].Query + "/" + turns[0].Response, turns[1].Query + "/" + turns[1].Response}
	assert.ElementsMatch(t, []string{"q1/r1", "q2/r2"}, got)
}

func TestService_ListRejectsForeignCiphertext(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner, intruder := uuid.New(), uuid.New()

	_, err := svc.Save(ctx, owner, "secret plans", "Atlas trek")
	require.NoError(t, err)
	repo.turns[intruder] = repo.turns[owner]

	_, _, err = svc.List(ctx, intruder, 1, 10)
	assert.ErrorIs(t, err, crypto.ErrMalformed)
}

func TestService_ListNormalizesPaging(t *testing.T) {
	svc, _ := newTestService(t)
	turns, total, err := svc.List(context.Background(), uuid.New(), 0, 1000)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, turns)
}

func request(method, body string, user uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/conversations", strings.NewReader(body))
	return req.WithContext(auth.WithUserClaims(req.Context(), &auth.AccessClaims{UserID: user.String()}))
}

func TestHandler_SaveAndList(t *testing.T) {
	svc, _ := newTestService(t)
	rec := &events.Recorder{}
	h := NewHandler(svc, rec)
	user := uuid.New()

	out := httptest.NewRecorder()
	h.Save(out, request(http.MethodPost, `{"query":"Best souk?","response":"Marrakech souks."}`, user))
	require.Equal(t, http.StatusCreated, out.Code, out.Body.String())

	var saved struct {
		Data    SaveResult `json:"data"`
		Message string     `json:"message"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &saved))
	assert.True(t, saved.Data.Created)
	assert.Equal(t, "conversation saved", saved.Message)
	assert.Equal(t, []string{events.TypeConversationSaved}, rec.Types())

	out = httptest.NewRecorder()
	h.Save(out, request(http.MethodPost, `{"query":"Best beach?","response":"Essaouira."}`, user))
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &saved))
	assert.False(t, saved.Data.Created)
	assert.Equal(t, "conversation appended", saved.Message)

	out = httptest.NewRecorder()
	h.List(out, request(http.MethodGet, "", user))
	require.Equal(t, http.StatusOK, out.Code)

	var page struct {
		Data       []Turn `json:"data"`
		TotalCount int64  `json:"total_count"`
		PageSize   int    `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.TotalCount)
	assert.Equal(t, defaultPageSize, page.PageSize)
	assert.Len(t, page.Data, 2)
}

func TestHandler_SaveValidation(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, events.Nop{})

	out := httptest.NewRecorder()
	h.Save(out, request(http.MethodPost, `{"query":"","response":"x"}`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, out.Code)

	out = httptest.NewRecorder()
	h.Save(out, request(http.MethodPost, `not json`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, out.Code)

	out = httptest.NewRecorder()
	h.Save(out, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, out.Code)
	var body api.Response
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body.Error)
}

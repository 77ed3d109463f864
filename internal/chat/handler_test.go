package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moroccoguide/guide/internal/api"
	"github.com/moroccoguide/guide/internal/auth"
	"github.com/moroccoguide/guide/internal/events"
	"github.com/moroccoguide/guide/internal/generation"
	"github.com/moroccoguide/guide/internal/memory"
	"github.com/moroccoguide/guide/internal/pipeline"
	"github.com/moroccoguide/guide/internal/quota"
	"github.com/moroccoguide/guide/internal/retrieval"
)

type embedder struct{}

func (embedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type searcher struct{}

func (searcher) Search(context.Context, []float32, int) ([]retrieval.Hit, error) {
	return []retrieval.Hit{{Score: 0.9, Metadata: map[string]any{
		"title": "Marrakech", "category": "City", "description": "The Red City.",
	}}}, nil
}

type completer struct {
	text string
	err  error
}

func (c completer) Complete(context.Context, string) (generation.Completion, error) {
	return generation.Completion{Text: c.text, TokensUsed: 97}, c.err
}

type fakeQuota struct {
	checkErr error
	deducted int
	checks   int
}

func (f *fakeQuota) Check(context.Context, uuid.UUID) error {
	f.checks++
	return f.checkErr
}

func (f *fakeQuota) Deduct(_ context.Context, _ uuid.UUID, tokens int) error {
	f.deducted += tokens
	return nil
}

type fixture struct {
	handler *Handler
	store   *memory.InProcessStore
	quota   *fakeQuota
	events  *events.Recorder
	user    uuid.UUID
}

func newFixture(llm completer) fixture {
	f := fixture{
		store:  memory.NewInProcessStore(0),
		quota:  &fakeQuota{},
		events: &events.Recorder{},
		user:   uuid.New(),
	}
	p := pipeline.New(f.store,
		retrieval.NewRetriever(embedder{}, searcher{}),
		generation.NewGenerator(llm, time.Second))
	f.handler = NewHandler(p, f.quota, f.events)
	return f
}

func (f fixture) do(t *testing.T, h http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req = req.WithContext(auth.WithUserClaims(req.Context(), &auth.AccessClaims{UserID: f.user.String()}))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func askBody(t *testing.T, query string) string {
	t.Helper()
	data, err := json.Marshal(AskRequest{Query: query})
	require.NoError(t, err)
	return string(data)
}

func TestAsk(t *testing.T) {
	f := newFixture(completer{text: "Spring and autumn are ideal for Marrakech."})

	rec := f.do(t, f.handler.Ask, http.MethodPost, askBody(t, "When should I visit Marrakech?"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data AskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Spring and autumn are ideal for Marrakech.", body.Data.Answer)

	assert.Equal(t, 97, f.quota.deducted)
	assert.Equal(t, []string{events.TypeConversationAnswered}, f.events.Types())

	entries, err := f.store.Entries(context.Background(), f.user.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "When should I visit Marrakech?", entries[0].Input)
}

func TestAsk_EmptyQuery(t *testing.T) {
	f := newFixture(completer{text: "unused"})

	for _, q := range []string{"", "   ", "\t\n"} {
		rec := f.do(t, f.handler.Ask, http.MethodPost, askBody(t, q))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "query must not be empty")
	}
	assert.Zero(t, f.quota.checks, "blank questions never reach the quota gate")
	assert.Zero(t, f.quota.deducted)
	assert.Empty(t, f.events.Types())
}

func TestAsk_MalformedBody(t *testing.T) {
	f := newFixture(completer{text: "unused"})
	rec := f.do(t, f.handler.Ask, http.MethodPost, "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_GenerationFailure(t *testing.T) {
	f := newFixture(completer{err: errors.New("upstream 503")})

	rec := f.do(t, f.handler.Ask, http.MethodPost, askBody(t, "Is Fes safe at night?"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body api.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "could not generate an answer, please try again", body.Error)
	assert.NotContains(t, body.Error, "503")
	assert.Zero(t, f.quota.deducted)
}

func TestAsk_QuotaExceeded(t *testing.T) {
	f := newFixture(completer{text: "unused"})
	f.quota.checkErr = &quota.ExceededError{Limit: quota.LimitMinute, Message: "rate limit exceeded: max 20 questions per minute", RetryAfter: time.Minute}

	rec := f.do(t, f.handler.Ask, http.MethodPost, askBody(t, "Best tagine in Rabat?"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{events.TypeQuotaExceeded}, f.events.Types())

	entries, _ := f.store.Entries(context.Background(), f.user.String())
	assert.Empty(t, entries)
}

func TestAsk_QuotaStoreErrorDoesNotBlock(t *testing.T) {
	f := newFixture(completer{text: "Yes."})
	f.quota.checkErr = errors.New("connection reset")

	rec := f.do(t, f.handler.Ask, http.MethodPost, askBody(t, "Can I visit Chefchaouen in a day?"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAsk_WithoutQuota(t *testing.T) {
	f := newFixture(completer{text: "Yes."})
	f.handler.quota = nil

	rec := f.do(t, f.handler.Ask, http.MethodPost, askBody(t, "Is Agadir good for surfing?"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetAndHistory(t *testing.T) {
	f := newFixture(completer{text: "Try the Merzouga dunes."})

	require.Equal(t, http.StatusOK, f.do(t, f.handler.Ask, http.MethodPost, askBody(t, "Desert trip?")).Code)

	rec := f.do(t, f.handler.History, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Data []memory.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Data, 1)
	assert.Equal(t, "Try the Merzouga dunes.", hist.Data[0].Output)

	rec = f.do(t, f.handler.Reset, http.MethodPost, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msg api.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "conversation history cleared", msg.Message)

	entries, _ := f.store.Entries(context.Background(), f.user.String())
	assert.Empty(t, entries)
	assert.Contains(t, f.events.Types(), events.TypeConversationReset)
}

func TestReset_OnlyClearsCallerSession(t *testing.T) {
	f := newFixture(completer{text: "ok"})
	other := uuid.New().String()
	require.NoError(t, f.store.GetOrCreate(other).Append(context.Background(), "hi", "hello"))

	require.Equal(t, http.StatusOK, f.do(t, f.handler.Reset, http.MethodPost, `{"session_id":"`+other+`"}`).Code)

	entries, _ := f.store.Entries(context.Background(), other)
	assert.Len(t, entries, 1)
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(completer{text: "ok"})
	for _, h := range []http.HandlerFunc{f.handler.Ask, f.handler.Reset, f.handler.History} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{&pipeline.Error{Kind: pipeline.KindInvalidInput, Message: "m"}, http.StatusBadRequest},
		{&pipeline.Error{Kind: pipeline.KindGeneration, Message: "m"}, http.StatusBadGateway},
		{&pipeline.Error{Kind: pipeline.KindEmbedding, Message: "m"}, http.StatusInternalServerError},
		{&pipeline.Error{Kind: pipeline.KindRetrieval, Message: "m"}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, toAppError(tt.err).Code)
	}
}

package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeSearcher struct {
	hits  []Hit
	err   error
	topK  int
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, topK int) ([]Hit, error) {
	f.calls++
	f.topK = topK
	return f.hits, f.err
}

func TestRetrieve_FormatsHitsInOrder(t *testing.T) {
	searcher := &fakeSearcher{hits: []Hit{
		{Score: 0.9, Metadata: map[string]any{"title": "Jemaa el-Fnaa", "category": "Square", "description": "Main square of Marrakech."}},
		{Score: 0.8, Metadata: map[string]any{"title": "Majorelle Garden", "category": "Garden", "description": "Blue villa and garden."}},
	}}
	r := NewRetriever(&fakeEmbedder{vec: []float32{0.1, 0.2}}, searcher)

	got, err := r.Retrieve(context.Background(), "Marrakech sights")
	require.NoError(t, err)

	want := "Title: Jemaa el-Fnaa\nCategory: Square\nDescription: Main square of Marrakech.\n\n" +
		"Title: Majorelle Garden\nCategory: Garden\nDescription: Blue villa and garden.\n\n"
	assert.Equal(t, want, got)
	assert.Equal(t, TopK, searcher.topK)
}

func TestRetrieve_AlwaysRequestsThree(t *testing.T) {
	searcher := &fakeSearcher{}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, searcher)

	_, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 3, searcher.topK)
}

func TestRetrieve_NoHitsIsEmptyContext(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, &fakeSearcher{})

	got, err := r.Retrieve(context.Background(), "nothing matches")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestRetrieve_MissingFieldsRenderEmpty(t *testing.T) {
	searcher := &fakeSearcher{hits: []Hit{
		{Metadata: map[string]any{"title": "Chefchaouen"}},
		{Metadata: nil},
		{Metadata: map[string]any{"title": "Erg Chebbi", "category": nil, "description": 42}},
	}}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, searcher)

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)

	want := "Title: Chefchaouen\nCategory: \nDescription: \n\n" +
		"Title: \nCategory: \nDescription: \n\n" +
		"Title: Erg Chebbi\nCategory: \nDescription: 42\n\n"
	assert.Equal(t, want, got)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	searcher := &fakeSearcher{}
	r := NewRetriever(&fakeEmbedder{err: errors.New("quota exhausted")}, searcher)

	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.NotErrorIs(t, err, ErrRetrieval)
	assert.Zero(t, searcher.calls)
}

func TestRetrieve_SearchFailure(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, &fakeSearcher{err: errors.New("connection refused")})

	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.NotErrorIs(t, err, ErrEmbedding)
}

func TestRetrieve_EmptyVectorIsEmbeddingFailure(t *testing.T) {
	searcher := &fakeSearcher{}
	r := NewRetriever(&fakeEmbedder{vec: nil}, searcher)

	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Zero(t, searcher.calls)
}

type blockingSearcher struct{}

func (blockingSearcher) Search(ctx context.Context, _ []float32, _ int) ([]Hit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRetrieve_SearchTimeout(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, blockingSearcher{}, WithTimeouts(0, 20*time.Millisecond))

	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

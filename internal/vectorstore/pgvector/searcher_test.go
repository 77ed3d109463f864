package pgvector

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func TestBuildMetadata_ColumnsOverrideJSON(t *testing.T) {
	meta := buildMetadata(strp("Volubilis"), strp("Ruins"), nil, []byte(`{"title":"old","city":"Meknes"}`))

	assert.Equal(t, "Volubilis", meta["title"])
	assert.Equal(t, "Ruins", meta["category"])
	assert.Equal(t, "Meknes", meta["city"])
	_, ok := meta["description"]
	assert.False(t, ok)
}

func TestBuildMetadata_BadOrNullJSON(t *testing.T) {
	meta := buildMetadata(strp("Ifrane"), nil, nil, []byte(`not json`))
	assert.Equal(t, "Ifrane", meta["title"])

	meta = buildMetadata(nil, nil, nil, []byte(`null`))
	assert.NotNil(t, meta)
	assert.Empty(t, meta)
}

func TestBuildMetadata_LogsMalformedJSON(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	meta := buildMetadata(strp("Tangier"), nil, nil, []byte(`["not","an","object"]`))
	assert.Equal(t, map[string]any{"title": "Tangier"}, meta)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "malformed metadata")
	assert.Contains(t, buf.String(), "title=Tangier")

	buf.Reset()
	buildMetadata(strp("Tangier"), nil, nil, []byte(`{"region":"north"}`))
	assert.Empty(t, buf.String())
}

func TestNewSearcher_QuotesTable(t *testing.T) {
	s := NewSearcher(nil, `places"; drop table users; --`)
	assert.Contains(t, s.query, `FROM "places""; drop table users; --"`)
}

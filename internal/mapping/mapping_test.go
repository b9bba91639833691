package mapping

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/catalog"
)

func testFields() []catalog.FieldDefinition {
	return []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", GroupKey: "title", SearchField: true},
		{FieldClass: "title", Name: "alternative", GroupKey: "title", SearchField: true},
		{FieldClass: "author", Name: "personal", GroupKey: "author", SearchField: true, FacetField: true},
		{FieldClass: "keyword", Name: "keyword", GroupKey: "keyword", SearchField: true},
		{FieldClass: "keyword", Name: "publisher", GroupKey: "keyword", FacetField: true},
	}
}

var testOpts = Options{LanguageAnalyzer: "english", NonSortableClasses: []string{"keyword"}}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build(testFields(), testOpts)
	require.NoError(t, err)

	reversed := testFields()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b, err := Build(reversed, testOpts)
	require.NoError(t, err)

	ja, err := a.JSON()
	require.NoError(t, err)
	jb, err := b.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
	assert.Equal(t, a, b)
}

func TestBuildFanOut(t *testing.T) {
	fields := testFields()
	m, err := Build(fields, testOpts)
	require.NoError(t, err)

	used := make(map[string]bool)
	for _, f := range fields {
		p, ok := m.Properties[f.Key()]
		require.True(t, ok, f.Key())
		assert.Equal(t, f.GroupKey, p.CopyTo)
		_, ok = m.Properties[p.CopyTo]
		assert.True(t, ok, "group %s exists", p.CopyTo)
		used[p.CopyTo] = true
	}
	for _, g := range []string{"title", "author", "keyword"} {
		assert.Empty(t, m.Properties[g].CopyTo)
		assert.True(t, used[g])
	}
}

func TestBuildExactSubField(t *testing.T) {
	m, err := Build(testFields(), testOpts)
	require.NoError(t, err)

	tests := []struct {
		name  string
		exact bool
	}{
		{"title", true},
		{"title|proper", true},
		{"author|personal", true},
		{"keyword", false},
		{"keyword|keyword", false},
		{"keyword|publisher", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := m.Properties[tt.name]
			assert.Equal(t, "text", p.Type)
			assert.Equal(t, "english", p.Analyzer)
			assert.Equal(t, FoldingAnalyzer, p.Fields[FoldedSubField].Analyzer)
			_, ok := p.Fields[ExactSubField]
			assert.Equal(t, tt.exact, ok)
		})
	}
}

func TestBuildFixedFields(t *testing.T) {
	m, err := Build(nil, testOpts)
	require.NoError(t, err)

	assert.Len(t, m.Properties, 4)
	assert.Equal(t, "integer", m.Properties["source"].Type)
	assert.Equal(t, "date", m.Properties["edit_date"].Type)
	h := m.Properties["holdings"]
	assert.Equal(t, "nested", h.Type)
	assert.Equal(t, "boolean", h.Properties["opac_visible"].Type)
	assert.Equal(t, "integer", h.Properties["count"].Type)
}

func TestBuildRejectsReservedGroup(t *testing.T) {
	_, err := Build([]catalog.FieldDefinition{
		{FieldClass: "identifier", Name: "x", GroupKey: "holdings", SearchField: true},
	}, testOpts)
	assert.Error(t, err)
}

func TestCreateIndexBody(t *testing.T) {
	raw, err := json.Marshal(NewCreateIndexBody(5, 1))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"settings": {
			"number_of_shards": 5,
			"number_of_replicas": 1,
			"analysis": {"analyzer": {"folding": {"tokenizer": "standard", "filter": ["lowercase", "asciifolding"]}}}
		}
	}`, string(raw))
}

func BenchmarkBuild(b *testing.B) {
	var fields []catalog.FieldDefinition
	for _, class := range []string{"title", "author", "subject", "series", "keyword", "identifier"} {
		for i := 0; i < 20; i++ {
			fields = append(fields, catalog.FieldDefinition{
				FieldClass: class, Name: fmt.Sprintf("f%02d", i), GroupKey: class, SearchField: true,
			})
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(fields, testOpts); err != nil {
			b.Fatal(err)
		}
	}
}

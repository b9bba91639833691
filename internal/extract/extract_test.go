package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/transform"
	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
)

const modsNS = "http://www.loc.gov/mods/v3"

type mapStore map[string]transform.Definition

func (s mapStore) TransformDefinition(_ context.Context, format string) (transform.Definition, bool, error) {
	d, ok := s[format]
	return d, ok, nil
}

// wrapTransformer rewrites <record> into a namespaced <mods> document and
// counts its invocations.
type wrapTransformer struct {
	calls *int
}

func (w wrapTransformer) Transform(doc []byte) ([]byte, error) {
	*w.calls++
	out := bytes.ReplaceAll(doc, []byte("<record>"), []byte(`<mods xmlns="`+modsNS+`">`))
	return bytes.ReplaceAll(out, []byte("</record>"), []byte("</mods>")), nil
}

type wrapCompiler struct {
	calls *int
}

func (c wrapCompiler) Compile(string, []byte) (transform.Transformer, error) {
	return wrapTransformer{calls: c.calls}, nil
}

func newTestEngine(t *testing.T) (*Engine, *int) {
	t.Helper()
	calls := new(int)
	cache := transform.NewCache(mapStore{
		"marcxml": {Prefix: "marc", NamespaceURI: "http://www.loc.gov/MARC21/slim"},
		"mods32":  {Prefix: "mods32", NamespaceURI: modsNS, Body: []byte("<xsl/>")},
	}, wrapCompiler{calls: calls}, nil)
	ctx := context.Background()
	require.NoError(t, cache.EnsureLoaded(ctx, "marcxml"))
	require.NoError(t, cache.EnsureLoaded(ctx, "mods32"))
	return NewEngine(cache), calls
}

func TestExtractEndToEndTitle(t *testing.T) {
	e, _ := newTestEngine(t)
	fields := []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//title", Format: "marcxml", SearchField: true},
	}
	got, err := e.Extract(context.Background(), []byte(`<record><title>Moby Dick</title></record>`), fields)
	require.NoError(t, err)
	assert.Equal(t, Scalar("Moby Dick"), got["title|proper"])
}

func TestExtractAbsentFieldIsEmptyNotMissing(t *testing.T) {
	e, _ := newTestEngine(t)
	fields := []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//title", Format: "marcxml"},
		{FieldClass: "subject", Name: "topic", XPath: "//subject", Format: "marcxml", Multi: true},
		{FieldClass: "series", Name: "title", XPath: "//series", Format: "marcxml"},
	}
	got, err := e.Extract(context.Background(), []byte(`<record><title>Moby Dick</title></record>`), fields)
	require.NoError(t, err)

	require.Len(t, got, 3)
	topic, ok := got["subject|topic"]
	require.True(t, ok)
	assert.True(t, topic.IsList())
	assert.True(t, topic.IsEmpty())
	series, ok := got["series|title"]
	require.True(t, ok)
	assert.True(t, series.IsEmpty())
}

func TestExtractScalarVersusMulti(t *testing.T) {
	e, _ := newTestEngine(t)
	raw := []byte(`<record>
		<subject>Whales</subject>
		<subject>  </subject>
		<subject>Sea <i>stories</i></subject>
	</record>`)
	fields := []catalog.FieldDefinition{
		{FieldClass: "subject", Name: "joined", XPath: "//subject", Format: "marcxml"},
		{FieldClass: "subject", Name: "topic", XPath: "//subject", Format: "marcxml", Multi: true},
	}
	got, err := e.Extract(context.Background(), raw, fields)
	require.NoError(t, err)

	assert.Equal(t, Scalar("Whales Sea stories"), got["subject|joined"])
	assert.Equal(t, []string{"Whales", "Sea stories"}, got["subject|topic"].Values())
}

func TestExtractNamespacedTransformAppliedOncePerFormat(t *testing.T) {
	e, calls := newTestEngine(t)
	raw := []byte(`<record><title>Moby Dick</title><name>Melville, Herman</name></record>`)
	fields := []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//mods32:title", Format: "mods32"},
		{FieldClass: "author", Name: "personal", XPath: "//mods32:name", Format: "mods32"},
		{FieldClass: "title", Name: "marc", XPath: "//title", Format: "marcxml"},
	}
	got, err := e.Extract(context.Background(), raw, fields)
	require.NoError(t, err)

	assert.Equal(t, "Moby Dick", got["title|proper"].String())
	assert.Equal(t, "Melville, Herman", got["author|personal"].String())
	assert.Equal(t, "Moby Dick", got["title|marc"].String())
	assert.Equal(t, 1, *calls)

	_, err = e.Extract(context.Background(), raw, fields)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls, "memoization is per document")
}

func TestExtractAttributeAndFunctionResults(t *testing.T) {
	e, _ := newTestEngine(t)
	raw := []byte(`<record><controlfield tag="001">ocm123</controlfield></record>`)
	fields := []catalog.FieldDefinition{
		{FieldClass: "identifier", Name: "tag", XPath: "//controlfield/@tag", Format: "marcxml"},
		{FieldClass: "identifier", Name: "control", XPath: "string(//controlfield)", Format: "marcxml"},
	}
	got, err := e.Extract(context.Background(), raw, fields)
	require.NoError(t, err)
	assert.Equal(t, "001", got["identifier|tag"].String())
	assert.Equal(t, "ocm123", got["identifier|control"].String())
}

func TestExtractMalformedDocument(t *testing.T) {
	e, _ := newTestEngine(t)
	fields := []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//title", Format: "marcxml"},
	}
	_, err := e.Extract(context.Background(), []byte(`<record><title>Moby Dick</record>`), fields)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedSourceDocument)
	assert.False(t, apperrors.IsFatal(err))
}

func TestExtractRejectsContentOutsideRoot(t *testing.T) {
	e, _ := newTestEngine(t)
	fields := []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//title", Format: "marcxml"},
	}
	tests := []struct {
		name string
		raw  string
	}{
		{"trailing text", `<record><title>Moby</title></record>trailing junk`},
		{"leading text", `junk<record><title>Moby</title></record>`},
		{"second root", `<record><title>Moby</title></record><record/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), []byte(tt.raw), fields)
			assert.ErrorIs(t, err, apperrors.ErrMalformedSourceDocument)
		})
	}

	values, err := e.Extract(context.Background(),
		[]byte("<?xml version=\"1.0\"?>\n<!-- note -->\n<record><title>Moby</title></record>\n"), fields)
	require.NoError(t, err)
	assert.Equal(t, "Moby", values["title|proper"].String())
}

func TestPrepareRejectsBadPath(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Prepare([]catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//title[", Format: "marcxml"},
	})
	assert.ErrorIs(t, err, apperrors.ErrTransformCompile)
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Scalar("Moby Dick"), `"Moby Dick"`},
		{Scalar(""), `null`},
		{List(), `[]`},
		{List("a", "b"), `["a","b"]`},
	}
	for _, tt := range tests {
		raw, err := json.Marshal(tt.v)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(raw))
	}
}

func BenchmarkExtract(b *testing.B) {
	cache := transform.NewCache(mapStore{"marcxml": {}}, nil, nil)
	e := NewEngine(cache)
	fields := []catalog.FieldDefinition{
		{FieldClass: "title", Name: "proper", XPath: "//title", Format: "marcxml"},
		{FieldClass: "subject", Name: "topic", XPath: "//subject", Format: "marcxml", Multi: true},
	}
	raw := []byte(`<record><title>Moby Dick</title><subject>Whales</subject><subject>Sea stories</subject></record>`)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Extract(ctx, raw, fields); err != nil {
			b.Fatal(err)
		}
	}
}

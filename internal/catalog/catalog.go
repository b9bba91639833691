// Package catalog loads the indexable field definitions from the source
// store. The loaded Catalog is read-only for the rest of the process and is
// shared by the mapping builder and the extraction engine.
package catalog

import (
	"context"
	"log/slog"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
)

// FieldDefinition describes one indexable field. It is keyed by
// (FieldClass, Name).
type FieldDefinition struct {
	FieldClass  string
	Name        string
	GroupKey    string
	XPath       string
	Format      string
	Weight      int
	SearchField bool
	FacetField  bool
	Multi       bool
}

// Key returns the document key of the field, "class|name".
func (f FieldDefinition) Key() string {
	return f.FieldClass + "|" + f.Name
}

// Store returns raw field rows.
type Store interface {
	FieldDefinitions(ctx context.Context) ([]FieldDefinition, error)
}

// Warmer pre-loads the conversion for a source format.
type Warmer interface {
	EnsureLoaded(ctx context.Context, format string) error
}

// Options tune how rows become definitions.
type Options struct {
	// GroupOverrides maps "class|name" to a group key other than the class.
	GroupOverrides map[string]string
}

// Catalog is the loaded, de-duplicated set of field definitions in key order.
type Catalog struct {
	fields []FieldDefinition
	byKey  map[string]int
}

// Load reads field definitions, keeps search and facet fields that have an
// extraction path, and warms the transform for every format they use.
func Load(ctx context.Context, store Store, warmer Warmer, opts Options) (*Catalog, error) {
	logger := slog.Default().With("component", "field-catalog")

	rows, err := store.FieldDefinitions(ctx)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrCatalogUnavailable, "%v", err)
	}

	c := &Catalog{byKey: make(map[string]int, len(rows))}
	for _, f := range rows {
		if !(f.SearchField || f.FacetField) || f.XPath == "" {
			continue
		}
		key := f.Key()
		if _, dup := c.byKey[key]; dup {
			return nil, apperrors.Newf(apperrors.ErrDuplicateFieldDefinition, "%s", key)
		}
		f.GroupKey = f.FieldClass
		if g, ok := opts.GroupOverrides[key]; ok && g != "" {
			f.GroupKey = g
		}
		c.byKey[key] = len(c.fields)
		c.fields = append(c.fields, f)
	}

	sort.Slice(c.fields, func(i, j int) bool {
		return c.fields[i].Key() < c.fields[j].Key()
	})
	for i, f := range c.fields {
		c.byKey[f.Key()] = i
	}

	for _, format := range c.Formats() {
		if err := warmer.EnsureLoaded(ctx, format); err != nil {
			return nil, err
		}
	}

	logger.Info("field catalog loaded",
		"fields", len(c.fields),
		"formats", c.Formats(),
	)
	return c, nil
}

// Fields returns the definitions in key order. Callers must not modify the
// returned slice.
func (c *Catalog) Fields() []FieldDefinition {
	return c.fields
}

// Lookup finds a definition by "class|name".
func (c *Catalog) Lookup(key string) (FieldDefinition, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return FieldDefinition{}, false
	}
	return c.fields[i], true
}

// Formats returns the distinct source formats in sorted order.
func (c *Catalog) Formats() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range c.fields {
		if _, ok := seen[f.Format]; ok {
			continue
		}
		seen[f.Format] = struct{}{}
		out = append(out, f.Format)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.fields)
}

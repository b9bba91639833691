// Package mapping derives the search index schema from the field catalog.
//
// Every group key becomes a union text field. Every catalog field becomes a
// text field of the same shape whose value is copied into its group field.
// The output is a pure function of its inputs, so two builds over the same
// catalog marshal to identical bytes.
package mapping

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/catalog"
)

const (
	// FoldingAnalyzer is the name of the lowercase + asciifolding analyzer
	// declared in the index settings.
	FoldingAnalyzer = "folding"

	// FoldedSubField and ExactSubField name the multi-fields under each
	// text field.
	FoldedSubField = "folded"
	ExactSubField  = "raw"

	exactIgnoreAbove = 256
)

// Property is one node of an index mapping.
type Property struct {
	Type        string              `json:"type"`
	Analyzer    string              `json:"analyzer,omitempty"`
	IgnoreAbove int                 `json:"ignore_above,omitempty"`
	CopyTo      string              `json:"copy_to,omitempty"`
	Fields      map[string]Property `json:"fields,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// IndexMapping is the body of a put-mapping call.
type IndexMapping struct {
	Properties map[string]Property `json:"properties"`
}

// JSON returns the mapping's canonical serialization.
func (m IndexMapping) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Options control the shape of generated text fields.
type Options struct {
	LanguageAnalyzer   string
	NonSortableClasses []string
}

// fixedProperties are present in every mapping regardless of the catalog.
func fixedProperties() map[string]Property {
	return map[string]Property{
		"source":      {Type: "integer"},
		"create_date": {Type: "date"},
		"edit_date":   {Type: "date"},
		"holdings": {
			Type: "nested",
			Properties: map[string]Property{
				"count":        {Type: "integer"},
				"status":       {Type: "integer"},
				"circ_lib":     {Type: "integer"},
				"location":     {Type: "integer"},
				"circulate":    {Type: "boolean"},
				"opac_visible": {Type: "boolean"},
			},
		},
	}
}

// Build returns the mapping for fields. It fails when a group key or field
// key collides with a fixed field or with another generated name.
func Build(fields []catalog.FieldDefinition, opts Options) (IndexMapping, error) {
	nonSortable := make(map[string]bool, len(opts.NonSortableClasses))
	for _, c := range opts.NonSortableClasses {
		nonSortable[c] = true
	}

	props := fixedProperties()
	reserved := make(map[string]bool, len(props))
	for name := range props {
		reserved[name] = true
	}

	groups := make(map[string]bool)
	for _, f := range fields {
		groups[f.GroupKey] = true
	}
	groupNames := make([]string, 0, len(groups))
	for g := range groups {
		groupNames = append(groupNames, g)
	}
	sort.Strings(groupNames)

	for _, g := range groupNames {
		if reserved[g] {
			return IndexMapping{}, fmt.Errorf("group %q collides with a fixed field", g)
		}
		props[g] = textProperty(opts.LanguageAnalyzer, !nonSortable[g], "")
	}

	sorted := append([]catalog.FieldDefinition(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })

	for _, f := range sorted {
		key := f.Key()
		if _, taken := props[key]; taken {
			return IndexMapping{}, fmt.Errorf("field %q collides with an existing mapping entry", key)
		}
		exact := !nonSortable[f.GroupKey] || f.FacetField
		props[key] = textProperty(opts.LanguageAnalyzer, exact, f.GroupKey)
	}

	return IndexMapping{Properties: props}, nil
}

func textProperty(analyzer string, exact bool, copyTo string) Property {
	p := Property{
		Type:     "text",
		Analyzer: analyzer,
		CopyTo:   copyTo,
		Fields: map[string]Property{
			FoldedSubField: {Type: "text", Analyzer: FoldingAnalyzer},
		},
	}
	if exact {
		p.Fields[ExactSubField] = Property{Type: "keyword", IgnoreAbove: exactIgnoreAbove}
	}
	return p
}

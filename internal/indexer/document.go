// Package indexer assembles index documents from source records and drives
// the paged sync loop from the record table into the search index.
package indexer

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/holdings"
)

// Document is the unit written to the search index: the fixed record fields,
// one value per catalog field keyed "class|name", and the record's holdings.
type Document struct {
	ID         int64
	Source     *int64
	CreateDate time.Time
	EditDate   time.Time
	Fields     map[string]extract.Value
	Holdings   []holdings.Holding
}

// DocumentID is the key the document is upserted under.
func (d Document) DocumentID() string {
	return strconv.FormatInt(d.ID, 10)
}

// MarshalJSON flattens field values next to the fixed fields. Holdings are
// always written as an array.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+5)
	for k, v := range d.Fields {
		out[k] = v
	}
	out["id"] = d.ID
	out["source"] = d.Source
	out["create_date"] = d.CreateDate
	out["edit_date"] = d.EditDate
	h := d.Holdings
	if h == nil {
		h = []holdings.Holding{}
	}
	out["holdings"] = h
	return json.Marshal(out)
}

package cursor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/postgres"
)

// PostgresPager reads biblio.record_entry.
type PostgresPager struct {
	db *postgres.Client
}

func NewPostgresPager(db *postgres.Client) *PostgresPager {
	return &PostgresPager{db: db}
}

func (p *PostgresPager) Page(ctx context.Context, w Watermark, limit int) ([]Record, error) {
	var since sql.NullTime
	if w.LastEditDate != nil {
		since = sql.NullTime{Time: *w.LastEditDate, Valid: true}
	}

	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT bre.id, bre.marc, bre.create_date, bre.edit_date, bre.source
		 FROM biblio.record_entry bre
		 WHERE NOT bre.deleted
		   AND bre.active
		   AND (
		     $1::TIMESTAMPTZ IS NULL
		     OR bre.edit_date > $1::TIMESTAMPTZ
		     OR (bre.edit_date = $1::TIMESTAMPTZ AND bre.id > $2)
		   )
		 ORDER BY bre.edit_date ASC, bre.id ASC
		 LIMIT $3`,
		since, w.LastID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			r      Record
			marc   string
			source sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &marc, &r.CreateDate, &r.EditDate, &source); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Raw = []byte(marc)
		if source.Valid {
			s := source.Int64
			r.Source = &s
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

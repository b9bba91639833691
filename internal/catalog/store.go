package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/postgres"
)

// PostgresStore reads config.metabib_field.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FieldDefinitions(ctx context.Context) ([]FieldDefinition, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT field_class, name, xpath, format, weight,
		        search_field, facet_field, multi
		 FROM config.metabib_field
		 WHERE (search_field OR facet_field) AND xpath IS NOT NULL
		 ORDER BY field_class, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying metabib fields: %w", err)
	}
	defer rows.Close()

	var defs []FieldDefinition
	for rows.Next() {
		var (
			f      FieldDefinition
			xpath  sql.NullString
			weight sql.NullInt64
		)
		if err := rows.Scan(&f.FieldClass, &f.Name, &xpath, &f.Format, &weight,
			&f.SearchField, &f.FacetField, &f.Multi); err != nil {
			return nil, fmt.Errorf("scanning metabib field: %w", err)
		}
		f.XPath = xpath.String
		f.Weight = int(weight.Int64)
		defs = append(defs, f)
	}
	return defs, rows.Err()
}

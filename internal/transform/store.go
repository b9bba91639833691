package transform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/postgres"
)

// PostgresStore reads config.xml_transform.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) TransformDefinition(ctx context.Context, format string) (Definition, bool, error) {
	var (
		def  Definition
		ns   sql.NullString
		pfx  sql.NullString
		body sql.NullString
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT namespace_uri, prefix, xslt
		 FROM config.xml_transform
		 WHERE name = $1`,
		format,
	).Scan(&ns, &pfx, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Definition{}, false, nil
	}
	if err != nil {
		return Definition{}, false, fmt.Errorf("querying xml_transform %q: %w", format, err)
	}
	def.NamespaceURI = ns.String
	def.Prefix = pfx.String
	def.Body = []byte(body.String)
	return def, true, nil
}

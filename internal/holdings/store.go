package holdings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/postgres"
)

// PostgresStore groups live copies by record and copy shape.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) HoldingRows(ctx context.Context, parentIDs []int64) ([]Row, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT COUNT(*), acn.record, acp.status, acp.circ_lib, acp.location,
		        acp.circulate, acp.opac_visible
		 FROM asset.copy acp
		 JOIN asset.call_number acn ON acp.call_number = acn.id
		 WHERE NOT acp.deleted
		   AND NOT acn.deleted
		   AND acn.record = ANY($1::BIGINT[])
		 GROUP BY 2, 3, 4, 5, 6, 7
		 ORDER BY 2, 3, 4, 5, 6, 7`,
		pq.Array(parentIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("querying holdings: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r        Row
			location sql.NullInt64
		)
		if err := rows.Scan(&r.Count, &r.ParentID, &r.Status, &r.CircLib, &location,
			&r.Circulate, &r.OPACVisible); err != nil {
			return nil, fmt.Errorf("scanning holding: %w", err)
		}
		r.Location = int(location.Int64)
		out = append(out, r)
	}
	return out, rows.Err()
}

package cursor

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/postgres"
)

// slicePager serves records from memory using the watermark predicate.
type slicePager struct {
	records []Record
}

func (p *slicePager) Page(_ context.Context, w Watermark, limit int) ([]Record, error) {
	sorted := append([]Record(nil), p.records...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].EditDate.Equal(sorted[j].EditDate) {
			return sorted[i].EditDate.Before(sorted[j].EditDate)
		}
		return sorted[i].ID < sorted[j].ID
	})
	var out []Record
	for _, r := range sorted {
		if w.Qualifies(r.EditDate, r.ID) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func ids(recs []Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTieTolerance(t *testing.T) {
	earlier := t0.Add(-time.Hour)
	pager := &slicePager{records: []Record{
		{ID: 3, EditDate: earlier},
		{ID: 9, EditDate: t0},
		{ID: 5, EditDate: t0},
		{ID: 7, EditDate: t0},
		{ID: 4, EditDate: t0},
	}}
	at := t0
	c := New(pager, 1000, Watermark{LastEditDate: &at, LastID: 5})

	page, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, ids(page))
}

func TestPagingVisitsEveryRecordOnce(t *testing.T) {
	var records []Record
	for i := int64(1); i <= 7; i++ {
		records = append(records, Record{ID: i, EditDate: t0.Add(time.Duration(i/3) * time.Minute)})
	}
	c := New(&slicePager{records: records}, 2, Initial())

	var seen []int64
	for {
		page, err := c.Next(context.Background())
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			seen = append(seen, r.ID)
			c.Advance(r)
		}
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, seen)
	assert.Equal(t, int64(7), c.Watermark().LastID)
}

func TestAdvanceIsMonotonic(t *testing.T) {
	c := New(&slicePager{}, 10, Initial())
	c.Advance(Record{ID: 8, EditDate: t0})
	c.Advance(Record{ID: 2, EditDate: t0})
	c.Advance(Record{ID: 99, EditDate: t0.Add(-time.Second)})

	w := c.Watermark()
	require.NotNil(t, w.LastEditDate)
	assert.True(t, w.LastEditDate.Equal(t0))
	assert.Equal(t, int64(8), w.LastID)
}

func TestQualifies(t *testing.T) {
	at := t0
	w := Watermark{LastEditDate: &at, LastID: 5}
	tests := []struct {
		name string
		t    time.Time
		id   int64
		want bool
	}{
		{"earlier", t0.Add(-time.Millisecond), 100, false},
		{"same instant lower id", t0, 4, false},
		{"same instant same id", t0, 5, false},
		{"same instant higher id", t0, 6, true},
		{"later lower id", t0.Add(time.Microsecond), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Qualifies(tt.t, tt.id))
		})
	}
	assert.True(t, Initial().Qualifies(time.Time{}, math.MinInt64))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "indexer-state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	w, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, w.IsInitial())
	assert.Equal(t, int64(math.MinInt64), w.LastID)

	at := t0.Add(123456 * time.Microsecond)
	require.NoError(t, s.Save(ctx, Watermark{LastEditDate: &at, LastID: 42}))

	w, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, w.LastEditDate)
	assert.True(t, w.LastEditDate.Equal(at))
	assert.Equal(t, int64(42), w.LastID)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStateUnavailable)
}

type memKV struct {
	data map[string]string
	err  error
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value.(string)
	return nil
}

func TestRedisStore(t *testing.T) {
	kv := &memKV{data: map[string]string{}}
	s := NewRedisStore(kv, "bib-indexer:watermark")
	ctx := context.Background()

	w, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, w.IsInitial())

	at := t0
	require.NoError(t, s.Save(ctx, Watermark{LastEditDate: &at, LastID: 7}))
	assert.Contains(t, kv.data["bib-indexer:watermark"], `"last_id":7`)

	w, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), w.LastID)

	kv.err = errors.New("connection refused")
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStateUnavailable)
	assert.ErrorIs(t, s.Save(ctx, w), apperrors.ErrStateUnavailable)
}

func TestPostgresPager(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "marc", "create_date", "edit_date", "source"}
	at := t0

	mock.ExpectQuery(`FROM biblio.record_entry bre`).
		WithArgs(sql.NullTime{}, int64(math.MinInt64), 1000).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "<record/>", t0, t0, 2).
			AddRow(2, "<record/>", t0, t0, nil))
	mock.ExpectQuery(`ORDER BY bre.edit_date ASC, bre.id ASC`).
		WithArgs(sql.NullTime{Time: at, Valid: true}, int64(2), 1000).
		WillReturnRows(sqlmock.NewRows(cols))

	p := NewPostgresPager(postgres.Wrap(db))
	recs, err := p.Page(context.Background(), Initial(), 1000)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].Source)
	assert.Equal(t, int64(2), *recs[0].Source)
	assert.Nil(t, recs[1].Source)
	assert.Equal(t, []byte("<record/>"), recs[0].Raw)

	recs, err = p.Page(context.Background(), Watermark{LastEditDate: &at, LastID: 2}, 1000)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

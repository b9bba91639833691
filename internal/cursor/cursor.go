// Package cursor tracks incremental progress through the bibliographic
// record table.
//
// Progress is an (edit date, id) watermark rather than an offset. Records are
// read in (edit_date, id) order and a record qualifies for the next page when
// it sorts strictly after the watermark, so rows that share an edit instant
// are neither skipped nor re-read while other writers mutate the table.
package cursor

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Watermark is the furthest (edit date, id) position reached. A nil
// LastEditDate is the initial position, before every record.
type Watermark struct {
	LastEditDate *time.Time `json:"last_edit_date"`
	LastID       int64      `json:"last_id"`
}

// Initial returns the watermark that qualifies every record.
func Initial() Watermark {
	return Watermark{LastID: math.MinInt64}
}

// IsInitial reports whether no record has been processed yet.
func (w Watermark) IsInitial() bool {
	return w.LastEditDate == nil
}

// Qualifies reports whether a record at (editDate, id) comes after w.
func (w Watermark) Qualifies(editDate time.Time, id int64) bool {
	if w.LastEditDate == nil {
		return true
	}
	if editDate.After(*w.LastEditDate) {
		return true
	}
	return editDate.Equal(*w.LastEditDate) && id > w.LastID
}

func (w Watermark) String() string {
	if w.LastEditDate == nil {
		return "initial"
	}
	return fmt.Sprintf("%s/%d", w.LastEditDate.Format(time.RFC3339Nano), w.LastID)
}

// Record is one row of the record table.
type Record struct {
	ID         int64
	Raw        []byte
	CreateDate time.Time
	EditDate   time.Time
	Source     *int64
}

// Pager returns up to limit active, non-deleted records that qualify after
// w, ordered by (edit date, id).
type Pager interface {
	Page(ctx context.Context, w Watermark, limit int) ([]Record, error)
}

// Cursor drives paging from a starting watermark.
type Cursor struct {
	pager Pager
	limit int
	mark  Watermark
}

// New creates a Cursor positioned at start.
func New(pager Pager, limit int, start Watermark) *Cursor {
	return &Cursor{pager: pager, limit: limit, mark: start}
}

// Next fetches the page after the current watermark. An empty page means the
// sync is complete.
func (c *Cursor) Next(ctx context.Context) ([]Record, error) {
	recs, err := c.pager.Page(ctx, c.mark, c.limit)
	if err != nil {
		return nil, fmt.Errorf("fetching page after %s: %w", c.mark, err)
	}
	return recs, nil
}

// Advance moves the watermark to r if r sorts after it. Records that do not
// qualify leave the watermark unchanged.
func (c *Cursor) Advance(r Record) {
	if !c.mark.Qualifies(r.EditDate, r.ID) {
		return
	}
	t := r.EditDate
	c.mark = Watermark{LastEditDate: &t, LastID: r.ID}
}

// Watermark returns the current position.
func (c *Cursor) Watermark() Watermark {
	return c.mark
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/cursor"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/holdings"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/sink"
	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/tracing"
)

// Mode selects where a run starts.
type Mode int

const (
	// Full starts from the initial watermark and overwrites saved state.
	Full Mode = iota
	// Incremental resumes from the saved watermark.
	Incremental
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "incremental"
}

type Extractor interface {
	Extract(ctx context.Context, raw []byte, fields []catalog.FieldDefinition) (map[string]extract.Value, error)
}

type HoldingsFetcher interface {
	Fetch(ctx context.Context, parentIDs []int64) (map[int64][]holdings.Holding, error)
}

type Upserter interface {
	Upsert(ctx context.Context, doc sink.Document) error
}

// Deps are the collaborators of a Pipeline. Notifier and Metrics are
// optional.
type Deps struct {
	Pager     cursor.Pager
	PageSize  int
	Fields    []catalog.FieldDefinition
	Extractor Extractor
	Holdings  HoldingsFetcher
	Sink      Upserter
	State     cursor.StateStore
	Notifier  Notifier
	Metrics   *metrics.Metrics
}

// Pipeline runs sync passes. It is single-threaded; a Pipeline must not run
// two passes at once.
type Pipeline struct {
	d Deps
}

func New(d Deps) *Pipeline {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	return &Pipeline{d: d}
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	Mode      Mode
	Pages     int
	Indexed   int
	Skipped   int
	Watermark cursor.Watermark
	Duration  time.Duration
}

// Run pages through changed records until a page comes back empty. The
// watermark is saved after every page. Records whose documents cannot be
// parsed are skipped; any other failure stops the run without saving the
// page in flight.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (Summary, error) {
	log := logger.FromContext(ctx).With("component", "pipeline", "mode", mode.String())
	started := time.Now()
	sum := Summary{Mode: mode}

	start := cursor.Initial()
	if mode == Incremental {
		w, err := p.d.State.Load(ctx)
		if err != nil {
			return p.finish(sum, started, err)
		}
		start = w
	}
	log.Info("sync started", "watermark", start.String(), "page_size", p.d.PageSize)

	c := cursor.New(p.d.Pager, p.d.PageSize, start)
	for {
		if err := ctx.Err(); err != nil {
			return p.finish(sum, started, err)
		}
		done, err := p.runPage(ctx, log, mode, c, &sum)
		if err != nil {
			return p.finish(sum, started, err)
		}
		if done {
			break
		}
	}

	sum.Watermark = c.Watermark()
	return p.finish(sum, started, nil)
}

// runPage fetches, indexes and checkpoints one page. It reports done when
// the page came back empty. The page's span tree is logged whether or not
// the page succeeded.
func (p *Pipeline) runPage(ctx context.Context, log *slog.Logger, mode Mode, c *cursor.Cursor, sum *Summary) (done bool, err error) {
	pageStart := time.Now()
	pctx, page := tracing.StartSpan(ctx, "page", logger.RunID(ctx))
	defer func() {
		if err != nil {
			page.SetAttr("error", err.Error())
		}
		page.End()
		page.Log(ctx, log)
	}()

	_, fetch := tracing.StartChildSpan(pctx, "fetch_records")
	recs, err := c.Next(ctx)
	fetch.SetAttr("records", len(recs))
	fetch.End()
	if err != nil {
		return false, err
	}
	if len(recs) == 0 {
		return true, nil
	}

	indexed, skipped, err := p.processPage(pctx, log, c, recs)
	sum.Indexed += indexed
	sum.Skipped += skipped
	sum.Watermark = c.Watermark()
	if err != nil {
		return false, err
	}

	w := c.Watermark()
	if err := p.d.State.Save(ctx, w); err != nil {
		return false, err
	}
	sum.Pages++

	elapsed := time.Since(pageStart)
	p.d.Metrics.PagesTotal.Inc()
	p.d.Metrics.PageDuration.Observe(elapsed.Seconds())
	if w.LastEditDate != nil {
		p.d.Metrics.WatermarkTimestamp.Set(float64(w.LastEditDate.Unix()))
	}
	p.d.Metrics.WatermarkID.Set(float64(w.LastID))

	rate := 0.0
	if elapsed > 0 {
		rate = float64(indexed) / elapsed.Seconds()
	}
	log.Info("page indexed",
		"records", indexed,
		"skipped", skipped,
		"duration", elapsed.Round(time.Millisecond).String(),
		"rate", fmt.Sprintf("%.3f rec/s", rate),
		"last_edit_date", w.LastEditDate,
		"last_id", w.LastID,
	)

	if err := p.d.Notifier.PageIndexed(ctx, PageEvent{
		RunID:        logger.RunID(ctx),
		Mode:         mode.String(),
		Records:      indexed,
		Skipped:      skipped,
		LastEditDate: w.LastEditDate,
		LastID:       w.LastID,
	}); err != nil {
		log.Warn("page notification failed", "error", err)
	}
	return false, nil
}

func (p *Pipeline) processPage(ctx context.Context, log *slog.Logger, c *cursor.Cursor, recs []cursor.Record) (indexed, skipped int, err error) {
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	_, hspan := tracing.StartChildSpan(ctx, "fetch_holdings")
	held, err := p.d.Holdings.Fetch(ctx, ids)
	hspan.SetAttr("records_with_holdings", len(held))
	hspan.End()
	if err != nil {
		return 0, 0, err
	}

	_, ispan := tracing.StartChildSpan(ctx, "index_records")
	defer func() {
		ispan.SetAttr("indexed", indexed)
		ispan.SetAttr("skipped", skipped)
		ispan.End()
	}()
	for _, r := range recs {
		values, err := p.d.Extractor.Extract(ctx, r.Raw, p.d.Fields)
		if errors.Is(err, apperrors.ErrMalformedSourceDocument) {
			log.Warn("skipping malformed record", "record_id", r.ID, "error", err)
			p.d.Metrics.RecordsSkippedTotal.WithLabelValues("malformed").Inc()
			skipped++
			c.Advance(r)
			continue
		}
		if err != nil {
			return indexed, skipped, fmt.Errorf("extracting record %d: %w", r.ID, err)
		}

		doc := Document{
			ID:         r.ID,
			Source:     r.Source,
			CreateDate: r.CreateDate,
			EditDate:   r.EditDate,
			Fields:     values,
			Holdings:   held[r.ID],
		}
		if err := p.d.Sink.Upsert(ctx, doc); err != nil {
			return indexed, skipped, err
		}
		p.d.Metrics.RecordsIndexedTotal.Inc()
		c.Advance(r)
		indexed++
	}
	return indexed, skipped, nil
}

func (p *Pipeline) finish(sum Summary, started time.Time, err error) (Summary, error) {
	sum.Duration = time.Since(started)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	p.d.Metrics.SyncRunsTotal.WithLabelValues(sum.Mode.String(), status).Inc()
	return sum, err
}

// Package sink writes assembled documents to the search index.
//
// Every write is keyed by the document id, so writing the same document
// again replaces it in place. This is what makes re-processing the last page
// after a crash safe.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/elastic"
	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/resilience"
)

// Document is anything the sink can write.
type Document interface {
	DocumentID() string
}

// Writer performs a single keyed write.
type Writer interface {
	IndexDocument(ctx context.Context, index, id string, doc any) error
}

// Options tune retries and the circuit breaker around each write.
type Options struct {
	Retries          int
	RetryDelay       time.Duration
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Elastic upserts documents into one index.
type Elastic struct {
	writer  Writer
	index   string
	opts    Options
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewElastic(writer Writer, index string, opts Options, m *metrics.Metrics) *Elastic {
	if m == nil {
		m = metrics.NewNop()
	}
	breaker := resilience.NewCircuitBreaker("elasticsearch", resilience.CircuitBreakerConfig{
		FailureThreshold: opts.FailureThreshold,
		ResetTimeout:     opts.ResetTimeout,
		OnStateChange: func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &Elastic{
		writer:  writer,
		index:   index,
		opts:    opts,
		breaker: breaker,
		metrics: m,
		logger:  slog.Default().With("component", "sink", "index", index),
	}
}

// Upsert writes doc under its id. Transient failures are retried; a write
// that still fails is reported as ErrSinkUnavailable.
func (s *Elastic) Upsert(ctx context.Context, doc Document) error {
	id := doc.DocumentID()
	retry := resilience.RetryConfig{
		MaxAttempts:  s.opts.Retries,
		InitialDelay: s.opts.RetryDelay,
	}

	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, "upsert", retry, func() error {
			err := resilience.WithTimeout(ctx, s.opts.Timeout, "upsert "+id, func(ctx context.Context) error {
				return s.writer.IndexDocument(ctx, s.index, id, doc)
			})
			if err == nil {
				return nil
			}
			s.metrics.SinkErrorsTotal.Inc()
			var re *elastic.ResponseError
			if errors.As(err, &re) && !re.Retryable() {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	if err != nil {
		s.logger.Error("upsert failed", "id", id, "error", err)
		return apperrors.Newf(apperrors.ErrSinkUnavailable, "upserting %s: %v", id, err)
	}
	return nil
}

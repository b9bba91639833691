package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/cursor"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/holdings"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/transform"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/elastic"
	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/redis"
)

type options struct {
	configPath  string
	drop        bool
	create      bool
	recreate    bool
	full        bool
	incremental bool
	watch       bool
}

func (o options) validate() error {
	if !(o.drop || o.create || o.recreate || o.full || o.incremental || o.watch) {
		return errors.New("nothing to do: pass at least one of --drop-index, --create-index, --recreate-index, --full-index, --incremental-index, --watch")
	}
	if o.full && o.incremental {
		return errors.New("--full-index and --incremental-index are mutually exclusive")
	}
	if o.full && o.watch {
		return errors.New("--watch runs incremental syncs and cannot be combined with --full-index")
	}
	return nil
}

func (o options) syncs() bool {
	return o.full || o.incremental || o.watch
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "bib-indexer",
		Short: "Synchronize bibliographic records into Elasticsearch",
		Long: `bib-indexer builds the search index schema from the field catalog
and copies bibliographic records, with their holdings, into the index.

Index lifecycle flags run before any sync. --recreate-index is the same as
--drop-index followed by --create-index.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "configs/indexer.yaml", "path to config file")
	f.BoolVar(&o.drop, "drop-index", false, "delete the index")
	f.BoolVar(&o.create, "create-index", false, "create the index and apply the mapping")
	f.BoolVar(&o.recreate, "recreate-index", false, "drop the index if present, then create it")
	f.BoolVar(&o.full, "full-index", false, "index every record from the beginning")
	f.BoolVar(&o.incremental, "incremental-index", false, "index records changed since the saved watermark")
	f.BoolVar(&o.watch, "watch", false, "keep running and repeat incremental syncs on indexer.schedule")
	return cmd
}

func run(ctx context.Context, o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default().With("component", "main")
	m := metrics.New(prometheus.DefaultRegisterer)

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return apperrors.Newf(apperrors.ErrCatalogUnavailable, "%v", err)
	}
	defer pg.Close()

	es, err := elastic.New(cfg.Elasticsearch)
	if err != nil {
		return err
	}
	if err := es.Ping(ctx); err != nil {
		log.Warn("elasticsearch ping failed", "error", err)
	} else {
		log.Info("connection to elasticsearch OK", "addresses", cfg.Elasticsearch.Addresses)
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(pg.Ping))
	checker.Register("elasticsearch", health.PingCheck(es.Ping))

	cache := transform.NewCache(transform.NewPostgresStore(pg), transform.XSLTCompiler{}, func(n int) {
		m.TransformCacheEntries.Set(float64(n))
	})
	cat, err := catalog.Load(ctx, catalog.NewPostgresStore(pg), cache, catalog.Options{
		GroupOverrides: cfg.Indexer.GroupOverrides,
	})
	if err != nil {
		return err
	}
	for _, key := range unmatchedOverrides(cat, cfg.Indexer.GroupOverrides) {
		log.Warn("group override matches no catalog field", "field", key)
	}
	log.Info("schema sources ready", "fields", cat.Len(), "transforms", cache.Formats())

	if err := manageIndex(ctx, log, o, cfg, es, cat); err != nil {
		return err
	}
	if !o.syncs() {
		return nil
	}

	engine := extract.NewEngine(cache)
	if err := engine.Prepare(cat.Fields()); err != nil {
		return err
	}

	state, closeState, err := newStateStore(cfg, checker)
	if err != nil {
		return err
	}
	defer closeState()

	var notifier indexer.Notifier
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		notifier = indexer.NewKafkaNotifier(producer, cfg.Elasticsearch.Index)
	}

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/healthz": checker.Handler(),
		})
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	pipeline := indexer.New(indexer.Deps{
		Pager:     cursor.NewPostgresPager(pg),
		PageSize:  cfg.Indexer.PageSize,
		Fields:    cat.Fields(),
		Extractor: engine,
		Holdings: holdings.NewAggregator(holdings.NewPostgresStore(pg), func(n int) {
			m.HoldingsFetchedTotal.Add(float64(n))
		}),
		Sink: sink.NewElastic(es, cfg.Elasticsearch.Index, sink.Options{
			Retries: cfg.Indexer.UpsertRetries,
			Timeout: cfg.Indexer.UpsertTimeout,
		}, m),
		State:    state,
		Notifier: notifier,
		Metrics:  m,
	})

	runOnce := func(ctx context.Context, mode indexer.Mode) error {
		ctx = logger.WithRunID(ctx, uuid.NewString())
		sum, err := pipeline.Run(ctx, mode)
		logger.FromContext(ctx).Info("sync finished",
			"mode", mode.String(),
			"pages", sum.Pages,
			"indexed", sum.Indexed,
			"skipped", sum.Skipped,
			"watermark", sum.Watermark.String(),
			"duration", sum.Duration.Round(time.Millisecond).String(),
			"ok", err == nil,
		)
		return err
	}

	switch {
	case o.full:
		if err := runOnce(ctx, indexer.Full); err != nil {
			return err
		}
	case o.incremental:
		if err := runOnce(ctx, indexer.Incremental); err != nil {
			return err
		}
	}

	if o.watch {
		sched, err := indexer.NewScheduler(ctx, cfg.Indexer.Schedule, func(ctx context.Context) error {
			return runOnce(ctx, indexer.Incremental)
		})
		if err != nil {
			return err
		}
		sched.Start()
		log.Info("watching for changes", "schedule", cfg.Indexer.Schedule)
		<-ctx.Done()
		sched.Stop()
	}
	return nil
}

// manageIndex applies the lifecycle flags. A missing index on drop and an
// existing index on create are reported and the run goes on.
func manageIndex(ctx context.Context, log *slog.Logger, o options, cfg *config.Config, es *elastic.Client, cat *catalog.Catalog) error {
	if !(o.drop || o.create || o.recreate) {
		return nil
	}
	manager := sink.NewManager(es, cfg.Elasticsearch.Index)
	settings := mapping.NewCreateIndexBody(cfg.Elasticsearch.Shards, cfg.Elasticsearch.Replicas)
	im, err := mapping.Build(cat.Fields(), mapping.Options{
		LanguageAnalyzer:   cfg.Indexer.LanguageAnalyzer,
		NonSortableClasses: cfg.Indexer.NonSortableClasses,
	})
	if err != nil {
		return fmt.Errorf("building mapping: %w", err)
	}

	if o.recreate {
		return manager.Recreate(ctx, settings, im)
	}
	if o.drop {
		if err := manager.Drop(ctx); err != nil {
			if !errors.Is(err, apperrors.ErrIndexMissing) {
				return err
			}
			log.Info("nothing to drop", "reason", err.Error())
		}
	}
	if o.create {
		if err := manager.Create(ctx, settings, im); err != nil {
			if !errors.Is(err, apperrors.ErrIndexExists) {
				return err
			}
			log.Warn("index not created", "reason", err.Error())
		}
	}
	return nil
}

// unmatchedOverrides returns the override keys with no catalog field, sorted.
func unmatchedOverrides(cat *catalog.Catalog, overrides map[string]string) []string {
	var out []string
	for key := range overrides {
		if _, ok := cat.Lookup(key); !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func newStateStore(cfg *config.Config, checker *health.Checker) (cursor.StateStore, func(), error) {
	if cfg.Indexer.StateBackend != "redis" {
		return cursor.NewFileStore(cfg.Indexer.StateFile), func() {}, nil
	}
	rc, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, apperrors.Newf(apperrors.ErrStateUnavailable, "%v", err)
	}
	checker.Register("redis", health.PingCheck(rc.Ping))
	return cursor.NewRedisStore(rc, cfg.Indexer.StateKey), func() { rc.Close() }, nil
}

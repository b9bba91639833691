package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/internal/mapping"
	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
)

// IndexAdmin covers index lifecycle calls.
type IndexAdmin interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, body any) error
	DeleteIndex(ctx context.Context, index string) error
	PutMapping(ctx context.Context, index string, body any) error
}

// Manager drops and creates the target index. Dropping a missing index
// reports ErrIndexMissing and creating an existing one reports
// ErrIndexExists; neither is a failure of the cluster.
type Manager struct {
	admin  IndexAdmin
	index  string
	logger *slog.Logger
}

func NewManager(admin IndexAdmin, index string) *Manager {
	return &Manager{
		admin:  admin,
		index:  index,
		logger: slog.Default().With("component", "index-manager", "index", index),
	}
}

func (m *Manager) Drop(ctx context.Context) error {
	exists, err := m.admin.IndexExists(ctx, m.index)
	if err != nil {
		return apperrors.Newf(apperrors.ErrSinkUnavailable, "%v", err)
	}
	if !exists {
		return apperrors.Newf(apperrors.ErrIndexMissing, "index %s", m.index)
	}
	if err := m.admin.DeleteIndex(ctx, m.index); err != nil {
		return apperrors.Newf(apperrors.ErrSinkUnavailable, "%v", err)
	}
	m.logger.Info("index dropped")
	return nil
}

// Create creates the index with settings and then applies the mapping.
func (m *Manager) Create(ctx context.Context, settings mapping.CreateIndexBody, im mapping.IndexMapping) error {
	exists, err := m.admin.IndexExists(ctx, m.index)
	if err != nil {
		return apperrors.Newf(apperrors.ErrSinkUnavailable, "%v", err)
	}
	if exists {
		return apperrors.Newf(apperrors.ErrIndexExists,
			"index %s; use --drop-index or --recreate-index", m.index)
	}
	if err := m.admin.CreateIndex(ctx, m.index, settings); err != nil {
		return apperrors.Newf(apperrors.ErrSinkUnavailable, "%v", err)
	}
	if err := m.admin.PutMapping(ctx, m.index, im); err != nil {
		return apperrors.Newf(apperrors.ErrSinkUnavailable, "%v", err)
	}
	m.logger.Info("index created",
		"shards", settings.Settings.NumberOfShards,
		"replicas", settings.Settings.NumberOfReplicas,
		"properties", len(im.Properties),
	)
	return nil
}

// Recreate drops the index if present and creates it again.
func (m *Manager) Recreate(ctx context.Context, settings mapping.CreateIndexBody, im mapping.IndexMapping) error {
	if err := m.Drop(ctx); err != nil && !errors.Is(err, apperrors.ErrIndexMissing) {
		return fmt.Errorf("recreating index: %w", err)
	}
	return m.Create(ctx, settings, im)
}

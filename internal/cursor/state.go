package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/redis"
)

// StateStore persists the watermark between runs. Load returns Initial()
// when nothing has been saved yet.
type StateStore interface {
	Load(ctx context.Context) (Watermark, error)
	Save(ctx context.Context, w Watermark) error
}

// FileStore keeps the watermark in a JSON file. Saves write a temporary file
// and rename it over the old one.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (Watermark, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Initial(), nil
	}
	if err != nil {
		return Watermark{}, apperrors.Newf(apperrors.ErrStateUnavailable, "reading %s: %v", s.path, err)
	}
	return decode(data)
}

func (s *FileStore) Save(_ context.Context, w Watermark) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encoding watermark: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Newf(apperrors.ErrStateUnavailable, "creating %s: %v", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Newf(apperrors.ErrStateUnavailable, "writing %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return apperrors.Newf(apperrors.ErrStateUnavailable, "renaming %s: %v", tmp, err)
	}
	return nil
}

// KV is the subset of the Redis client the RedisStore needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisStore keeps the watermark under a single Redis key.
type RedisStore struct {
	kv  KV
	key string
}

func NewRedisStore(kv KV, key string) *RedisStore {
	return &RedisStore{kv: kv, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Watermark, error) {
	v, err := s.kv.Get(ctx, s.key)
	if redis.IsNilError(err) {
		return Initial(), nil
	}
	if err != nil {
		return Watermark{}, apperrors.Newf(apperrors.ErrStateUnavailable, "reading %s: %v", s.key, err)
	}
	return decode([]byte(v))
}

func (s *RedisStore) Save(ctx context.Context, w Watermark) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encoding watermark: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
		return apperrors.Newf(apperrors.ErrStateUnavailable, "writing %s: %v", s.key, err)
	}
	return nil
}

func decode(data []byte) (Watermark, error) {
	var w Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		return Watermark{}, apperrors.Newf(apperrors.ErrStateUnavailable, "decoding watermark: %v", err)
	}
	if w.LastEditDate == nil {
		return Initial(), nil
	}
	return w, nil
}

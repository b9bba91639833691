// Package transform loads and memoizes one document conversion per source
// format. The identity format is used as-is; every other format is backed by
// a compiled XSLT stylesheet fetched from the source store on first use.
// Entries are never invalidated; restart the process to pick up catalog
// edits.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// IdentityFormat names the format records are stored in.
const IdentityFormat = "marcxml"

// Kind tags an Entry as either the identity conversion or a compiled one.
type Kind int

const (
	Identity Kind = iota
	Compiled
)

func (k Kind) String() string {
	if k == Identity {
		return "identity"
	}
	return "compiled"
}

// Transformer converts a serialized document into another serialization.
type Transformer interface {
	Transform(doc []byte) ([]byte, error)
}

// Compiler turns a stylesheet body into a Transformer.
type Compiler interface {
	Compile(format string, body []byte) (Transformer, error)
}

// Definition is the stored form of a format: its namespace binding and
// stylesheet body.
type Definition struct {
	NamespaceURI string
	Prefix       string
	Body         []byte
}

// Store fetches format definitions. found is false when no row matches.
type Store interface {
	TransformDefinition(ctx context.Context, format string) (def Definition, found bool, err error)
}

// Entry is a loaded format.
type Entry struct {
	Format       string
	Prefix       string
	NamespaceURI string
	Kind         Kind
	transformer  Transformer
}

// Apply converts raw into this entry's format. Identity entries return raw
// unchanged.
func (e *Entry) Apply(raw []byte) ([]byte, error) {
	if e.Kind == Identity {
		return raw, nil
	}
	out, err := e.transformer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("applying %s transform: %w", e.Format, err)
	}
	return out, nil
}

// Cache holds loaded entries keyed by format name.
type Cache struct {
	store    Store
	compiler Compiler
	group    singleflight.Group
	mu       sync.RWMutex
	entries  map[string]*Entry
	onLoad   func(loaded int)
	logger   *slog.Logger
}

// NewCache creates an empty Cache. onLoad, if non-nil, is called with the
// entry count after each new format is loaded.
func NewCache(store Store, compiler Compiler, onLoad func(loaded int)) *Cache {
	return &Cache{
		store:    store,
		compiler: compiler,
		entries:  make(map[string]*Entry),
		onLoad:   onLoad,
		logger:   slog.Default().With("component", "transform-cache"),
	}
}

// EnsureLoaded loads format if it is not cached yet.
func (c *Cache) EnsureLoaded(ctx context.Context, format string) error {
	_, err := c.Get(ctx, format)
	return err
}

// Get returns the entry for format, loading it on first request. It fails
// with ErrUnknownFormat when the store has no such format and with
// ErrTransformCompile when its stylesheet does not compile.
func (c *Cache) Get(ctx context.Context, format string) (*Entry, error) {
	if e, ok := c.lookup(format); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(format, func() (interface{}, error) {
		if e, ok := c.lookup(format); ok {
			return e, nil
		}
		e, err := c.load(ctx, format)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[format] = e
		n := len(c.entries)
		c.mu.Unlock()
		if c.onLoad != nil {
			c.onLoad(n)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Namespaces returns the prefix bindings of every loaded format.
func (c *Cache) Namespaces() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns := make(map[string]string, len(c.entries))
	for _, e := range c.entries {
		if e.Prefix != "" && e.NamespaceURI != "" {
			ns[e.Prefix] = e.NamespaceURI
		}
	}
	return ns
}

// Formats lists loaded format names in sorted order.
func (c *Cache) Formats() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Cache) lookup(format string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[format]
	return e, ok
}

func (c *Cache) load(ctx context.Context, format string) (*Entry, error) {
	def, found, err := c.store.TransformDefinition(ctx, format)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrCatalogUnavailable, "loading transform %q: %v", format, err)
	}
	if !found {
		return nil, apperrors.Newf(apperrors.ErrUnknownFormat, "no transform named %q", format)
	}
	e := &Entry{
		Format:       format,
		Prefix:       def.Prefix,
		NamespaceURI: def.NamespaceURI,
		Kind:         Identity,
	}
	if format != IdentityFormat {
		t, err := c.compiler.Compile(format, def.Body)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrTransformCompile, "format %q: %v", format, err)
		}
		e.Kind = Compiled
		e.transformer = t
	}
	c.logger.Debug("transform loaded",
		"format", format,
		"kind", e.Kind.String(),
		"prefix", e.Prefix,
	)
	return e, nil
}

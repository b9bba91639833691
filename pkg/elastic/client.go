// Package elastic wraps go-elasticsearch with the handful of calls the
// indexer needs: ping, index lifecycle, mapping updates and document
// upserts. Non-2xx responses are returned as *ResponseError.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/config"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ResponseError carries the status and body of a failed request.
type ResponseError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the failure is likely transient.
func (e *ResponseError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a thin wrapper around *elasticsearch.Client.
type Client struct {
	es      *elasticsearch.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client. The transport's own retries are disabled; callers
// layer resilience.Retry on top. Every request is bounded by
// cfg.RequestTimeout when it is positive.
func New(cfg config.ElasticsearchConfig) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{
		es:      es,
		timeout: cfg.RequestTimeout,
		logger:  slog.Default().With("component", "elastic"),
	}, nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	return c.check("ping", res, err)
}

// IndexExists reports whether index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", index, err)
	}
	defer drain(res)
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError("exists "+index, res)
	}
}

// CreateIndex creates index with the given settings body.
func (c *Client) CreateIndex(ctx context.Context, index string, body any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	r, err := encode(body)
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithBody(r),
		c.es.Indices.Create.WithContext(ctx),
	)
	return c.check("create "+index, res, err)
}

// DeleteIndex drops index.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	return c.check("delete "+index, res, err)
}

// PutMapping applies a mapping body to index.
func (c *Client) PutMapping(ctx context.Context, index string, body any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	r, err := encode(body)
	if err != nil {
		return err
	}
	res, err := c.es.Indices.PutMapping([]string{index}, r, c.es.Indices.PutMapping.WithContext(ctx))
	return c.check("put mapping "+index, res, err)
}

// IndexDocument writes doc under id, replacing any existing document.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	r, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := c.es.Index(index, r,
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	return c.check("index "+id, res, err)
}

func (c *Client) check(op string, res *esapi.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer drain(res)
	if res.IsError() {
		return responseError(op, res)
	}
	c.logger.Debug("request ok", "op", op, "status", res.StatusCode)
	return nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &ResponseError{Op: op, StatusCode: res.StatusCode, Body: string(body)}
}

func encode(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}
}

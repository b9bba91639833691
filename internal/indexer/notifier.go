package indexer

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Bibliographic-Search-Indexer/pkg/kafka"
)

// PageEvent announces that a page of records reached the index.
type PageEvent struct {
	RunID        string     `json:"run_id"`
	Mode         string     `json:"mode"`
	Index        string     `json:"index"`
	Records      int        `json:"records"`
	Skipped      int        `json:"skipped"`
	LastEditDate *time.Time `json:"last_edit_date"`
	LastID       int64      `json:"last_id"`
}

// Notifier is told about every saved page. Failures are logged by the
// pipeline and never stop a run.
type Notifier interface {
	PageIndexed(ctx context.Context, ev PageEvent) error
}

type nopNotifier struct{}

func (nopNotifier) PageIndexed(context.Context, PageEvent) error { return nil }

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier publishes page events keyed by index name.
type KafkaNotifier struct {
	pub   Publisher
	index string
}

func NewKafkaNotifier(pub Publisher, index string) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, index: index}
}

func (n *KafkaNotifier) PageIndexed(ctx context.Context, ev PageEvent) error {
	ev.Index = n.index
	return n.pub.Publish(ctx, kafka.Event{Key: n.index, Value: ev})
}

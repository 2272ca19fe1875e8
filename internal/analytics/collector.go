package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/kafka"
)

// Publisher writes one event; *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector decouples request handling from publishing: Track never blocks
// and drops the event when the buffer is full.
type Collector struct {
	publisher Publisher
	eventCh   chan any
	logger    *slog.Logger
	done      chan struct{}
	dropped   atomic.Int64
	published atomic.Int64
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan any, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the buffered ones to be
// published. It must not be called concurrently with Track.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

// Counts reports how many events were published and dropped.
func (c *Collector) Counts() (published, dropped int64) {
	return c.published.Load(), c.dropped.Load()
}

func (c *Collector) publish(ctx context.Context, event any) {
	if err := c.publisher.Publish(ctx, kafka.Event{Key: eventKey(event), Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
		return
	}
	c.published.Add(1)
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

// eventKey partitions search events by ranker so one consumer sees a
// ranking function's traffic in order.
func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return "search:" + e.Ranker
	case SnapshotEvent:
		return "snapshot"
	}
	return "analytics"
}

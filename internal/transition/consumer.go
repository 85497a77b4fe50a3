package transition

import (
	"context"
	"log/slog"
	"time"

	"github.com/openchw/sentry/internal/store"
)

// feedBatchSize bounds how many changes one drain iteration loads.
const feedBatchSize = 100

// DefaultPollInterval is how long the consumer idles on a drained feed.
const DefaultPollInterval = time.Second

// Consumer tails the changes feed and hands every entry to the runner, in
// feed order. There is exactly one consumer per store; the single-writer
// discipline of the pipeline follows from that.
//
// A change whose processing fails is logged and skipped — the consumer never
// wedges on one bad document. The document's ledger entry was not written,
// so its next change (or a restart from an earlier sequence) processes it
// again.
type Consumer struct {
	store  store.Store
	runner *Runner
	poll   time.Duration
	since  int64
}

// NewConsumer builds a consumer starting at feed sequence since.
func NewConsumer(st store.Store, runner *Runner, since int64) *Consumer {
	return &Consumer{
		store:  st,
		runner: runner,
		poll:   DefaultPollInterval,
		since:  since,
	}
}

// Since reports the feed sequence the consumer has processed up to.
func (c *Consumer) Since() int64 {
	return c.since
}

// Drain processes feed entries until the feed is exhausted, returning the
// number of changes handled. Writes performed while draining append to the
// feed and are drained in the same call; ledger entries make those
// redeliveries no-ops.
func (c *Consumer) Drain(ctx context.Context) (int, error) {
	handled := 0
	for {
		changes, last, err := c.store.Changes(ctx, c.since, feedBatchSize)
		if err != nil {
			return handled, err
		}
		if last == c.since {
			return handled, nil
		}

		for _, change := range changes {
			if err := c.runner.Process(ctx, change); err != nil {
				slog.Error("change skipped",
					"doc", change.ID,
					"seq", change.Seq,
					"error", err,
				)
			}
			handled++
		}
		// The store may have scanned past entries it could not deliver;
		// advance by the last seq it saw, not the last change handled, so
		// a fully skipped batch cannot be re-read forever.
		c.since = last
	}
}

// Run drains the feed, then polls for new entries until the context is
// cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if _, err := c.Drain(ctx); err != nil {
			slog.Error("feed read failed", "since", c.since, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.poll):
		}
	}
}

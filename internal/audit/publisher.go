package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Publisher decouples audit writes from the decision path. Emit never
// blocks and never fails: entries land in a bounded inbox drained by Run on
// a background goroutine. When the inbox is full the oldest entry is
// dropped: losing an audit record is acceptable, delaying a decision is
// not.
type Publisher struct {
	mirror Mirror
	index  BlobIndex // optional
	logger *slog.Logger
	inbox  chan Entry

	dropped atomic.Int64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithIndex records every stored content id in the given index.
func WithIndex(index BlobIndex) Option {
	return func(p *Publisher) { p.index = index }
}

// WithBufferSize overrides the default inbox capacity.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Entry, n)
		}
	}
}

// NewPublisher builds a publisher draining into mirror.
func NewPublisher(mirror Mirror, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		mirror: mirror,
		logger: logger,
		inbox:  make(chan Entry, 1024),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enqueues an entry for mirroring. Safe to call from the decision path:
// it returns immediately regardless of mirror health.
func (p *Publisher) Emit(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- entry:
		return
	default:
	}
	// Inbox full: drop the oldest entry to make room.
	select {
	case <-p.inbox:
		p.dropped.Add(1)
	default:
	}
	select {
	case p.inbox <- entry:
	default:
		p.dropped.Add(1)
	}
}

// Dropped reports how many entries were discarded due to backpressure.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run drains the inbox until ctx is cancelled, then finishes whatever is
// already queued. Mirror and index failures are logged, never propagated.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case entry := <-p.inbox:
			p.store(entry)
		}
	}
}

// drain flushes queued entries with a detached context so shutdown still
// writes what it can.
func (p *Publisher) drain() {
	for {
		select {
		case entry := <-p.inbox:
			p.store(entry)
		default:
			return
		}
	}
}

func (p *Publisher) store(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	contentID, err := p.mirror.Store(ctx, entry)
	if err != nil {
		p.logger.Warn("audit mirror write failed",
			"vault_id", entry.VaultID,
			"action", entry.Action,
			"result", entry.Result,
			"error", err,
		)
		return
	}

	p.logger.Info("audit entry mirrored",
		"log_type", "audit",
		"vault_id", entry.VaultID,
		"action", entry.Action,
		"result", entry.Result,
		"reason", entry.Reason,
		"content_id", contentID,
	)

	if p.index == nil {
		return
	}
	if err := p.index.Record(ctx, entry.VaultID, contentID); err != nil {
		p.logger.Warn("audit index write failed",
			"vault_id", entry.VaultID,
			"content_id", contentID,
			"error", err,
		)
	}
}

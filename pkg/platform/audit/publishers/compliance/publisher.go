// Package compliance provides the fail-closed audit publisher for guardrail decisions.
//
// Record is synchronous: the entry is linked into the hash chain and persisted
// before Record returns. If the write fails an error is returned and the
// calling operation MUST NOT report success.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/requestcontext"
)

// Publisher writes and reads the audit trail.
type Publisher struct {
	store   audit.Store
	chain   *audit.Chain
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, chain *audit.Chain, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if chain == nil {
		return nil, errors.New("audit chain is required")
	}
	p := &Publisher{
		store:  store,
		chain:  chain,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Record validates, stamps and durably appends an entry, returning it sealed.
func (p *Publisher) Record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	start := time.Now()

	if e.SubjectType == "" {
		return audit.Entry{}, fmt.Errorf("audit entry requires SubjectType")
	}
	if e.Action == "" {
		return audit.Entry{}, fmt.Errorf("audit entry requires Action")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	// Postgres keeps microseconds; truncating here keeps hashes reproducible.
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	e.EntryID = audit.NewEntryID(e.Timestamp)

	sealed, err := p.store.Append(ctx, e, p.chain.Seal)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		p.logger.ErrorContext(ctx, "CRITICAL: guardrail audit failed",
			"subject_type", e.SubjectType,
			"action", e.Action,
			"account_id", e.AccountID,
			"correlation_id", e.CorrelationID,
			"error", err,
		)
		return audit.Entry{}, fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(start)
		p.metrics.IncEntries(string(sealed.SubjectType))
	}
	return sealed, nil
}

// Query returns one page of entries ordered by timestamp ascending.
func (p *Publisher) Query(ctx context.Context, filter audit.Filter, page audit.PageRequest) (audit.Page, error) {
	return p.store.Query(ctx, filter, page)
}

// Entries lazily walks every matching entry after cursor.
func (p *Publisher) Entries(ctx context.Context, filter audit.Filter, cursor string, pageSize int) iter.Seq2[audit.Entry, error] {
	return audit.Entries(ctx, p.store, filter, cursor, pageSize)
}

// VerifyResult summarizes a chain verification run.
type VerifyResult struct {
	Verified int64
	HeadHash string
}

// Verify walks the whole chain in seq order and checks every link.
func (p *Publisher) Verify(ctx context.Context, pageSize int) (VerifyResult, error) {
	if pageSize <= 0 {
		pageSize = audit.MaxPageSize
	}
	var (
		prevHash string
		prevSeq  int64
	)
	for {
		batch, err := p.store.Scan(ctx, prevSeq, pageSize)
		if err != nil {
			return VerifyResult{Verified: prevSeq, HeadHash: prevHash}, err
		}
		if len(batch) == 0 {
			return VerifyResult{Verified: prevSeq, HeadHash: prevHash}, nil
		}
		prevHash, prevSeq, err = p.chain.Verify(prevHash, prevSeq, batch)
		if err != nil {
			if p.metrics != nil {
				p.metrics.IncChainBreaks()
			}
			p.logger.ErrorContext(ctx, "CRITICAL: audit chain verification failed", "error", err)
			return VerifyResult{Verified: prevSeq, HeadHash: prevHash}, err
		}
	}
}

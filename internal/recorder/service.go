package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Locker serializes events on the same stock across processes.
type Locker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}

// Metrics observes recorded events.
type Metrics interface {
	ObserveEvent(event string, outcome string, took time.Duration)
}

// Config tunes the recorder.
type Config struct {
	Accounts AccountMap
	// PreferNonGSTForExempt draws non-GST batches first for non-taxable sales.
	PreferNonGSTForExempt bool
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithLocker installs a cross-process stock locker.
func WithLocker(l Locker) Option { return func(r *Recorder) { r.locker = l } }

// WithAudit installs the audit sink.
func WithAudit(a shared.AuditPort) Option { return func(r *Recorder) { r.audit = a } }

// WithMetrics installs event metrics.
func WithMetrics(m Metrics) Option { return func(r *Recorder) { r.metrics = m } }

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recorder turns business events into vouchers and batch operations committed as one unit.
type Recorder struct {
	repo    RepositoryPort
	ledger  *ledger.Engine
	batches *batches.Registry
	costs   *costing.Valuator
	cfg     Config
	locker  Locker
	audit   shared.AuditPort
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a Recorder over the component services.
func New(repo RepositoryPort, engine *ledger.Engine, registry *batches.Registry, valuator *costing.Valuator, cfg Config, opts ...Option) *Recorder {
	if cfg.Accounts == (AccountMap{}) {
		cfg.Accounts = DefaultAccountMap()
	}
	r := &Recorder{
		repo:    repo,
		ledger:  engine,
		batches: registry,
		costs:   valuator,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithNow overrides the clock, used by tests.
func (r *Recorder) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Result carries everything an event produced.
type Result struct {
	Voucher     ledger.Voucher
	Batches     []batches.Batch
	Allocations []batches.Allocation
	Costs       []costing.ItemCost
	Sale        *SaleDocument
	Note        *CommissionNote
	Reversals   []CommissionReversal
	Payment     *CommissionPayment
}

// run applies fn in one transaction, holding stock locks for lockKeys when a locker is configured.
func (r *Recorder) run(ctx context.Context, tc shared.TenantContext, event Event, lockKeys []string, fn func(context.Context, TxRepository) error) error {
	start := r.now()
	err := r.runLocked(ctx, tc, lockKeys, fn)
	r.observe(event, err, r.now().Sub(start))
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrInsufficientStock) || errors.Is(err, shared.ErrSourceAlreadyPosted) {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "event rejected",
			slog.String("event", string(event)),
			slog.Int64("tenant_id", tc.TenantID),
			slog.Bool("retryable", shared.IsRetryable(err)),
			slog.Any("error", err))
	}
	return err
}

func (r *Recorder) runLocked(ctx context.Context, tc shared.TenantContext, lockKeys []string, fn func(context.Context, TxRepository) error) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	if r.locker != nil && len(lockKeys) > 0 {
		unlock, err := r.locker.Lock(ctx, lockKeys)
		if err != nil {
			return err
		}
		defer unlock()
	}
	return r.repo.WithTx(ctx, fn)
}

func (r *Recorder) observe(event Event, err error, took time.Duration) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case shared.IsRetryable(err):
		outcome = "conflict"
	case errors.Is(err, shared.ErrInsufficientStock):
		outcome = "insufficient_stock"
	case errors.Is(err, shared.ErrImbalanced):
		outcome = "imbalanced"
	case errors.Is(err, shared.ErrSourceAlreadyPosted):
		outcome = "duplicate"
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	r.metrics.ObserveEvent(string(event), outcome, took)
}

// post builds the template's legs and posts them. Templates without legs post nothing.
func (r *Recorder) post(ctx context.Context, tx TxRepository, tc shared.TenantContext, date time.Time, source ledger.SourceRef, narration string, tpl PostingTemplate) (ledger.Voucher, error) {
	legs, err := tpl.Legs(r.cfg.Accounts)
	if err != nil || len(legs) == 0 {
		return ledger.Voucher{}, err
	}
	return r.ledger.PostTx(ctx, tx.Ledger(), tc, ledger.PostingInput{
		Date:      date,
		Source:    source,
		Narration: narration,
		Legs:      legs,
	})
}

func (r *Recorder) record(ctx context.Context, tc shared.TenantContext, event Event, entityID string, meta map[string]any) {
	if r.audit == nil {
		return
	}
	err := r.audit.Record(ctx, shared.AuditLog{
		TenantID: tc.TenantID,
		ActorID:  tc.ActorID,
		Action:   "event." + string(event),
		Entity:   string(event),
		EntityID: entityID,
		Meta:     meta,
		At:       r.now(),
	})
	if err != nil {
		r.logger.Warn("audit event", slog.String("event", string(event)), slog.Any("error", err))
	}
}

// stockKeys returns sorted unique lock keys so concurrent events acquire them in the same order.
func stockKeys(tenantID int64, pairs [][2]int64) []string {
	seen := make(map[string]struct{}, len(pairs))
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		key := shared.StockLockKey(tenantID, p[0], p[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TrialBalancer answers trial balance queries.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, tc shared.TenantContext, asOf time.Time) (ledger.TrialBalance, error)
}

// TenantLister discovers the tenants a check covers when the payload names none.
type TenantLister interface {
	Tenants(ctx context.Context) ([]int64, error)
}

// StaticTenants pins the check scope to a configured tenant list.
type StaticTenants []int64

// Tenants implements TenantLister.
func (s StaticTenants) Tenants(context.Context) ([]int64, error) {
	return []int64(s), nil
}

// Finding is one integrity violation. Checks only report; they never repair.
type Finding struct {
	TenantID int64  `json:"tenant_id"`
	Check    string `json:"check"`
	Detail   string `json:"detail"`
}

// Report summarises a check run.
type Report struct {
	Tenants  int       `json:"tenants"`
	Findings []Finding `json:"findings"`
}

// collector gathers findings from concurrent tenant checks.
type collector struct {
	mu       sync.Mutex
	findings []Finding
}

func (c *collector) add(f Finding) {
	c.mu.Lock()
	c.findings = append(c.findings, f)
	c.mu.Unlock()
}

// LedgerIntegrityJob verifies that total debits equal total credits for every tenant.
type LedgerIntegrityJob struct {
	Ledger      TrialBalancer
	Tenants     TenantLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	clock       func() time.Time
}

// Run checks the tenants in payload, or every tenant, as of payload.AsOf (today when zero).
func (j *LedgerIntegrityJob) Run(ctx context.Context, payload CheckPayload) (Report, error) {
	if j == nil || j.Ledger == nil {
		return Report{}, errors.New("ledger integrity: dependencies not configured")
	}
	tenants, err := resolveTenants(ctx, payload.TenantIDs, j.Tenants)
	if err != nil {
		return Report{}, err
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	found := &collector{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(j.Concurrency))
	for _, tenantID := range tenants {
		g.Go(func() error {
			tb, err := j.Ledger.TrialBalance(gctx, shared.TenantContext{TenantID: tenantID}, asOf)
			if err != nil {
				return fmt.Errorf("ledger integrity: tenant %d: %w", tenantID, err)
			}
			if !tb.Balanced() {
				found.add(Finding{
					TenantID: tenantID,
					Check:    "trial_balance",
					Detail: fmt.Sprintf("debit %s != credit %s as of %s",
						tb.TotalDebit.StringFixed(shared.MoneyPlaces), tb.TotalCredit.StringFixed(shared.MoneyPlaces), asOf.Format(time.DateOnly)),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	report := Report{Tenants: len(tenants), Findings: found.findings}
	publish(j.log(), j.Metrics, TaskLedgerIntegrity, report)
	return report, nil
}

// Handle executes the ledger integrity task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	payload, err := decodePayload(task)
	if err != nil {
		return err
	}
	var m *jobmetrics.Metrics
	if j != nil {
		m = j.Metrics
	}
	tracker := m.Track(TaskLedgerIntegrity)
	_, err = j.Run(ctx, payload)
	if err != nil {
		j.log().Error("ledger integrity failed", slog.Any("error", err))
	}
	return tracker.End(err)
}

// WithClock overrides the internal clock for deterministic tests.
func (j *LedgerIntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LedgerIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func resolveTenants(ctx context.Context, requested []int64, lister TenantLister) ([]int64, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	if lister == nil {
		return nil, fmt.Errorf("%w: no tenants requested and no tenant lister configured", asynq.SkipRetry)
	}
	return lister.Tenants(ctx)
}

func limit(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}

// publish logs each finding at error level and counts it per check and tenant.
func publish(logger *slog.Logger, metrics *jobmetrics.Metrics, job string, report Report) {
	counts := make(map[Finding]int)
	for _, f := range report.Findings {
		logger.Error("integrity violation",
			slog.Int64("tenant_id", f.TenantID),
			slog.String("check", f.Check),
			slog.String("detail", f.Detail))
		counts[Finding{TenantID: f.TenantID, Check: f.Check}]++
	}
	for key, n := range counts {
		metrics.AddViolations(key.Check, key.TenantID, n)
	}
	logger.Info("check completed",
		slog.String("task", job),
		slog.Int("tenants", report.Tenants),
		slog.Int("findings", len(report.Findings)))
}

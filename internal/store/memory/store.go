// Package memory keeps every ledger and stock table in process memory. It backs the tests and
// the ledgerctl sandbox; a transaction is simulated with a snapshot that is restored on error.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/recorder"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type costKey struct {
	tenantID int64
	itemID   int64
	siteID   int64
}

type state struct {
	seq map[string]int64

	accounts    map[int64]accounts.Account
	vouchers    map[int64]ledger.Voucher
	batches     map[int64]batches.Batch
	allocations map[int64]batches.Allocation
	costs       map[costKey]costing.ItemCost
	sales       map[int64]recorder.SaleDocument
	saleLines   map[int64]recorder.SaleDocumentLine
	notes       map[int64]recorder.CommissionNote
	reversals   map[int64]recorder.CommissionReversal
	payments    map[int64]recorder.CommissionPayment
	audit       []shared.AuditLog
}

func newState() *state {
	return &state{
		seq:         make(map[string]int64),
		accounts:    make(map[int64]accounts.Account),
		vouchers:    make(map[int64]ledger.Voucher),
		batches:     make(map[int64]batches.Batch),
		allocations: make(map[int64]batches.Allocation),
		costs:       make(map[costKey]costing.ItemCost),
		sales:       make(map[int64]recorder.SaleDocument),
		saleLines:   make(map[int64]recorder.SaleDocumentLine),
		notes:       make(map[int64]recorder.CommissionNote),
		reversals:   make(map[int64]recorder.CommissionReversal),
		payments:    make(map[int64]recorder.CommissionPayment),
	}
}

// snapshot copies every table. Stored values are never mutated in place, so a shallow copy of
// each map is enough.
func (s *state) snapshot() *state {
	return &state{
		seq:         maps.Clone(s.seq),
		accounts:    maps.Clone(s.accounts),
		vouchers:    maps.Clone(s.vouchers),
		batches:     maps.Clone(s.batches),
		allocations: maps.Clone(s.allocations),
		costs:       maps.Clone(s.costs),
		sales:       maps.Clone(s.sales),
		saleLines:   maps.Clone(s.saleLines),
		notes:       maps.Clone(s.notes),
		reversals:   maps.Clone(s.reversals),
		payments:    maps.Clone(s.payments),
		audit:       slices.Clone(s.audit),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store is a transactional in-memory database. Transactions are fully serialized.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// run executes fn under the store lock, restoring the snapshot when fn fails.
func (s *Store) run(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.snapshot()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Accounts returns the account repository view.
func (s *Store) Accounts() accounts.RepositoryPort { return accountsPort{s} }

// Ledger returns the voucher repository view.
func (s *Store) Ledger() ledger.RepositoryPort { return ledgerPort{s} }

// Batches returns the batch repository view.
func (s *Store) Batches() batches.RepositoryPort { return batchesPort{s} }

// Costs returns the item cost repository view.
func (s *Store) Costs() costing.RepositoryPort { return costsPort{s} }

// Recorder returns the composite view the event recorder commits through.
func (s *Store) Recorder() recorder.RepositoryPort { return recorderPort{s} }

// Record implements shared.AuditPort.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.audit = append(s.st.audit, log)
	return nil
}

// AuditTrail returns the recorded audit entries in arrival order.
func (s *Store) AuditTrail() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.audit)
}

type accountsPort struct{ s *Store }

func (p accountsPort) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return p.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

type ledgerPort struct{ s *Store }

func (p ledgerPort) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return p.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

type batchesPort struct{ s *Store }

func (p batchesPort) WithTx(ctx context.Context, fn func(context.Context, batches.TxRepository) error) error {
	return p.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

type costsPort struct{ s *Store }

func (p costsPort) WithTx(ctx context.Context, fn func(context.Context, costing.TxRepository) error) error {
	return p.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

type recorderPort struct{ s *Store }

func (p recorderPort) WithTx(ctx context.Context, fn func(context.Context, recorder.TxRepository) error) error {
	return p.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

// tx is the view handed to a transaction body. It satisfies every module's TxRepository.
type tx struct {
	st *state
}

var (
	_ accounts.TxRepository       = (*tx)(nil)
	_ ledger.TxRepository         = (*tx)(nil)
	_ batches.TxRepository        = (*tx)(nil)
	_ costing.TxRepository        = (*tx)(nil)
	_ recorder.TxRepository       = (*tx)(nil)
	_ recorder.DocumentRepository = (*tx)(nil)
	_ shared.AuditPort            = (*Store)(nil)
)

func (t *tx) Ledger() ledger.TxRepository            { return t }
func (t *tx) Batches() batches.TxRepository          { return t }
func (t *tx) Costs() costing.TxRepository            { return t }
func (t *tx) Documents() recorder.DocumentRepository { return t }

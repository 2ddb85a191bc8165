package ledger

import (
	"context"
	"time"

	"github.com/odyssey-erp/stockledger/internal/accounts"
)

// AccountLookup resolves accounts inside the posting transaction.
type AccountLookup interface {
	GetAccount(ctx context.Context, tenantID, id int64) (accounts.Account, error)
	GetAccountByCode(ctx context.Context, tenantID int64, code string) (accounts.Account, error)
}

// TxRepository exposes voucher persistence inside a transaction. Vouchers and legs are append-only.
type TxRepository interface {
	AccountLookup
	// InsertVoucher stores the voucher and its legs, assigning ids and leg sequences.
	// A reused source reference fails with shared.ErrSourceAlreadyPosted.
	InsertVoucher(ctx context.Context, voucher Voucher) (Voucher, error)
	GetVoucher(ctx context.Context, tenantID, id int64) (Voucher, error)
	GetVoucherBySource(ctx context.Context, tenantID int64, source SourceRef) (Voucher, error)
	// FindReversal returns the voucher reversing id, if any.
	FindReversal(ctx context.Context, tenantID, id int64) (Voucher, bool, error)
	ListVouchersBySourceType(ctx context.Context, tenantID int64, sourceType string) ([]Voucher, error)
	// ListAccountLegs returns legs dated on or before asOf ordered by (date, seq). A zero asOf means all.
	ListAccountLegs(ctx context.Context, tenantID, accountID int64, asOf time.Time) ([]Leg, error)
	// AccountTotals sums legs per account up to asOf, ordered by account code.
	AccountTotals(ctx context.Context, tenantID int64, asOf time.Time) ([]AccountTotal, error)
}

// RepositoryPort opens transactions over ledger storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

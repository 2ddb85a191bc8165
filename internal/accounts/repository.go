package accounts

import "context"

// TxRepository exposes account persistence inside a transaction.
type TxRepository interface {
	// InsertAccount fails with *shared.DuplicateCodeError when the code is taken.
	InsertAccount(ctx context.Context, account Account) (Account, error)
	// GetAccount fails with *shared.NotFoundError.
	GetAccount(ctx context.Context, tenantID, id int64) (Account, error)
	// GetAccountByCode fails with *shared.NotFoundError.
	GetAccountByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]Account, error)
	SetAccountActive(ctx context.Context, tenantID, id int64, active bool) error
	// ListTenants returns the distinct tenant ids in ascending order.
	ListTenants(ctx context.Context) ([]int64, error)
}

// RepositoryPort opens transactions over account storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

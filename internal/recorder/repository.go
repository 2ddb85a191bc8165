package recorder

import (
	"context"

	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
)

// TxRepository gives one transaction a view over every store an event touches.
type TxRepository interface {
	Ledger() ledger.TxRepository
	Batches() batches.TxRepository
	Costs() costing.TxRepository
	Documents() DocumentRepository
}

// RepositoryPort opens the transaction an event commits in.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

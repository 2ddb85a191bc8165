package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/recorder"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Stores names the repository ports the services run on.
type Stores struct {
	Accounts accounts.RepositoryPort
	Ledger   ledger.RepositoryPort
	Batches  batches.RepositoryPort
	Costs    costing.RepositoryPort
	Recorder recorder.RepositoryPort
	Audit    shared.AuditPort
}

// PostgresStores wires every port to the pgx repositories sharing pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Accounts: accounts.NewRepository(pool),
		Ledger:   ledger.NewRepository(pool),
		Batches:  batches.NewRepository(pool),
		Costs:    costing.NewRepository(pool),
		Recorder: recorder.NewRepository(pool),
		Audit:    shared.NewAuditLogger(pool),
	}
}

// Services bundles the ledger and stock components.
type Services struct {
	Accounts *accounts.Service
	Ledger   *ledger.Engine
	Batches  *batches.Registry
	Costs    *costing.Valuator
	Recorder *recorder.Recorder
}

// NewServices builds the components over stores. Extra recorder options such as a locker or
// metrics are appended after the audit sink and logger.
func NewServices(cfg *Config, stores Stores, logger *slog.Logger, opts ...recorder.Option) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	engine := ledger.NewEngine(stores.Ledger, stores.Audit, cfg.LedgerConfig(), logger)
	registry := batches.NewRegistry(stores.Batches, logger)
	valuator := costing.NewValuator(stores.Costs, logger)

	recCfg := recorder.Config{Accounts: recorder.DefaultAccountMap()}
	if cfg != nil {
		recCfg.PreferNonGSTForExempt = cfg.PreferNonGSTForExempt
		if cfg.RoundingAccount != "" {
			recCfg.Accounts.Rounding = cfg.RoundingAccount
		}
	}
	recOpts := append([]recorder.Option{recorder.WithAudit(stores.Audit), recorder.WithLogger(logger)}, opts...)

	return &Services{
		Accounts: accounts.NewService(stores.Accounts, logger),
		Ledger:   engine,
		Batches:  registry,
		Costs:    valuator,
		Recorder: recorder.New(stores.Recorder, engine, registry, valuator, recCfg, recOpts...),
	}
}

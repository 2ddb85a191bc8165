package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Service manages a tenant's chart of accounts.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the chart of accounts service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a new account. The normal side is derived from the type.
func (s *Service) Create(ctx context.Context, tc shared.TenantContext, in CreateInput) (Account, error) {
	if err := tc.Validate(); err != nil {
		return Account{}, err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = CreateTx(ctx, tx, tc, in, s.now())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account created", slog.Int64("tenant_id", tc.TenantID), slog.String("code", created.Code))
	return created, nil
}

// CreateTx inserts an already validated account inside an open transaction.
func CreateTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, in CreateInput, at time.Time) (Account, error) {
	return tx.InsertAccount(ctx, Account{
		TenantID:   tc.TenantID,
		Code:       in.Code,
		Name:       in.Name,
		Type:       in.Type,
		NormalSide: in.Type.NormalSide(),
		IsActive:   true,
		CreatedAt:  at,
	})
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, tc shared.TenantContext, id int64) (Account, error) {
	if err := tc.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, tc.TenantID, id)
		return err
	})
	return account, err
}

// GetByCode loads an account by its tenant-unique code.
func (s *Service) GetByCode(ctx context.Context, tc shared.TenantContext, code string) (Account, error) {
	if err := tc.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, tc.TenantID, strings.TrimSpace(code))
		return err
	})
	return account, err
}

// Resolve accepts either a code or a numeric id. Codes win when both could match.
func (s *Service) Resolve(ctx context.Context, tc shared.TenantContext, idOrCode string) (Account, error) {
	if err := tc.Validate(); err != nil {
		return Account{}, err
	}
	ref := strings.TrimSpace(idOrCode)
	if ref == "" {
		return Account{}, shared.Invalid("account", "reference required")
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, tc.TenantID, ref)
		if err == nil || !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		id, parseErr := strconv.ParseInt(ref, 10, 64)
		if parseErr != nil {
			return &shared.NotFoundError{Kind: "account", Key: ref}
		}
		account, err = tx.GetAccount(ctx, tc.TenantID, id)
		return err
	})
	return account, err
}

// List returns all accounts ordered by code, inactive ones included.
func (s *Service) List(ctx context.Context, tc shared.TenantContext) ([]Account, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListAccounts(ctx, tc.TenantID)
		return err
	})
	return out, err
}

// Deactivate blocks further postings to the account. History is untouched.
func (s *Service) Deactivate(ctx context.Context, tc shared.TenantContext, id int64) error {
	return s.setActive(ctx, tc, id, false)
}

// Activate re-enables postings to the account.
func (s *Service) Activate(ctx context.Context, tc shared.TenantContext, id int64) error {
	return s.setActive(ctx, tc, id, true)
}

func (s *Service) setActive(ctx context.Context, tc shared.TenantContext, id int64, active bool) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, tc.TenantID, id); err != nil {
			return err
		}
		return tx.SetAccountActive(ctx, tc.TenantID, id, active)
	})
	if err != nil {
		return err
	}
	s.logger.Info("account status changed", slog.Int64("tenant_id", tc.TenantID), slog.Int64("account_id", id), slog.Bool("active", active))
	return nil
}

// SeedStandardChart creates the recorder's accounts, skipping codes that already exist.
func (s *Service) SeedStandardChart(ctx context.Context, tc shared.TenantContext) ([]Account, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var seeded []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seeded = seeded[:0]
		for _, in := range StandardChart {
			existing, err := tx.GetAccountByCode(ctx, tc.TenantID, in.Code)
			if err == nil {
				seeded = append(seeded, existing)
				continue
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			created, err := CreateTx(ctx, tx, tc, in, s.now())
			if err != nil {
				return fmt.Errorf("accounts: seed %s: %w", in.Code, err)
			}
			seeded = append(seeded, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seeded, nil
}

// Tenants lists every tenant that owns at least one account. Background checks use it to
// discover their scope.
func (s *Service) Tenants(ctx context.Context) ([]int64, error) {
	var out []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListTenants(ctx)
		return err
	})
	return out, err
}

package accounts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
}

// BalanceReader serves cached balances.
type BalanceReader interface {
	Balance(ctx context.Context, accountID int64, load func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error)
}

// Service maintains the chart of accounts.
type Service struct {
	repo  RepositoryPort
	cache BalanceReader
}

// NewService constructs the account registry. cache may be nil.
func NewService(repo RepositoryPort, cache BalanceReader) *Service {
	return &Service{repo: repo, cache: cache}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Balance returns the running balance of an account in its natural direction.
func (s *Service) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	load := func(ctx context.Context) (decimal.Decimal, error) {
		acc, err := s.repo.Get(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		return acc.Balance, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Balance(ctx, id, load)
}

// Create opens a new account under an optional group parent.
func (s *Service) Create(ctx context.Context, in CreateInput, userID int64) (Account, error) {
	in = in.normalize()
	if in.Code == "" {
		return Account{}, fmt.Errorf("%w: account code required", shared.ErrInvalidDocument)
	}
	if in.Name == "" {
		return Account{}, fmt.Errorf("%w: account name required", shared.ErrInvalidDocument)
	}
	nature, err := resolveNature(in.Type, in.Nature)
	if err != nil {
		return Account{}, err
	}
	var created Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentID != nil {
			if err := ensureGroupParent(ctx, tx, *in.ParentID); err != nil {
				return err
			}
		}
		created, err = tx.InsertAccount(ctx, in, nature, userID)
		return err
	})
	return created, err
}

// Reparent moves an account below another group, refusing cycles.
func (s *Service) Reparent(ctx context.Context, id int64, parentID *int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccount(ctx, id); err != nil {
			return err
		}
		if parentID != nil {
			if *parentID == id {
				return shared.ErrAccountCycle
			}
			if err := ensureGroupParent(ctx, tx, *parentID); err != nil {
				return err
			}
			if err := ensureNoCycle(ctx, tx, id, *parentID); err != nil {
				return err
			}
		}
		return tx.UpdateAccountParent(ctx, id, parentID)
	})
}

// Delete removes an account that has neither children nor GL history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccount(ctx, id); err != nil {
			return err
		}
		children, err := tx.CountChildAccounts(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("%w: %d child accounts", shared.ErrAccountInUse, children)
		}
		entries, err := tx.CountAccountGLEntries(ctx, id)
		if err != nil {
			return err
		}
		if entries > 0 {
			return fmt.Errorf("%w: %d gl entries", shared.ErrAccountInUse, entries)
		}
		return tx.DeleteAccount(ctx, id)
	})
}

func ensureGroupParent(ctx context.Context, tx TxRepository, parentID int64) error {
	parent, err := tx.GetAccount(ctx, parentID)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	if !parent.IsGroup {
		return fmt.Errorf("%w: parent %s is not a group account", shared.ErrInvalidDocument, parent.Code)
	}
	return nil
}

// ensureNoCycle walks up from parentID and fails if it reaches id.
func ensureNoCycle(ctx context.Context, tx TxRepository, id, parentID int64) error {
	seen := map[int64]bool{}
	current := &parentID
	for current != nil {
		if *current == id {
			return shared.ErrAccountCycle
		}
		if seen[*current] {
			return shared.ErrAccountCycle
		}
		seen[*current] = true
		acc, err := tx.GetAccount(ctx, *current)
		if err != nil {
			return err
		}
		current = acc.ParentID
	}
	return nil
}

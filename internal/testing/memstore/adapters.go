package memstore

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
)

// Accounts adapts the store to accounts.RepositoryPort.
func (s *Store) Accounts() AccountRepo { return AccountRepo{s} }

// AccountRepo is the account registry view of Store.
type AccountRepo struct{ s *Store }

func (r AccountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (r AccountRepo) List(context.Context) ([]accounts.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return sortedValues(r.s.state.accounts, func(a accounts.Account) int64 { return a.ID }), nil
}

func (r AccountRepo) Get(_ context.Context, id int64) (accounts.Account, error) {
	return r.s.Account(id)
}

// MappingRepo adapts the store to mappings.RepositoryPort.
func (s *Store) MappingRepo() MappingRepo { return MappingRepo{s} }

// MappingRepo is the mapping view of Store.
type MappingRepo struct{ s *Store }

func (r MappingRepo) WithTx(ctx context.Context, fn func(context.Context, mappings.TxRepository) error) error {
	return r.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (r MappingRepo) GetActive(ctx context.Context) (*mappings.Mapping, error) {
	var out *mappings.Mapping
	err := r.s.run(ctx, func(t *tx) error {
		var err error
		out, err = t.GetActiveMapping(ctx)
		return err
	})
	return out, err
}

// Provisions adapts the store to provisions.Store.
func (s *Store) Provisions() ProvisionStore { return ProvisionStore{s} }

// ProvisionStore is the provision view of Store.
type ProvisionStore struct{ s *Store }

func (p ProvisionStore) WithTx(ctx context.Context, fn func(context.Context, provisions.Tx) error) error {
	return p.s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (p ProvisionStore) DueProvisions(_ context.Context, asOf time.Time) ([]provisions.Provision, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []provisions.Provision
	for _, pr := range sortedValues(p.s.state.provisions, func(pr provisions.Provision) int64 { return pr.ID }) {
		if pr.IsActive && !pr.NextCalculationDate.After(asOf) {
			out = append(out, pr)
		}
	}
	return out, nil
}

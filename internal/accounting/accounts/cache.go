package accounts

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

// BalanceCache serves account balances from Redis until the next posting bumps the version.
type BalanceCache struct {
	store *cache.Versioned
}

// NewBalanceCache wraps a versioned cache namespace.
func NewBalanceCache(store *cache.Versioned) *BalanceCache {
	return &BalanceCache{store: store}
}

// Balance returns the cached balance or loads it.
func (c *BalanceCache) Balance(ctx context.Context, accountID int64, load func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := c.store.FetchJSON(ctx, strconv.FormatInt(accountID, 10), &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}

// Invalidate drops every cached balance.
func (c *BalanceCache) Invalidate(ctx context.Context) error {
	return c.store.Bump(ctx)
}

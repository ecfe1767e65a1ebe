package provisions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

// SweepLockKey guards the cluster-wide sweep.
const SweepLockKey = "ledger:provision_sweep:lock"

// Tx extends the ledger unit of work with provision statements.
type Tx interface {
	ledger.Tx
	LockProvision(ctx context.Context, id int64) (Provision, error)
	UpdateProvisionSchedule(ctx context.Context, id int64, current decimal.Decimal, next, calculatedAt time.Time) error
}

// Store opens provision transactions.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	DueProvisions(ctx context.Context, asOf time.Time) ([]Provision, error)
}

// Poster posts documents inside a caller transaction.
type Poster interface {
	PostDocumentTx(ctx context.Context, tx ledger.Tx, doc journals.Document, userID int64, opts journals.PostOptions, fx *ledger.Effects) (ledger.Posting, error)
	AfterCommit(ctx context.Context, fx *ledger.Effects)
}

// Locker provides the sweep mutex.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

// Scheduler recomputes due provisions.
type Scheduler struct {
	store       Store
	poster      Poster
	locker      Locker
	logger      *slog.Logger
	concurrency int
	lockTTL     time.Duration
	now         func() time.Time
}

// NewScheduler constructs Scheduler. locker may be nil for single-node use.
func NewScheduler(store Store, poster Poster, locker Locker, logger *slog.Logger, concurrency int) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Scheduler{
		store:       store,
		poster:      poster,
		locker:      locker,
		logger:      logger,
		concurrency: concurrency,
		lockTTL:     10 * time.Minute,
		now:         time.Now,
	}
}

// WithNow overrides the clock used for calculation timestamps.
func (s *Scheduler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetDueProvisions lists active provisions due on or before asOf.
func (s *Scheduler) GetDueProvisions(ctx context.Context, asOf time.Time) ([]Provision, error) {
	return s.store.DueProvisions(ctx, asOf)
}

// UpdateProvision recalculates one provision in its own transaction. The
// schedule advances even when no adjustment is posted.
func (s *Scheduler) UpdateProvision(ctx context.Context, id, userID int64, asOf time.Time) (Result, error) {
	var (
		res Result
		fx  ledger.Effects
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		res, fx = Result{}, ledger.Effects{}
		p, err := tx.LockProvision(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return fmt.Errorf("%w: provision %d inactive", shared.ErrInvalidStatus, p.ID)
		}
		locked, err := lockAccounts(ctx, tx, p.MainAccountID, p.ProvisionAccountID, p.ExpenseAccountID)
		if err != nil {
			return err
		}
		res = Result{Provision: p, NewAmount: p.Target(locked[p.MainAccountID].Balance)}
		res.Difference = res.NewAmount.Sub(p.CurrentAmount)
		current := p.CurrentAmount
		if res.Difference.Abs().GreaterThan(shared.Epsilon) {
			posting, err := s.poster.PostDocumentTx(ctx, tx, p.Document(res.Difference, asOf), userID, journals.PostOptions{}, &fx)
			if err != nil {
				return err
			}
			res.Posted = true
			res.Posting = &posting
			current = res.NewAmount
		}
		next := p.Frequency.Advance(p.NextCalculationDate)
		if err := tx.UpdateProvisionSchedule(ctx, p.ID, current, next, s.now()); err != nil {
			return err
		}
		res.Provision.CurrentAmount = current
		res.Provision.NextCalculationDate = next
		fx.Record(audit.Input{
			TableName: "account_provisions",
			RecordID:  strconv.FormatInt(p.ID, 10),
			Action:    audit.ActionUpdate,
			UserID:    userID,
			OldValues: map[string]any{
				"current_amount":        p.CurrentAmount.StringFixed(2),
				"next_calculation_date": p.NextCalculationDate.Format("2006-01-02"),
			},
			NewValues: map[string]any{
				"current_amount":        current.StringFixed(2),
				"next_calculation_date": next.Format("2006-01-02"),
			},
			Description: fmt.Sprintf("%s difference %s", p.Method, res.Difference.StringFixed(2)),
		})
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.poster.AfterCommit(ctx, &fx)
	return res, nil
}

// Sweep processes every due provision, each in its own transaction, so one
// failure never undoes another.
func (s *Scheduler) Sweep(ctx context.Context, asOf time.Time, userID int64) (SweepReport, error) {
	report := SweepReport{Failed: map[int64]string{}}
	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, SweepLockKey, s.lockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	due, err := s.GetDueProvisions(ctx, asOf)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, p := range due {
		g.Go(func() error {
			res, err := s.UpdateProvision(ctx, p.ID, userID, asOf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[p.ID] = err.Error()
				s.logger.Error("provision update failed", slog.Int64("provision_id", p.ID), slog.Any("error", err))
				return nil
			}
			report.Processed++
			if res.Posted {
				report.Posted++
			}
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info("provision sweep finished",
		slog.Int("due", report.Due),
		slog.Int("processed", report.Processed),
		slog.Int("posted", report.Posted),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

// lockAccounts locks ids in ascending order, the same order postings use.
func lockAccounts(ctx context.Context, tx Tx, ids ...int64) (map[int64]accounts.Account, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	locked := make(map[int64]accounts.Account, len(sorted))
	for _, id := range slices.Compact(sorted) {
		acc, err := tx.LockAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", id, err)
		}
		locked[id] = acc
	}
	return locked, nil
}

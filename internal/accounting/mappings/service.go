package mappings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetActive(ctx context.Context) (*Mapping, error)
}

// Auditor records configuration changes.
type Auditor interface {
	LogAction(ctx context.Context, in audit.Input) (audit.Entry, error)
}

// Resolver manages the single active account mapping.
type Resolver struct {
	repo    RepositoryPort
	auditor Auditor
	now     func() time.Time
}

// NewResolver constructs the resolver.
func NewResolver(repo RepositoryPort) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// WithAuditor attaches the audit log used after each committed change.
func (r *Resolver) WithAuditor(a Auditor) *Resolver {
	r.auditor = a
	return r
}

func (r *Resolver) record(ctx context.Context, action audit.Action, m Mapping, userID int64) {
	if r.auditor == nil {
		return
	}
	bindings := make(map[string]any, len(m.Bindings))
	roles := make([]string, 0, len(m.Bindings))
	for role, id := range m.Bindings {
		bindings[string(role)] = id
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	_, _ = r.auditor.LogAction(ctx, audit.Input{
		TableName: "account_mappings",
		RecordID:  strconv.FormatInt(m.ID, 10),
		Action:    action,
		UserID:    userID,
		NewValues: map[string]any{
			"name":      m.Name,
			"is_active": m.IsActive,
			"bindings":  bindings,
		},
		Description: fmt.Sprintf("%s (%d roles)", m.Name, len(roles)),
	})
}

// GetActive returns the active mapping, or nil when none is active.
func (r *Resolver) GetActive(ctx context.Context) (*Mapping, error) {
	return r.repo.GetActive(ctx)
}

// Create stores a mapping. When in.Activate is set the mapping must validate
// and every other mapping is deactivated in the same transaction.
func (r *Resolver) Create(ctx context.Context, in Input, userID int64) (Mapping, error) {
	in, err := in.normalize()
	if err != nil {
		return Mapping{}, err
	}
	if in.Name == "" {
		return Mapping{}, errors.New("accounting: mapping name required")
	}
	m := Mapping{Name: in.Name, Description: in.Description, Bindings: in.Bindings, IsActive: in.Activate, CreatedBy: userID, UpdatedBy: userID}
	if m.IsActive {
		if err := Validate(&m); err != nil {
			return Mapping{}, err
		}
	}
	var created Mapping
	err = r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if m.IsActive {
			if err := checkAccounts(ctx, tx, m); err != nil {
				return err
			}
			if err := deactivateAll(ctx, tx, userID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.InsertMapping(ctx, m)
		return err
	})
	if err != nil {
		return Mapping{}, err
	}
	r.record(ctx, audit.ActionCreate, created, userID)
	return created, nil
}

// Update replaces name, description and bindings of a mapping. An active
// mapping stays active only if it still validates.
func (r *Resolver) Update(ctx context.Context, id int64, in Input, userID int64) (Mapping, error) {
	in, err := in.normalize()
	if err != nil {
		return Mapping{}, err
	}
	var updated Mapping
	err = r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockMappings(ctx); err != nil {
			return err
		}
		current, err := tx.GetMapping(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != "" {
			current.Name = in.Name
		}
		current.Description = in.Description
		current.Bindings = in.Bindings
		current.UpdatedBy = userID
		activate := current.IsActive || in.Activate
		if activate {
			if err := Validate(&current); err != nil {
				return err
			}
			if err := checkAccounts(ctx, tx, current); err != nil {
				return err
			}
			if !current.IsActive {
				if err := tx.DeactivateMappings(ctx, userID); err != nil {
					return err
				}
			}
			current.IsActive = true
		}
		updated, err = tx.UpdateMapping(ctx, current)
		return err
	})
	if err != nil {
		return Mapping{}, err
	}
	r.record(ctx, audit.ActionUpdate, updated, userID)
	return updated, nil
}

// Activate makes id the only active mapping.
func (r *Resolver) Activate(ctx context.Context, id int64, userID int64) (Mapping, error) {
	var activated Mapping
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockMappings(ctx); err != nil {
			return err
		}
		m, err := tx.GetMapping(ctx, id)
		if err != nil {
			return err
		}
		if err := Validate(&m); err != nil {
			return err
		}
		if err := checkAccounts(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.DeactivateMappings(ctx, userID); err != nil {
			return err
		}
		if err := tx.SetMappingActive(ctx, id, userID); err != nil {
			return err
		}
		activated, err = tx.GetMapping(ctx, id)
		return err
	})
	if err != nil {
		return Mapping{}, err
	}
	r.record(ctx, audit.ActionActivate, activated, userID)
	return activated, nil
}

// CreateDefaultMapping discovers bindings from the chart of accounts. The
// result is activated only when it validates; otherwise it is stored inactive
// and returned together with the validation error.
func (r *Resolver) CreateDefaultMapping(ctx context.Context, userID int64) (Mapping, error) {
	var (
		created  Mapping
		validErr error
	)
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		candidates, err := tx.ListPostableAccounts(ctx)
		if err != nil {
			return err
		}
		m := Mapping{
			Name:        fmt.Sprintf("Default %s", r.now().UTC().Format("2006-01-02 15:04")),
			Description: "Discovered from chart of accounts",
			Bindings:    Discover(candidates),
			CreatedBy:   userID,
			UpdatedBy:   userID,
		}
		validErr = Validate(&m)
		if validErr == nil {
			if err := deactivateAll(ctx, tx, userID); err != nil {
				return err
			}
			m.IsActive = true
		}
		created, err = tx.InsertMapping(ctx, m)
		return err
	})
	if err != nil {
		return Mapping{}, err
	}
	r.record(ctx, audit.ActionCreate, created, userID)
	return created, validErr
}

// checkAccounts requires every binding to reference a postable account and
// the discount role to hold a debit-nature revenue account.
func checkAccounts(ctx context.Context, tx TxRepository, m Mapping) error {
	postable, err := tx.ListPostableAccounts(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]accounts.Account, len(postable))
	for _, a := range postable {
		byID[a.ID] = a
	}
	for _, role := range AllRoles {
		id, ok := m.Account(role)
		if !ok {
			continue
		}
		acc, found := byID[id]
		if !found {
			return &shared.ConfigurationError{Reason: fmt.Sprintf("%s bound to account %d which is not postable", role, id)}
		}
		if role == RoleDiscount && (acc.Type != accounts.AccountTypeRevenue || acc.Nature != accounts.NatureDebit) {
			return &shared.ConfigurationError{Reason: fmt.Sprintf("discount account %s must be a debit-nature revenue account", acc.Code)}
		}
	}
	return nil
}

func deactivateAll(ctx context.Context, tx TxRepository, userID int64) error {
	if err := tx.LockMappings(ctx); err != nil {
		return err
	}
	return tx.DeactivateMappings(ctx, userID)
}

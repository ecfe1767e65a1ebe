package mappings

import (
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Role names a business purpose an account is bound to.
type Role string

const (
	RoleSalesRevenue       Role = "sales_revenue"
	RoleAccountsReceivable Role = "accounts_receivable"
	RoleSalesTax           Role = "sales_tax"
	RoleDiscount           Role = "discount"
	RoleShippingRevenue    Role = "shipping_revenue"
	RoleCash               Role = "cash"
	RoleBank               Role = "bank"
	RoleAccountsPayable    Role = "accounts_payable"
)

// AllRoles lists every bindable role in display order.
var AllRoles = []Role{
	RoleSalesRevenue,
	RoleAccountsReceivable,
	RoleSalesTax,
	RoleDiscount,
	RoleShippingRevenue,
	RoleCash,
	RoleBank,
	RoleAccountsPayable,
}

// RequiredRoles must be bound before a mapping can be active.
var RequiredRoles = []Role{
	RoleSalesRevenue,
	RoleAccountsReceivable,
	RoleSalesTax,
	RoleDiscount,
	RoleCash,
	RoleAccountsPayable,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Mapping is a named snapshot of role to account bindings.
type Mapping struct {
	ID          int64
	Name        string
	Description string
	Bindings    map[Role]int64
	IsActive    bool
	CreatedBy   int64
	UpdatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account returns the account bound to role.
func (m *Mapping) Account(role Role) (int64, bool) {
	if m == nil {
		return 0, false
	}
	id, ok := m.Bindings[role]
	return id, ok && id > 0
}

// Require fails with a ConfigurationError listing every unbound role.
func (m *Mapping) Require(roles ...Role) error {
	if m == nil {
		return &shared.ConfigurationError{Reason: "no active account mapping"}
	}
	var missing []string
	for _, role := range roles {
		if _, ok := m.Account(role); !ok {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		return &shared.ConfigurationError{Missing: missing}
	}
	return nil
}

// Validate checks that every required role is bound.
func Validate(m *Mapping) error {
	return m.Require(RequiredRoles...)
}

// Input carries mapping fields for create and update.
type Input struct {
	Name        string
	Description string
	Bindings    map[Role]int64
	Activate    bool
}

func (in Input) normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	clean := make(map[Role]int64, len(in.Bindings))
	var unknown []string
	for role, id := range in.Bindings {
		role = Role(strings.ToLower(strings.TrimSpace(string(role))))
		if !role.Valid() {
			unknown = append(unknown, string(role))
			continue
		}
		if id > 0 {
			clean[role] = id
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return in, &shared.ConfigurationError{Reason: "unknown roles: " + strings.Join(unknown, ", ")}
	}
	in.Bindings = clean
	return in, nil
}

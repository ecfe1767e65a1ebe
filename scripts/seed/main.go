package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

type seedAccount struct {
	code   string
	name   string
	typ    accounts.AccountType
	nature accounts.Nature
	group  bool
	parent string
}

// chart is a minimal shipping chart of accounts. Names carry the keywords the
// default mapping discovers.
var chart = []seedAccount{
	{code: "1000", name: "Assets", typ: accounts.AccountTypeAsset, group: true},
	{code: "1100", name: "Cash on Hand", typ: accounts.AccountTypeAsset, parent: "1000"},
	{code: "1110", name: "Bank Operating", typ: accounts.AccountTypeAsset, parent: "1000"},
	{code: "1200", name: "Trade Receivable", typ: accounts.AccountTypeAsset, parent: "1000"},
	{code: "1210", name: "Allowance for Doubtful Receivables", typ: accounts.AccountTypeAsset, nature: accounts.NatureCredit, parent: "1000"},
	{code: "2000", name: "Liabilities", typ: accounts.AccountTypeLiability, group: true},
	{code: "2100", name: "Trade Payable", typ: accounts.AccountTypeLiability, parent: "2000"},
	{code: "2200", name: "VAT Output", typ: accounts.AccountTypeLiability, parent: "2000"},
	{code: "3000", name: "Equity", typ: accounts.AccountTypeEquity, group: true},
	{code: "3100", name: "Paid-in Capital", typ: accounts.AccountTypeEquity, parent: "3000"},
	{code: "4000", name: "Income", typ: accounts.AccountTypeRevenue, group: true},
	{code: "4100", name: "Sales Revenue", typ: accounts.AccountTypeRevenue, parent: "4000"},
	{code: "4200", name: "Freight Income", typ: accounts.AccountTypeRevenue, parent: "4000"},
	{code: "4300", name: "Sales Discount", typ: accounts.AccountTypeRevenue, nature: accounts.NatureDebit, parent: "4000"},
	{code: "6000", name: "Expenses", typ: accounts.AccountTypeExpense, group: true},
	{code: "6100", name: "Bad Debt Expense", typ: accounts.AccountTypeExpense, parent: "6000"},
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	defer rt.Close(logger)

	fmt.Println("→ Seeding chart of accounts...")
	if err := seedChart(ctx, rt.Accounts, cfg.SystemUserID); err != nil {
		log.Fatalf("seed chart: %v", err)
	}

	fmt.Println("→ Seeding default account mapping...")
	if _, err := rt.Mappings.GetActive(ctx); err == nil {
		fmt.Println("  active mapping already present, skipped")
	} else {
		m, err := rt.Mappings.CreateDefaultMapping(ctx, cfg.SystemUserID)
		if err != nil {
			log.Fatalf("seed mapping: %v", err)
		}
		fmt.Printf("  mapping %d %q active=%t\n", m.ID, m.Name, m.IsActive)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedChart(ctx context.Context, svc *accounts.Service, userID int64) error {
	existing, err := svc.List(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]int64, len(existing))
	for _, a := range existing {
		ids[a.Code] = a.ID
	}
	for _, s := range chart {
		if _, ok := ids[s.code]; ok {
			continue
		}
		in := accounts.CreateInput{Code: s.code, Name: s.name, Type: s.typ, Nature: s.nature, IsGroup: s.group}
		if s.parent != "" {
			parent := ids[s.parent]
			in.ParentID = &parent
		}
		created, err := svc.Create(ctx, in, userID)
		if errors.Is(err, shared.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s.code, err)
		}
		ids[created.Code] = created.ID
	}
	return nil
}

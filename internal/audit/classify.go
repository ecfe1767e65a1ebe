package audit

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// CategoryFor derives a category from the table name.
func CategoryFor(table string) Category {
	t := strings.ToLower(table)
	switch {
	case strings.Contains(t, "allocation"), strings.Contains(t, "invoice_receipt"), strings.Contains(t, "invoice_payment"):
		return CategorySettlement
	case strings.Contains(t, "gl_entr"):
		return CategoryLedger
	case strings.Contains(t, "journal"):
		return CategoryJournal
	case strings.Contains(t, "mapping"):
		return CategoryMapping
	case strings.Contains(t, "provision"):
		return CategoryProvision
	case strings.Contains(t, "invoice"):
		return CategoryInvoice
	case strings.Contains(t, "cash"), strings.Contains(t, "receipt"), strings.Contains(t, "payment"):
		return CategoryCash
	case strings.Contains(t, "account"):
		return CategoryAccount
	}
	return CategoryOther
}

// SeverityFor derives a severity from the action.
func SeverityFor(action Action) Severity {
	switch Action(strings.ToUpper(string(action))) {
	case ActionDelete, ActionCancel, ActionReverse:
		return SeverityHigh
	case ActionPost, ActionUnpost, ActionAllocate, ActionActivate:
		return SeverityMedium
	}
	return SeverityLow
}

// ChangedFields lists keys whose values differ between old and new, sorted.
func ChangedFields(oldValues, newValues map[string]any) []string {
	keys := make(map[string]struct{}, len(oldValues)+len(newValues))
	for k := range oldValues {
		keys[k] = struct{}{}
	}
	for k := range newValues {
		keys[k] = struct{}{}
	}
	var changed []string
	for k := range keys {
		ov, oldOK := oldValues[k]
		nv, newOK := newValues[k]
		if oldOK != newOK || !sameValue(ov, nv) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// sameValue compares through fmt so decimals and numbers of different
// widths that print alike are equal.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

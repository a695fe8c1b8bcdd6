package shared

import "fmt"

// FinanceLockKey builds redis keys for period critical sections.
func FinanceLockKey(periodID int64) string {
	return fmt.Sprintf("finance:period:%d:lock", periodID)
}

// RebuildLockKey guards a company wide balance rebuild.
func RebuildLockKey(companyID int64) string {
	return fmt.Sprintf("finance:company:%d:rebuild", companyID)
}

// LedgerScope is the cache invalidation scope of a company's ledger reports.
func LedgerScope(companyID int64) string {
	return fmt.Sprintf("company:%d", companyID)
}

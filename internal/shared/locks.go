package shared

import "fmt"

// StockLockKey builds redis keys for stock allocation critical sections.
func StockLockKey(tenantID, itemID, siteID int64) string {
	return fmt.Sprintf("stock:%d:item:%d:site:%d:lock", tenantID, itemID, siteID)
}

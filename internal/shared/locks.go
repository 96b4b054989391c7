package shared

import "fmt"

// ProductionLockKey builds redis keys guarding production order creation.
func ProductionLockKey(quotationID int64) string {
	return fmt.Sprintf("production:quotation:%d:lock", quotationID)
}

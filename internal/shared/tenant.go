package shared

import "fmt"

// TenantContext scopes every core call to one tenant and names the acting user for audit.
type TenantContext struct {
	TenantID int64
	ActorID  int64
}

// Validate rejects a missing tenant.
func (tc TenantContext) Validate() error {
	if tc.TenantID <= 0 {
		return Invalid("tenant_id", "must be positive")
	}
	return nil
}

func (tc TenantContext) String() string {
	return fmt.Sprintf("tenant:%d", tc.TenantID)
}

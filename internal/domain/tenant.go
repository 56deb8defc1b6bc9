package domain

// TenantStatus is the lifecycle state of a tenant row.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusCancelled TenantStatus = "cancelled"
)

// Tenant is a logically isolated customer of the platform. Rows are
// provisioned by an external collaborator; the core only reads them to
// resolve inbound requests to a tenant id and to build namespaced keys.
type Tenant struct {
	ID     int64
	Label  string
	Domain string
	Status TenantStatus
}

func (t Tenant) Active() bool {
	return t.Status == TenantStatusActive || t.Status == ""
}

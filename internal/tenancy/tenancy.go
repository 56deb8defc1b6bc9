// Package tenancy resolves inbound webhook requests to a tenant and
// derives the namespaced keys every downstream component (cache, rate
// limiter, circuit breaker, queue) uses to keep per-tenant state apart.
package tenancy

import (
	"fmt"
	"strings"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// Context carries the resolved tenant identity through a single request
// or job's lifetime.
type Context struct {
	CompanyID int64
	Label     string
}

// FromTenant builds a Context from a resolved domain.Tenant.
func FromTenant(tenant domain.Tenant) Context {
	return Context{CompanyID: tenant.ID, Label: tenant.Label}
}

// NamespacedKey joins the tenant's company id with the given parts into a
// single Redis key, e.g. "company:42:rl:ip:203.0.113.7".
func (c Context) NamespacedKey(parts ...string) string {
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, "company", fmt.Sprintf("%d", c.CompanyID))
	segments = append(segments, parts...)
	return strings.Join(segments, ":")
}

// QueueName derives the per-tenant stream name from the configured
// prefix, e.g. "wa:company_42".
func (c Context) QueueName(prefix string) string {
	return fmt.Sprintf("%s:company_%d", prefix, c.CompanyID)
}

// NormalizeDomain lowercases a host value and strips any scheme prefix
// and path suffix, so "https://Acme.example.com/webhook" and
// "acme.example.com" resolve to the same tenant lookup key.
func NormalizeDomain(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if idx := strings.Index(domain, "/"); idx >= 0 {
		domain = domain[:idx]
	}
	return domain
}

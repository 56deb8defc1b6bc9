package domain

// CustomerContext is the long-lived customer profile refreshed by the
// worker after every successful reply and by the external retraining
// job that mines closed conversations for topics and preferences.
type CustomerContext struct {
	ID              int64
	TenantID        int64
	Number          string
	FrequentTopics  []string
	ProductMentions []string
	Preferences     map[string]any
	Embedding       []float64
	LastSubject     string
}

// DefaultCustomerContext returns the zero-value profile used when none
// exists yet for a (tenant, number) pair.
func DefaultCustomerContext(tenantID int64, number string) CustomerContext {
	return CustomerContext{
		TenantID:        tenantID,
		Number:          number,
		FrequentTopics:  []string{},
		ProductMentions: []string{},
		Preferences:     map[string]any{},
	}
}

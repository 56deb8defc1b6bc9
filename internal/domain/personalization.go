package domain

// PersonalizationConfig is the exactly-one-per-tenant tone/behavior config.
type PersonalizationConfig struct {
	ID             int64
	TenantID       int64
	ToneOfVoice    string
	MessageLimit   int
	OpeningPhrases []string
	AIEnabled      bool
	Formality      int
	Empathy        int
	AdaptiveHumor  bool
}

// DefaultPersonalizationConfig mirrors the original system's defaults,
// applied when a tenant has no row yet.
func DefaultPersonalizationConfig(tenantID int64, defaultMessageLimit int) PersonalizationConfig {
	return PersonalizationConfig{
		TenantID:       tenantID,
		ToneOfVoice:    "amigavel",
		MessageLimit:   defaultMessageLimit,
		OpeningPhrases: []string{},
		AIEnabled:      true,
		Formality:      50,
		Empathy:        70,
		AdaptiveHumor:  true,
	}
}

package contextengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

const (
	profileCacheTTL       = 10 * time.Minute
	personalizationCacheTTL = 5 * time.Minute
)

// loadProfile returns the customer's profile, preferring the cache and
// falling back to the repository (creating a default row there on first
// contact).
func (e *Engine) loadProfile(ctx context.Context, tenant tenancy.Context, number string) (domain.CustomerContext, error) {
	key := tenant.NamespacedKey("profile", number)

	if raw, hit, err := e.cache.Get(ctx, key); err == nil && hit {
		var profile domain.CustomerContext
		if err := json.Unmarshal(raw, &profile); err == nil {
			return profile, nil
		}
	}

	profile, err := e.customerContexts.GetOrCreate(ctx, tenant.CompanyID, number)
	if err != nil {
		return domain.CustomerContext{}, err
	}
	e.storeProfile(ctx, tenant, *profile)
	return *profile, nil
}

func (e *Engine) storeProfile(ctx context.Context, tenant tenancy.Context, profile domain.CustomerContext) {
	key := tenant.NamespacedKey("profile", profile.Number)
	if encoded, err := json.Marshal(profile); err == nil {
		_ = e.cache.Set(ctx, key, encoded, profileCacheTTL)
	}
}

// UpdateProfileSnapshot persists profile and refreshes its cache entry,
// invalidating first so a concurrent reader never observes a stale
// cached copy alongside a newer database row.
func (e *Engine) UpdateProfileSnapshot(ctx context.Context, tenant tenancy.Context, profile domain.CustomerContext) error {
	key := tenant.NamespacedKey("profile", profile.Number)
	_ = e.cache.Invalidate(ctx, key)

	if err := e.customerContexts.Save(ctx, profile); err != nil {
		return err
	}
	e.storeProfile(ctx, tenant, profile)
	return nil
}

// loadPersonalizationConfig returns the tenant's personalization config,
// preferring the cache and falling back to the repository.
func (e *Engine) loadPersonalizationConfig(ctx context.Context, tenant tenancy.Context) (domain.PersonalizationConfig, error) {
	key := tenant.NamespacedKey("personalization", "config")

	if raw, hit, err := e.cache.Get(ctx, key); err == nil && hit {
		var config domain.PersonalizationConfig
		if err := json.Unmarshal(raw, &config); err == nil {
			return config, nil
		}
	}

	config, err := e.personalizationConfigs.GetOrCreate(ctx, tenant.CompanyID, e.defaultMessageLimit)
	if err != nil {
		return domain.PersonalizationConfig{}, err
	}

	if encoded, err := json.Marshal(config); err == nil {
		_ = e.cache.Set(ctx, key, encoded, personalizationCacheTTL)
	}
	return *config, nil
}

// InvalidatePersonalizationConfig evicts the cached config, e.g. after an
// operator edits it through an admin surface.
func (e *Engine) InvalidatePersonalizationConfig(ctx context.Context, tenant tenancy.Context) error {
	key := tenant.NamespacedKey("personalization", "config")
	return e.cache.Invalidate(ctx, key)
}

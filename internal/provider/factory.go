package provider

import (
	"fmt"

	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/models"
)

// NewAdapter builds the adapter for a provider config.
func NewAdapter(cfg *models.ProviderConfig, store *cache.Store) (Adapter, error) {
	switch cfg.Kind {
	case models.ProviderAGTV:
		return NewAGTV(cfg, store), nil
	case models.ProviderXtream:
		return NewXtream(cfg, store), nil
	}
	return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
}

// Close shuts down an adapter's background resources when it has any.
func Close(a Adapter) {
	if c, ok := a.(interface{ Close() }); ok {
		c.Close()
	}
}

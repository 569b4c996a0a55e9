// Package app holds the process-wide context: the wired collaborators plus
// the provider action queue the control plane writes and the cleanup job
// drains.
package app

import (
	"database/sql"
	"sync"

	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/config"
	"github.com/mfleet/streamvault/internal/mdb"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/progress"
	"github.com/mfleet/streamvault/internal/provider"
	"github.com/mfleet/streamvault/internal/repository"
)

// Context carries the constructed collaborators. All fields are set once at
// startup; only the action queue and adapter registry mutate afterwards.
type Context struct {
	Config   *config.Config
	DB       *sql.DB
	Catalog  *repository.Catalog
	Cache    *cache.Store
	MDB      *mdb.Client
	Progress *progress.Coordinator

	mu       sync.Mutex
	actions  map[string][]models.ProviderAction
	adapters map[string]provider.Adapter
}

func New(cfg *config.Config, db *sql.DB, catalog *repository.Catalog,
	store *cache.Store, meta *mdb.Client, coord *progress.Coordinator) *Context {
	return &Context{
		Config:   cfg,
		DB:       db,
		Catalog:  catalog,
		Cache:    store,
		MDB:      meta,
		Progress: coord,
		actions:  make(map[string][]models.ProviderAction),
		adapters: make(map[string]provider.Adapter),
	}
}

// EnqueueProviderAction appends an action to the provider's queue.
// Consecutive duplicates collapse.
func (c *Context) EnqueueProviderAction(providerID string, action models.ProviderAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.actions[providerID]
	if n := len(q); n > 0 && q[n-1] == action {
		return
	}
	c.actions[providerID] = append(q, action)
}

// GetAndClearProviderActionQueue atomically drains every queued action, so a
// crash mid-drain never processes an action twice.
func (c *Context) GetAndClearProviderActionQueue() map[string][]models.ProviderAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.actions
	c.actions = make(map[string][]models.ProviderAction)
	return out
}

// SetAdapter registers the live adapter for a provider.
func (c *Context) SetAdapter(providerID string, a provider.Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[providerID] = a
}

// Adapter returns the live adapter for a provider, or nil.
func (c *Context) Adapter(providerID string) provider.Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapters[providerID]
}

// RemoveAdapter drops the adapter (provider deleted or disabled).
func (c *Context) RemoveAdapter(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.adapters, providerID)
}

// AdapterIDs lists the registered providers.
func (c *Context) AdapterIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.adapters))
	for id := range c.adapters {
		out = append(out, id)
	}
	return out
}

package repository

import (
	"database/sql"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

// Catalog bundles every repository over one database handle and flattens the
// operations the ingestion and merge layers consume, so they can depend on
// small interfaces instead of concrete repositories.
type Catalog struct {
	ProviderTitles *ProviderTitleRepository
	Titles         *TitleRepository
	Streams        *StreamRepository
	Categories     *CategoryRepository
	Providers      *ProviderRepository
	Jobs           *JobRepository
	Settings       *SettingsRepository
	Policies       *PolicyRepository
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		ProviderTitles: NewProviderTitleRepository(db),
		Titles:         NewTitleRepository(db),
		Streams:        NewStreamRepository(db),
		Categories:     NewCategoryRepository(db),
		Providers:      NewProviderRepository(db),
		Jobs:           NewJobRepository(db),
		Settings:       NewSettingsRepository(db),
		Policies:       NewPolicyRepository(db),
	}
}

// ──────────────────── Flattened operations ────────────────────

func (c *Catalog) GetProviderTitles(providerID string, f TitleFilter) ([]*models.ProviderTitle, error) {
	return c.ProviderTitles.GetProviderTitles(providerID, f)
}

func (c *Catalog) SaveProviderTitles(providerID string, titles []*models.ProviderTitle) (SaveResult, error) {
	return c.ProviderTitles.SaveProviderTitles(providerID, titles)
}

func (c *Catalog) SaveAllIgnoredTitles(providerID string, byReason map[string][]string) error {
	return c.ProviderTitles.SaveAllIgnoredTitles(providerID, byReason)
}

func (c *Catalog) DeleteProviderTitles(providerID string) (int64, error) {
	return c.ProviderTitles.DeleteProviderTitles(providerID)
}

func (c *Catalog) GetMainTitles(f MainTitleFilter) ([]*models.CanonicalTitle, error) {
	return c.Titles.GetMainTitles(f)
}

func (c *Catalog) SaveMainTitles(titles []*models.CanonicalTitle) error {
	return c.Titles.SaveMainTitles(titles)
}

func (c *Catalog) DeleteTitlesByKeys(keys []string) (int64, error) {
	return c.Titles.DeleteTitlesByKeys(keys)
}

func (c *Catalog) RemoveProviderFromTitles(providerID string, lastUpdated time.Time) (RemovalResult, error) {
	return c.Titles.RemoveProviderFromTitles(providerID, lastUpdated)
}

func (c *Catalog) SaveTitleStreams(docs []*models.StreamDocument) error {
	return c.Streams.SaveTitleStreams(docs)
}

func (c *Catalog) DeleteProviderTitleStreams(providerID string) (int64, error) {
	return c.Streams.DeleteProviderTitleStreams(providerID)
}

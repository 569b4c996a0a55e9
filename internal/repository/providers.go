package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

type ProviderRepository struct {
	db *sql.DB
}

func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `id, type, api_url, username, password, enabled, deleted,
	priority, api_rate, cleanup_rules, enabled_categories, last_updated`

func scanProvider(rows *sql.Rows) (*models.ProviderConfig, error) {
	p := &models.ProviderConfig{}
	var rate, rules, cats []byte
	if err := rows.Scan(&p.ID, &p.Kind, &p.APIURL, &p.Username, &p.Password,
		&p.Enabled, &p.Deleted, &p.Priority, &rate, &rules, &cats, &p.LastUpdated); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(rate, &p.APIRate); err != nil {
		return nil, fmt.Errorf("provider %s api_rate: %w", p.ID, err)
	}
	if err := unmarshalJSON(rules, &p.CleanupRules); err != nil {
		return nil, fmt.Errorf("provider %s cleanup_rules: %w", p.ID, err)
	}
	if err := unmarshalJSON(cats, &p.EnabledCategories); err != nil {
		return nil, fmt.Errorf("provider %s enabled_categories: %w", p.ID, err)
	}
	return p, nil
}

// GetProviders returns non-deleted providers ordered by priority. With
// enabledOnly, disabled providers are filtered out too.
func (r *ProviderRepository) GetProviders(enabledOnly bool) ([]*models.ProviderConfig, error) {
	query := `SELECT ` + providerColumns + ` FROM iptv_providers WHERE deleted = FALSE`
	if enabledOnly {
		query += ` AND enabled = TRUE`
	}
	query += ` ORDER BY priority, id`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProviders(rows)
}

// GetProvider reads one provider config by id, deleted or not.
func (r *ProviderRepository) GetProvider(id string) (*models.ProviderConfig, error) {
	rows, err := r.db.Query(`SELECT `+providerColumns+` FROM iptv_providers WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	providers, err := collectProviders(rows)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, sql.ErrNoRows
	}
	return providers[0], nil
}

// GetProvidersChangedSince returns providers (including deleted ones) whose
// config changed after the watermark. The config monitor uses this to detect
// edits made by the control plane.
func (r *ProviderRepository) GetProvidersChangedSince(since time.Time) ([]*models.ProviderConfig, error) {
	rows, err := r.db.Query(
		`SELECT `+providerColumns+` FROM iptv_providers WHERE last_updated > $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProviders(rows)
}

func collectProviders(rows *sql.Rows) ([]*models.ProviderConfig, error) {
	var out []*models.ProviderConfig
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package repository

import (
	"database/sql"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

type PolicyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// GetAll returns the authoritative cache-policy table. The in-memory store
// in internal/cache is only a cache of these rows.
func (r *PolicyRepository) GetAll() (map[string]*float64, error) {
	rows, err := r.db.Query(`SELECT key, ttl_hours FROM cache_policy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := make(map[string]*float64)
	for rows.Next() {
		var key string
		var ttl sql.NullFloat64
		if err := rows.Scan(&key, &ttl); err != nil {
			return nil, err
		}
		if ttl.Valid {
			v := ttl.Float64
			policies[key] = &v
		} else {
			policies[key] = nil
		}
	}
	return policies, rows.Err()
}

// ChangedSince reports whether any policy row changed after the watermark.
func (r *PolicyRepository) ChangedSince(since time.Time) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT count(*) FROM cache_policy WHERE last_updated > $1`, since).Scan(&n)
	return n > 0, err
}

// Upsert writes one policy row.
func (r *PolicyRepository) Upsert(p *models.CachePolicy) error {
	var ttl interface{}
	if p.TTLHours != nil {
		ttl = *p.TTLHours
	}
	_, err := r.db.Exec(`INSERT INTO cache_policy (key, ttl_hours, provider_id, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET
		 ttl_hours = EXCLUDED.ttl_hours, provider_id = EXCLUDED.provider_id, last_updated = now()`,
		p.Key, ttl, p.ProviderID)
	return err
}

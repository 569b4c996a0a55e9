package repository

import (
	"database/sql"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves a setting value by key. Returns empty string if not found.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Set upserts a setting key-value pair.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(`INSERT INTO settings (key, value, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, last_updated = now()`, key, value)
	return err
}

// GetChangedSince returns settings modified after the watermark; the
// settings monitor applies them incrementally.
func (r *SettingsRepository) GetChangedSince(since time.Time) ([]*models.Setting, error) {
	rows, err := r.db.Query(
		`SELECT key, value, last_updated FROM settings WHERE last_updated > $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Setting
	for rows.Next() {
		s := &models.Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

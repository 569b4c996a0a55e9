package repository

import (
	"database/sql"
	"fmt"

	"github.com/mfleet/streamvault/internal/models"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// SaveCategories upserts the provider's categories. Enabled flags of
// existing rows are preserved: the control plane owns them.
func (r *CategoryRepository) SaveCategories(providerID string, categories []*models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO provider_categories
		(provider_id, category_key, type, name, enabled)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (provider_id, category_key) DO UPDATE SET
		 name = EXCLUDED.name, type = EXCLUDED.type`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range categories {
		if _, err := stmt.Exec(providerID, c.CategoryKey, c.Type, c.Name, c.Enabled); err != nil {
			return fmt.Errorf("save category %s: %w", c.CategoryKey, err)
		}
	}
	return tx.Commit()
}

// GetCategories returns the provider's categories, optionally by type.
func (r *CategoryRepository) GetCategories(providerID string, t models.MediaType) ([]*models.Category, error) {
	query := `SELECT provider_id, category_key, type, name, enabled
		FROM provider_categories WHERE provider_id = $1`
	args := []interface{}{providerID}
	if t != "" {
		args = append(args, t)
		query += ` AND type = $2`
	}
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Category
	for rows.Next() {
		c := &models.Category{}
		if err := rows.Scan(&c.ProviderID, &c.CategoryKey, &c.Type, &c.Name, &c.Enabled); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategories removes all of the provider's categories.
func (r *CategoryRepository) DeleteCategories(providerID string) error {
	_, err := r.db.Exec(`DELETE FROM provider_categories WHERE provider_id = $1`, providerID)
	return err
}

package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mfleet/streamvault/internal/models"
)

type ProviderTitleRepository struct {
	db *sql.DB
}

func NewProviderTitleRepository(db *sql.DB) *ProviderTitleRepository {
	return &ProviderTitleRepository{db: db}
}

// TitleFilter narrows GetProviderTitles. Zero values mean "no constraint".
type TitleFilter struct {
	Since   time.Time
	Type    models.MediaType
	Ignored *bool
}

const providerTitleColumns = `provider_id, title_id, title_key, type, title, tmdb_id,
	category_id, release_date, streams, ignored, ignored_reason, created_at, last_updated`

func scanProviderTitle(rows *sql.Rows) (*models.ProviderTitle, error) {
	t := &models.ProviderTitle{}
	var streams []byte
	if err := rows.Scan(&t.ProviderID, &t.TitleID, &t.TitleKey, &t.Type, &t.Title,
		&t.TMDBID, &t.CategoryID, &t.ReleaseDate, &streams, &t.Ignored,
		&t.IgnoredReason, &t.CreatedAt, &t.LastUpdated); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(streams, &t.Streams); err != nil {
		return nil, fmt.Errorf("provider title %s streams: %w", t.TitleKey, err)
	}
	return t, nil
}

// GetProviderTitles returns the provider's titles under the filter,
// including ignored entries unless the filter excludes them.
func (r *ProviderTitleRepository) GetProviderTitles(providerID string, f TitleFilter) ([]*models.ProviderTitle, error) {
	query := `SELECT ` + providerTitleColumns + ` FROM provider_titles WHERE provider_id = $1`
	args := []interface{}{providerID}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND last_updated > $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.Ignored != nil {
		args = append(args, *f.Ignored)
		query += fmt.Sprintf(" AND ignored = $%d", len(args))
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []*models.ProviderTitle
	for rows.Next() {
		t, err := scanProviderTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// SaveResult reports the insert/update split of a bulk save.
type SaveResult struct {
	Inserted int
	Updated  int
}

// SaveProviderTitles bulk-upserts with a two-phase write: an existence probe
// over (provider_id, title_key) in batches of batchSize, then inserts for
// absent keys and updates for present ones. Present rows are always
// rewritten; the historical "skip when tmdb_id unchanged" shortcut dropped
// stream and date changes and is not reproduced here.
func (r *ProviderTitleRepository) SaveProviderTitles(providerID string, titles []*models.ProviderTitle) (SaveResult, error) {
	var res SaveResult
	if len(titles) == 0 {
		return res, nil
	}

	keys := make([]string, 0, len(titles))
	for _, t := range titles {
		keys = append(keys, t.TitleKey)
	}
	existing := make(map[string]bool, len(keys))
	for _, chunk := range chunkStrings(keys) {
		rows, err := r.db.Query(
			`SELECT title_key FROM provider_titles WHERE provider_id = $1 AND title_key = ANY($2)`,
			providerID, pq.Array(chunk))
		if err != nil {
			return res, fmt.Errorf("existence probe: %w", err)
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return res, err
			}
			existing[k] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return res, err
		}
		rows.Close()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO provider_titles
		(provider_id, title_id, title_key, type, title, tmdb_id, category_id,
		 release_date, streams, ignored, ignored_reason, created_at, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())`)
	if err != nil {
		return res, err
	}
	defer insert.Close()

	update, err := tx.Prepare(`UPDATE provider_titles SET
		title_id=$3, type=$4, title=$5, tmdb_id=$6, category_id=$7,
		release_date=$8, streams=$9, ignored=$10, ignored_reason=$11, last_updated=now()
		WHERE provider_id=$1 AND title_key=$2`)
	if err != nil {
		return res, err
	}
	defer update.Close()

	for _, t := range titles {
		if existing[t.TitleKey] {
			_, err = update.Exec(providerID, t.TitleKey, t.TitleID, t.Type, t.Title,
				t.TMDBID, t.CategoryID, t.ReleaseDate, mustJSON(t.Streams), t.Ignored, t.IgnoredReason)
			if err != nil {
				return res, fmt.Errorf("update %s: %w", t.TitleKey, err)
			}
			res.Updated++
		} else {
			_, err = insert.Exec(providerID, t.TitleID, t.TitleKey, t.Type, t.Title,
				t.TMDBID, t.CategoryID, t.ReleaseDate, mustJSON(t.Streams), t.Ignored, t.IgnoredReason)
			if err != nil {
				return res, fmt.Errorf("insert %s: %w", t.TitleKey, err)
			}
			res.Inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// SaveAllIgnoredTitles applies accumulated ignore updates: one update per
// reason group, title keys chunked at batchSize per statement.
func (r *ProviderTitleRepository) SaveAllIgnoredTitles(providerID string, byReason map[string][]string) error {
	for reason, keys := range byReason {
		for _, chunk := range chunkStrings(keys) {
			_, err := r.db.Exec(
				`UPDATE provider_titles SET ignored = TRUE, ignored_reason = $3, last_updated = now()
				 WHERE provider_id = $1 AND title_key = ANY($2)`,
				providerID, pq.Array(chunk), reason)
			if err != nil {
				return fmt.Errorf("ignore group %q: %w", reason, err)
			}
		}
	}
	return nil
}

// DeleteProviderTitles removes every title of the provider.
func (r *ProviderTitleRepository) DeleteProviderTitles(providerID string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM provider_titles WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

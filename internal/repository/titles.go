package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mfleet/streamvault/internal/models"
)

type TitleRepository struct {
	db *sql.DB
}

func NewTitleRepository(db *sql.DB) *TitleRepository {
	return &TitleRepository{db: db}
}

const titleColumns = `title_key, title_id, type, title, release_date, vote_average,
	overview, poster_path, genres, streams, similar, created_at, last_updated`

func scanTitle(rows *sql.Rows) (*models.CanonicalTitle, error) {
	t := &models.CanonicalTitle{}
	var genres, streams, similar []byte
	if err := rows.Scan(&t.TitleKey, &t.TitleID, &t.Type, &t.Title, &t.ReleaseDate,
		&t.VoteAverage, &t.Overview, &t.PosterPath, &genres, &streams, &similar,
		&t.CreatedAt, &t.LastUpdated); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(genres, &t.Genres); err != nil {
		return nil, fmt.Errorf("title %s genres: %w", t.TitleKey, err)
	}
	if err := unmarshalJSON(streams, &t.Streams); err != nil {
		return nil, fmt.Errorf("title %s streams: %w", t.TitleKey, err)
	}
	if len(similar) > 0 && string(similar) != "null" {
		// Distinguish "never enriched" (NULL) from "enriched, empty".
		t.Similar = []string{}
		if err := unmarshalJSON(similar, &t.Similar); err != nil {
			return nil, fmt.Errorf("title %s similar: %w", t.TitleKey, err)
		}
	}
	return t, nil
}

// MainTitleFilter narrows GetMainTitles.
type MainTitleFilter struct {
	Type models.MediaType
	// NeverEnriched selects titles eligible for similar-title enrichment:
	// created_at == last_updated and similar IS NULL.
	NeverEnriched bool
}

func (r *TitleRepository) GetMainTitles(f MainTitleFilter) ([]*models.CanonicalTitle, error) {
	query := `SELECT ` + titleColumns + ` FROM titles WHERE 1=1`
	var args []interface{}
	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.NeverEnriched {
		query += " AND created_at = last_updated AND similar IS NULL"
	}
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTitles(rows)
}

// GetMainTitlesByKeys reads canonical titles by title_key, probing in chunks.
func (r *TitleRepository) GetMainTitlesByKeys(keys []string) ([]*models.CanonicalTitle, error) {
	var titles []*models.CanonicalTitle
	for _, chunk := range chunkStrings(keys) {
		rows, err := r.db.Query(
			`SELECT `+titleColumns+` FROM titles WHERE title_key = ANY($1)`, pq.Array(chunk))
		if err != nil {
			return nil, err
		}
		batch, err := collectTitles(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		titles = append(titles, batch...)
	}
	return titles, nil
}

func collectTitles(rows *sql.Rows) ([]*models.CanonicalTitle, error) {
	var titles []*models.CanonicalTitle
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// SaveMainTitles bulk-upserts canonical titles keyed by title_key. CreatedAt
// and LastUpdated come from the caller: the merge engine preserves createdAt
// across regenerations and stamps lastUpdated itself (I4).
func (r *TitleRepository) SaveMainTitles(titles []*models.CanonicalTitle) error {
	if len(titles) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO titles
		(title_key, title_id, type, title, release_date, vote_average, overview,
		 poster_path, genres, streams, similar, created_at, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (title_key) DO UPDATE SET
		 title=EXCLUDED.title, release_date=EXCLUDED.release_date,
		 vote_average=EXCLUDED.vote_average, overview=EXCLUDED.overview,
		 poster_path=EXCLUDED.poster_path, genres=EXCLUDED.genres,
		 streams=EXCLUDED.streams, similar=EXCLUDED.similar,
		 last_updated=EXCLUDED.last_updated`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range titles {
		var similar interface{}
		if t.Similar != nil {
			similar = mustJSON(t.Similar)
		}
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = t.LastUpdated
		}
		if _, err := stmt.Exec(t.TitleKey, t.TitleID, t.Type, t.Title, t.ReleaseDate,
			t.VoteAverage, t.Overview, t.PosterPath, mustJSON(t.Genres),
			mustJSON(t.Streams), similar, createdAt, t.LastUpdated); err != nil {
			return fmt.Errorf("save title %s: %w", t.TitleKey, err)
		}
	}
	return tx.Commit()
}

// DeleteTitlesByKeys removes canonical titles whose streams have emptied out.
func (r *TitleRepository) DeleteTitlesByKeys(keys []string) (int64, error) {
	var total int64
	for _, chunk := range chunkStrings(keys) {
		res, err := r.db.Exec(`DELETE FROM titles WHERE title_key = ANY($1)`, pq.Array(chunk))
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// RemovalResult reports what RemoveProviderFromTitles changed.
type RemovalResult struct {
	TitlesUpdated  int
	TitlesDeleted  int
	StreamsRemoved int
}

// RemoveProviderFromTitles strips providerID from every canonical title it
// contributes to: read the provider's stream documents for the affected
// title keys, drop the provider from each stream's sources (removing stream
// entries that empty out, preserving sibling episode metadata), bulk-update
// only the modified titles and delete titles left with no streams at all.
func (r *TitleRepository) RemoveProviderFromTitles(providerID string, lastUpdated time.Time) (RemovalResult, error) {
	var res RemovalResult

	rows, err := r.db.Query(
		`SELECT DISTINCT title_key FROM title_streams WHERE provider_id = $1`, providerID)
	if err != nil {
		return res, err
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return res, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, err
	}
	rows.Close()
	if len(keys) == 0 {
		return res, nil
	}

	titles, err := r.GetMainTitlesByKeys(keys)
	if err != nil {
		return res, err
	}

	var modified []*models.CanonicalTitle
	var emptied []string
	for _, t := range titles {
		changed, removed := StripProviderSources(t, providerID)
		if !changed {
			continue
		}
		res.StreamsRemoved += removed
		if len(t.Streams) == 0 {
			emptied = append(emptied, t.TitleKey)
			continue
		}
		t.LastUpdated = lastUpdated
		modified = append(modified, t)
	}

	if err := r.SaveMainTitles(modified); err != nil {
		return res, err
	}
	res.TitlesUpdated = len(modified)

	deleted, err := r.DeleteTitlesByKeys(emptied)
	if err != nil {
		return res, err
	}
	res.TitlesDeleted = int(deleted)
	return res, nil
}

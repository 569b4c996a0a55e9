package repository

import (
	"database/sql"
	"fmt"

	"github.com/mfleet/streamvault/internal/models"
)

type StreamRepository struct {
	db *sql.DB
}

func NewStreamRepository(db *sql.DB) *StreamRepository {
	return &StreamRepository{db: db}
}

// SaveTitleStreams bulk-upserts stream documents keyed by
// (title_key, stream_id, provider_id), in transactions of batchSize.
func (r *StreamRepository) SaveTitleStreams(docs []*models.StreamDocument) error {
	for len(docs) > 0 {
		n := len(docs)
		if n > batchSize {
			n = batchSize
		}
		if err := r.saveBatch(docs[:n]); err != nil {
			return err
		}
		docs = docs[n:]
	}
	return nil
}

func (r *StreamRepository) saveBatch(docs []*models.StreamDocument) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO title_streams
		(title_key, stream_id, provider_id, tvg_id, tvg_name, tvg_type, tvg_logo,
		 group_title, proxy_url, proxy_path, season_num, episode_num, created_at, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
		ON CONFLICT (title_key, stream_id, provider_id) DO UPDATE SET
		 tvg_id=EXCLUDED.tvg_id, tvg_name=EXCLUDED.tvg_name, tvg_type=EXCLUDED.tvg_type,
		 tvg_logo=EXCLUDED.tvg_logo, group_title=EXCLUDED.group_title,
		 proxy_url=EXCLUDED.proxy_url, proxy_path=EXCLUDED.proxy_path,
		 season_num=EXCLUDED.season_num, episode_num=EXCLUDED.episode_num,
		 last_updated=now()`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.Exec(d.TitleKey, d.StreamID, d.ProviderID, d.TvgID, d.TvgName,
			d.TvgType, d.TvgLogo, d.GroupTitle, d.ProxyURL, d.ProxyPath,
			d.SeasonNum, d.EpisodeNum); err != nil {
			return fmt.Errorf("save stream %s/%s/%s: %w", d.TitleKey, d.StreamID, d.ProviderID, err)
		}
	}
	return tx.Commit()
}

// GetStreamsByProvider reads every stream document of a provider.
func (r *StreamRepository) GetStreamsByProvider(providerID string) ([]*models.StreamDocument, error) {
	rows, err := r.db.Query(`SELECT title_key, stream_id, provider_id, tvg_id, tvg_name,
		tvg_type, tvg_logo, group_title, proxy_url, proxy_path, season_num, episode_num,
		created_at, last_updated
		FROM title_streams WHERE provider_id = $1`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.StreamDocument
	for rows.Next() {
		d := &models.StreamDocument{}
		if err := rows.Scan(&d.TitleKey, &d.StreamID, &d.ProviderID, &d.TvgID, &d.TvgName,
			&d.TvgType, &d.TvgLogo, &d.GroupTitle, &d.ProxyURL, &d.ProxyPath,
			&d.SeasonNum, &d.EpisodeNum, &d.CreatedAt, &d.LastUpdated); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteProviderTitleStreams removes all of the provider's stream documents.
func (r *StreamRepository) DeleteProviderTitleStreams(providerID string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM title_streams WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

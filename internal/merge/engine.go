// Package merge builds the canonical catalog from the per-provider records:
// grouping by canonical id, metadata materialization, source inversion, and
// the downstream stream documents.
package merge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mfleet/streamvault/internal/mdb"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/repository"
)

// Store is the slice of the catalog the engine reads and writes.
type Store interface {
	GetProviderTitles(providerID string, f repository.TitleFilter) ([]*models.ProviderTitle, error)
	GetMainTitles(f repository.MainTitleFilter) ([]*models.CanonicalTitle, error)
	SaveMainTitles(titles []*models.CanonicalTitle) error
	DeleteTitlesByKeys(keys []string) (int64, error)
	SaveTitleStreams(docs []*models.StreamDocument) error
}

// Metadata is the mdb.Client surface the engine needs.
type Metadata interface {
	GetDetails(ctx context.Context, t models.MediaType, id int) (*mdb.Details, error)
	GetSeason(ctx context.Context, tvID, season int) (*mdb.SeasonDetails, error)
	GetSimilar(ctx context.Context, t models.MediaType, id, page int) ([]mdb.SearchResult, error)
}

// Stats summarizes one merge run for the job result.
type Stats struct {
	Created    int
	Updated    int
	Unchanged  int
	Deleted    int
	StreamDocs int
}

type Engine struct {
	store Store
	meta  Metadata
}

func New(store Store, meta Metadata) *Engine {
	return &Engine{store: store, meta: meta}
}

// group is one canonical title's worth of provider records.
type group struct {
	tmdbID  int
	members []*models.ProviderTitle
}

// Run merges one media type across the given providers. Matched provider
// titles are grouped by canonical id; a group none of whose contributors
// changed since the stored record keeps it untouched, everything else is
// materialized from metadata. Canonical titles whose groups disappeared are
// deleted.
func (e *Engine) Run(ctx context.Context, t models.MediaType, providers []*models.ProviderConfig) (Stats, error) {
	var stats Stats

	priority := make(map[string]int, len(providers))
	for _, p := range providers {
		priority[p.ID] = p.Priority
	}

	groups, err := e.collect(t, providers)
	if err != nil {
		return stats, err
	}

	existing, err := e.store.GetMainTitles(repository.MainTitleFilter{Type: t})
	if err != nil {
		return stats, fmt.Errorf("load canonical titles: %w", err)
	}
	existingByKey := make(map[string]*models.CanonicalTitle, len(existing))
	for _, ct := range existing {
		existingByKey[ct.TitleKey] = ct
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	var save []*models.CanonicalTitle
	var docs []*models.StreamDocument
	for _, key := range keys {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		g := groups[key]
		desired := invertSources(g.members, priority)

		ct := existingByKey[key]
		switch {
		case ct != nil && !newerThan(g.members, ct.LastUpdated):
			stats.Unchanged++
		default:
			rebuilt, err := e.materialize(ctx, t, key, g, desired, ct, now)
			if err != nil {
				log.Printf("[merge] %s: %v", key, err)
				continue
			}
			if ct == nil {
				stats.Created++
			} else {
				stats.Updated++
			}
			ct = rebuilt
			save = append(save, ct)
		}
		docs = append(docs, streamDocuments(ct, g.members)...)
	}

	if err := e.store.SaveMainTitles(save); err != nil {
		return stats, fmt.Errorf("save canonical titles: %w", err)
	}
	if err := e.store.SaveTitleStreams(docs); err != nil {
		return stats, fmt.Errorf("save stream documents: %w", err)
	}
	stats.StreamDocs = len(docs)

	var stale []string
	for key := range existingByKey {
		if _, ok := groups[key]; !ok {
			stale = append(stale, key)
		}
	}
	deleted, err := e.store.DeleteTitlesByKeys(stale)
	if err != nil {
		return stats, fmt.Errorf("delete stale titles: %w", err)
	}
	stats.Deleted = int(deleted)

	log.Printf("[merge] %s: %d created, %d updated, %d unchanged, %d deleted, %d stream docs",
		t, stats.Created, stats.Updated, stats.Unchanged, stats.Deleted, stats.StreamDocs)
	return stats, nil
}

// collect loads every matched, non-ignored provider title and groups by
// canonical key.
func (e *Engine) collect(t models.MediaType, providers []*models.ProviderConfig) (map[string]*group, error) {
	notIgnored := false
	groups := make(map[string]*group)
	for _, p := range providers {
		titles, err := e.store.GetProviderTitles(p.ID, repository.TitleFilter{Type: t, Ignored: &notIgnored})
		if err != nil {
			return nil, fmt.Errorf("load %s titles: %w", p.ID, err)
		}
		for _, pt := range titles {
			if pt.TMDBID == 0 {
				continue
			}
			key := models.TitleKeyInt(t, pt.TMDBID)
			g := groups[key]
			if g == nil {
				g = &group{tmdbID: pt.TMDBID}
				groups[key] = g
			}
			g.members = append(g.members, pt)
		}
	}
	return groups, nil
}

// invertSources flips the per-provider stream maps into stream key → ordered
// provider list, higher-priority providers first.
func invertSources(members []*models.ProviderTitle, priority map[string]int) map[string][]string {
	out := make(map[string][]string)
	for _, pt := range members {
		for sk := range pt.Streams {
			out[sk] = append(out[sk], pt.ProviderID)
		}
	}
	for sk, ids := range out {
		sort.Slice(ids, func(i, j int) bool {
			if priority[ids[i]] != priority[ids[j]] {
				return priority[ids[i]] < priority[ids[j]]
			}
			return ids[i] < ids[j]
		})
		out[sk] = ids
	}
	return out
}

// newerThan reports whether any contributing provider title was saved after
// the stored canonical record. The regeneration gate: nothing newer means no
// metadata calls and no rewrite, though stream documents still refresh so
// upstream URL changes reach the proxy layer.
func newerThan(members []*models.ProviderTitle, since time.Time) bool {
	for _, pt := range members {
		if pt.LastUpdated.After(since) {
			return true
		}
	}
	return false
}

// materialize builds one canonical title from metadata. prior carries the
// stored record (nil for new titles); its createdAt and similar list survive
// the rebuild, except that a never-enriched title stays flagged as such.
func (e *Engine) materialize(ctx context.Context, t models.MediaType, key string, g *group,
	desired map[string][]string, prior *models.CanonicalTitle, now time.Time) (*models.CanonicalTitle, error) {

	details, err := e.meta.GetDetails(ctx, t, g.tmdbID)
	if err != nil {
		return nil, fmt.Errorf("details %d: %w", g.tmdbID, err)
	}

	genres := make([]string, 0, len(details.Genres))
	for _, gn := range details.Genres {
		genres = append(genres, gn.Name)
	}

	ct := &models.CanonicalTitle{
		TitleID:     g.tmdbID,
		Type:        t,
		TitleKey:    key,
		Title:       details.DisplayTitle(),
		ReleaseDate: details.Released(),
		VoteAverage: details.VoteAverage,
		Overview:    details.Overview,
		PosterPath:  details.PosterPath,
		Genres:      genres,
		LastUpdated: now,
	}
	if prior != nil {
		ct.Similar = prior.Similar
		ct.CreatedAt = prior.CreatedAt
		if prior.Similar == nil {
			// Keep the never-enriched marker intact across rebuilds.
			ct.CreatedAt = now
		}
	}

	if t == models.MediaTypeMovies {
		ct.Streams = map[string]models.CanonicalStream{}
		for sk, sources := range desired {
			ct.Streams[sk] = models.CanonicalStream{Sources: sources}
		}
		return ct, nil
	}

	ct.Streams = e.episodeStreams(ctx, g.tmdbID, desired)
	return ct, nil
}

// episodeStreams fetches every season referenced by the desired keys in
// parallel and attaches episode metadata to each stream entry. Keys naming
// an episode the season does not carry are dropped; a failed season fetch
// degrades to bare source lists for its episodes instead.
func (e *Engine) episodeStreams(ctx context.Context, tvID int, desired map[string][]string) map[string]models.CanonicalStream {
	seasons := make(map[int]bool)
	for sk := range desired {
		if s, _, ok := models.ParseStreamKey(sk); ok {
			seasons[s] = true
		}
	}

	var mu sync.Mutex
	episodes := make(map[string]mdb.Episode)
	failed := make(map[int]bool)
	var wg sync.WaitGroup
	for season := range seasons {
		wg.Add(1)
		go func(season int) {
			defer wg.Done()
			sd, err := e.meta.GetSeason(ctx, tvID, season)
			if err != nil {
				log.Printf("[merge] season %d of %d: %v", season, tvID, err)
				mu.Lock()
				failed[season] = true
				mu.Unlock()
				return
			}
			mu.Lock()
			for _, ep := range sd.Episodes {
				episodes[models.StreamKey(season, ep.EpisodeNumber)] = ep
			}
			mu.Unlock()
		}(season)
	}
	wg.Wait()

	out := make(map[string]models.CanonicalStream, len(desired))
	for sk, sources := range desired {
		ep, known := episodes[sk]
		if !known {
			s, _, ok := models.ParseStreamKey(sk)
			if !ok || !failed[s] {
				continue
			}
		}
		cs := models.CanonicalStream{Sources: sources}
		if known {
			cs.AirDate = ep.AirDate
			cs.Name = ep.Name
			cs.Overview = ep.Overview
			cs.StillPath = ep.StillPath
		}
		out[sk] = cs
	}
	return out
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/ratelimit"
)

const (
	// agtvPageThreshold: pagination continues while a page carries at
	// least this many streams. The threshold is on stream count, not
	// title count; TV pages group many episodes per title.
	agtvPageThreshold = 5000

	// agtvBatchSize: AGTV listings carry everything inline (no extended
	// info call), so enrichment parallelism can run much wider.
	agtvBatchSize = 500
)

// AGTV ingests M3U8-style listings whose tvg-ids are IMDB ids, which gives
// the matcher its strong external-id path.
type AGTV struct {
	cfg     *models.ProviderConfig
	client  *upstreamClient
	limiter *ratelimit.Reservoir
}

func NewAGTV(cfg *models.ProviderConfig, store *cache.Store) *AGTV {
	store.Register(ProviderPolicies())
	limiter := ratelimit.New(cfg.APIRate.Concurrent, time.Duration(cfg.APIRate.DurationSeconds)*time.Second)
	return &AGTV{
		cfg:     cfg,
		client:  newUpstreamClient(limiter, store),
		limiter: limiter,
	}
}

func (a *AGTV) Config() *models.ProviderConfig   { return a.cfg }
func (a *AGTV) Limiter() *ratelimit.Reservoir    { return a.limiter }
func (a *AGTV) SupportsCategories() bool         { return false }
func (a *AGTV) BatchSize() int                   { return agtvBatchSize }
func (a *AGTV) Close()                           { a.limiter.Stop() }

// FetchCategories is empty: the AGTV listing has no category taxonomy.
func (a *AGTV) FetchCategories(ctx context.Context, t models.MediaType) ([]*models.Category, error) {
	return nil, nil
}

func (a *AGTV) listURL(t models.MediaType, page int) string {
	u := fmt.Sprintf("%s/api/list/%s/%s/m3u8/%s",
		strings.TrimSuffix(a.cfg.APIURL, "/"), a.cfg.Username, a.cfg.Password, t)
	if page > 0 {
		u = fmt.Sprintf("%s/%d", u, page)
	}
	return u
}

func (a *AGTV) FetchRawTitles(ctx context.Context, t models.MediaType) ([]*RawTitle, error) {
	if t == models.MediaTypeMovies {
		return a.fetchMovies(ctx)
	}
	return a.fetchTVShows(ctx)
}

func (a *AGTV) fetchMovies(ctx context.Context) ([]*RawTitle, error) {
	data, err := a.client.get(ctx, a.listURL(models.MediaTypeMovies, 0),
		[]string{a.cfg.ID, "metadata", "movies.m3u8"})
	if err != nil {
		return nil, err
	}
	var out []*RawTitle
	for _, e := range parseM3U(string(data)) {
		out = append(out, &RawTitle{
			TitleID:    e.TvgID,
			Title:      e.Name,
			Type:       models.MediaTypeMovies,
			Streams:    map[string]string{models.StreamKeyMain: e.URL},
			TvgID:      e.TvgID,
			TvgName:    e.TvgName,
			TvgType:    e.TvgType,
			GroupTitle: e.GroupTitle,
			Logo:       e.Logo,
		})
	}
	return out, nil
}

// fetchTVShows paginates the listing, grouping entries by tvg-id and keying
// each stream by the season/episode encoded in the URL path. Pagination
// continues while a page's stream count stays at the threshold; a 404 or an
// empty page ends it cleanly.
func (a *AGTV) fetchTVShows(ctx context.Context) ([]*RawTitle, error) {
	byID := make(map[string]*RawTitle)
	var order []string

	for page := 1; ; page++ {
		data, err := a.client.get(ctx, a.listURL(models.MediaTypeTVShows, page),
			[]string{a.cfg.ID, "metadata", fmt.Sprintf("tvshows-%d.m3u8", page)})
		if errors.Is(err, errNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tvshows page %d: %w", page, err)
		}
		entries := parseM3U(string(data))
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.TvgID == "" {
				continue
			}
			season, episode, ok := parseSeasonEpisode(e.URL)
			if !ok {
				continue
			}
			rt := byID[e.TvgID]
			if rt == nil {
				rt = &RawTitle{
					TitleID:    e.TvgID,
					Title:      baseShowName(e.Name),
					Type:       models.MediaTypeTVShows,
					Streams:    make(map[string]string),
					TvgID:      e.TvgID,
					TvgName:    e.TvgName,
					TvgType:    e.TvgType,
					GroupTitle: e.GroupTitle,
					Logo:       e.Logo,
				}
				byID[e.TvgID] = rt
				order = append(order, e.TvgID)
			}
			rt.Streams[models.StreamKey(season, episode)] = e.URL
		}
		if len(entries) < agtvPageThreshold {
			break
		}
	}

	out := make([]*RawTitle, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// FetchExtendedInfo is a no-op: the listing already carries every field.
func (a *AGTV) FetchExtendedInfo(ctx context.Context, raw *RawTitle) error {
	return nil
}

// ShouldSkip: movies are immutable once ingested; shows are re-enriched only
// when their stream-key set changed (the listing has no modified stamp).
func (a *AGTV) ShouldSkip(raw *RawTitle, existing *models.ProviderTitle) bool {
	if existing == nil || existing.Ignored {
		return false
	}
	if raw.Type == models.MediaTypeMovies {
		return true
	}
	return sameStreamKeys(raw.Streams, existing.Streams)
}

// parseSeasonEpisode reads the last two URL path segments as season and
// episode numbers, ignoring a file extension on the last one.
func parseSeasonEpisode(rawURL string) (season, episode int, ok bool) {
	path := rawURL
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 {
		return 0, 0, false
	}
	last := segs[len(segs)-1]
	if i := strings.LastIndex(last, "."); i >= 0 {
		last = last[:i]
	}
	episode, err := strconv.Atoi(last)
	if err != nil {
		return 0, 0, false
	}
	season, err = strconv.Atoi(segs[len(segs)-2])
	if err != nil {
		return 0, 0, false
	}
	return season, episode, true
}

// baseShowName drops a trailing " S01 E02"-style episode marker from the
// display name, keeping the show-level title.
func baseShowName(name string) string {
	if i := strings.Index(name, " S0"); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	if i := strings.Index(name, " S1"); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	return name
}

// sameStreamKeys compares two stream maps by key set only.
func sameStreamKeys(a map[string]string, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

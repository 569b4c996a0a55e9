package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/ratelimit"
)

// Xtream speaks the player_api.php dialect. Listings are cheap but carry no
// canonical ids; per-title info calls fill in tmdb ids, release dates and,
// for series, the episode map.
type Xtream struct {
	cfg     *models.ProviderConfig
	client  *upstreamClient
	limiter *ratelimit.Reservoir
}

func NewXtream(cfg *models.ProviderConfig, store *cache.Store) *Xtream {
	store.Register(ProviderPolicies())
	limiter := ratelimit.New(cfg.APIRate.Concurrent, time.Duration(cfg.APIRate.DurationSeconds)*time.Second)
	return &Xtream{
		cfg:     cfg,
		client:  newUpstreamClient(limiter, store),
		limiter: limiter,
	}
}

func (x *Xtream) Config() *models.ProviderConfig { return x.cfg }
func (x *Xtream) Limiter() *ratelimit.Reservoir  { return x.limiter }
func (x *Xtream) SupportsCategories() bool       { return true }
func (x *Xtream) BatchSize() int                 { return 0 }
func (x *Xtream) Close()                         { x.limiter.Stop() }

func (x *Xtream) apiURL(action string, extra url.Values) string {
	v := url.Values{}
	v.Set("username", x.cfg.Username)
	v.Set("password", x.cfg.Password)
	v.Set("action", action)
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return fmt.Sprintf("%s/player_api.php?%s", strings.TrimSuffix(x.cfg.APIURL, "/"), v.Encode())
}

// ──────────────────── Wire shapes ────────────────────

// Xtream servers are sloppy about JSON types: numeric fields arrive as
// numbers or quoted strings depending on the panel build. flexInt and
// flexString absorb both.

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		// Some panels put junk in numeric fields; treat it as absent.
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(bytes.Trim(data, `"`))
	return nil
}

type xtreamCategory struct {
	CategoryID   flexString `json:"category_id"`
	CategoryName string     `json:"category_name"`
}

type xtreamVODStream struct {
	Name               string     `json:"name"`
	StreamID           flexInt    `json:"stream_id"`
	CategoryID         flexString `json:"category_id"`
	ContainerExtension string     `json:"container_extension"`
	Added              flexString `json:"added"` // unix seconds
	TMDB               flexInt    `json:"tmdb"`
}

type xtreamSeries struct {
	Name         string     `json:"name"`
	SeriesID     flexInt    `json:"series_id"`
	CategoryID   flexString `json:"category_id"`
	LastModified flexString `json:"last_modified"` // unix seconds
	TMDB         flexInt    `json:"tmdb"`
	ReleaseDate  string     `json:"releaseDate"`
}

type xtreamVODInfo struct {
	Info struct {
		TMDBID      flexInt `json:"tmdb_id"`
		ReleaseDate string  `json:"releasedate"`
	} `json:"info"`
}

type xtreamEpisode struct {
	ID                 flexString `json:"id"`
	EpisodeNum         flexInt    `json:"episode_num"`
	Season             flexInt    `json:"season"`
	ContainerExtension string     `json:"container_extension"`
}

type xtreamSeriesInfo struct {
	Info struct {
		TMDB        flexInt `json:"tmdb"`
		ReleaseDate string  `json:"releaseDate"`
	} `json:"info"`
	Episodes map[string][]xtreamEpisode `json:"episodes"`
}

func parseUnix(s flexString) time.Time {
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// ──────────────────── Listings ────────────────────

func (x *Xtream) FetchCategories(ctx context.Context, t models.MediaType) ([]*models.Category, error) {
	action := "get_vod_categories"
	if t == models.MediaTypeTVShows {
		action = "get_series_categories"
	}
	data, err := x.client.get(ctx, x.apiURL(action, nil),
		[]string{x.cfg.ID, "categories", string(t) + ".json"})
	if err != nil {
		return nil, err
	}
	var cats []xtreamCategory
	if err := json.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	out := make([]*models.Category, 0, len(cats))
	for _, c := range cats {
		if c.CategoryID == "" {
			continue
		}
		out = append(out, &models.Category{
			ProviderID:  x.cfg.ID,
			CategoryKey: models.CategoryKey(t, string(c.CategoryID)),
			Type:        t,
			Name:        c.CategoryName,
		})
	}
	return out, nil
}

func (x *Xtream) FetchRawTitles(ctx context.Context, t models.MediaType) ([]*RawTitle, error) {
	if t == models.MediaTypeMovies {
		return x.fetchVODStreams(ctx)
	}
	return x.fetchSeries(ctx)
}

func (x *Xtream) fetchVODStreams(ctx context.Context) ([]*RawTitle, error) {
	data, err := x.client.get(ctx, x.apiURL("get_vod_streams", nil),
		[]string{x.cfg.ID, "metadata", "movies.json"})
	if err != nil {
		return nil, err
	}
	var streams []xtreamVODStream
	if err := json.Unmarshal(data, &streams); err != nil {
		return nil, fmt.Errorf("get_vod_streams: %w", err)
	}
	out := make([]*RawTitle, 0, len(streams))
	for _, s := range streams {
		if s.StreamID == 0 {
			out = append(out, &RawTitle{Title: s.Name, Type: models.MediaTypeMovies})
			continue
		}
		id := strconv.Itoa(int(s.StreamID))
		ext := s.ContainerExtension
		if ext == "" {
			ext = "mp4"
		}
		out = append(out, &RawTitle{
			TitleID:    id,
			Title:      s.Name,
			Type:       models.MediaTypeMovies,
			CategoryID: string(s.CategoryID),
			TMDBID:     int(s.TMDB),
			Modified:   parseUnix(s.Added),
			Streams: map[string]string{
				models.StreamKeyMain: fmt.Sprintf("%s/movie/%s/%s/%s.%s",
					strings.TrimSuffix(x.cfg.APIURL, "/"), x.cfg.Username, x.cfg.Password, id, ext),
			},
		})
	}
	return out, nil
}

func (x *Xtream) fetchSeries(ctx context.Context) ([]*RawTitle, error) {
	data, err := x.client.get(ctx, x.apiURL("get_series", nil),
		[]string{x.cfg.ID, "metadata", "tvshows.json"})
	if err != nil {
		return nil, err
	}
	var series []xtreamSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("get_series: %w", err)
	}
	out := make([]*RawTitle, 0, len(series))
	for _, s := range series {
		if s.SeriesID == 0 {
			out = append(out, &RawTitle{Title: s.Name, Type: models.MediaTypeTVShows})
			continue
		}
		out = append(out, &RawTitle{
			TitleID:     strconv.Itoa(int(s.SeriesID)),
			Title:       s.Name,
			Type:        models.MediaTypeTVShows,
			CategoryID:  string(s.CategoryID),
			TMDBID:      int(s.TMDB),
			ReleaseDate: s.ReleaseDate,
			Modified:    parseUnix(s.LastModified),
			Streams:     map[string]string{},
		})
	}
	return out, nil
}

// ──────────────────── Extended info ────────────────────

// FetchExtendedInfo completes one entry with its info call: tmdb id and
// release date for movies, plus the full episode map for series. Movie info
// is cached forever; series info ages out so new episodes surface.
func (x *Xtream) FetchExtendedInfo(ctx context.Context, raw *RawTitle) error {
	if raw.Type == models.MediaTypeMovies {
		return x.fetchVODInfo(ctx, raw)
	}
	return x.fetchSeriesInfo(ctx, raw)
}

func (x *Xtream) fetchVODInfo(ctx context.Context, raw *RawTitle) error {
	data, err := x.client.get(ctx,
		x.apiURL("get_vod_info", url.Values{"vod_id": {raw.TitleID}}),
		[]string{x.cfg.ID, "extended", "movies", raw.TitleID + ".json"})
	if err != nil {
		return fmt.Errorf("get_vod_info %s: %w", raw.TitleID, err)
	}
	var info xtreamVODInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("get_vod_info %s: %w", raw.TitleID, err)
	}
	if raw.TMDBID == 0 {
		raw.TMDBID = int(info.Info.TMDBID)
	}
	if raw.ReleaseDate == "" {
		raw.ReleaseDate = info.Info.ReleaseDate
	}
	return nil
}

func (x *Xtream) fetchSeriesInfo(ctx context.Context, raw *RawTitle) error {
	data, err := x.client.get(ctx,
		x.apiURL("get_series_info", url.Values{"series_id": {raw.TitleID}}),
		[]string{x.cfg.ID, "extended", "tvshows", raw.TitleID + ".json"})
	if err != nil {
		return fmt.Errorf("get_series_info %s: %w", raw.TitleID, err)
	}
	var info xtreamSeriesInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("get_series_info %s: %w", raw.TitleID, err)
	}
	if raw.TMDBID == 0 {
		raw.TMDBID = int(info.Info.TMDB)
	}
	if raw.ReleaseDate == "" {
		raw.ReleaseDate = info.Info.ReleaseDate
	}

	streams := make(map[string]string)
	base := strings.TrimSuffix(x.cfg.APIURL, "/")
	for seasonKey, episodes := range info.Episodes {
		for _, ep := range episodes {
			season := int(ep.Season)
			if season == 0 {
				// Older panels omit the per-episode season field.
				if n, err := strconv.Atoi(seasonKey); err == nil {
					season = n
				}
			}
			if ep.ID == "" || int(ep.EpisodeNum) == 0 {
				continue
			}
			ext := ep.ContainerExtension
			if ext == "" {
				ext = "mp4"
			}
			streams[models.StreamKey(season, int(ep.EpisodeNum))] = fmt.Sprintf(
				"%s/series/%s/%s/%s.%s", base, x.cfg.Username, x.cfg.Password, string(ep.ID), ext)
		}
	}
	raw.Streams = streams
	return nil
}

// ShouldSkip trusts the upstream modification stamp when one is present; a
// stamp older than our stored copy means nothing changed. Entries without a
// stamp fall back to stream-key-set comparison, which for series (streams
// unknown before the info call) always re-enriches.
func (x *Xtream) ShouldSkip(raw *RawTitle, existing *models.ProviderTitle) bool {
	if existing == nil || existing.Ignored {
		return false
	}
	if !raw.Modified.IsZero() {
		return !raw.Modified.After(existing.LastUpdated)
	}
	return sameStreamKeys(raw.Streams, existing.Streams)
}

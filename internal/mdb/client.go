// Package mdb is the client for the external movie/TV metadata service
// (TMDB wire shapes). Every call is admitted by the shared reservoir and
// cached in the blob store under the tmdb/* policy keys.
package mdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mfleet/streamvault/internal/cache"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/ratelimit"
)

// DefaultBaseURL is the production metadata API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

func never() *float64          { return nil }
func hours(h float64) *float64 { return &h }

// DefaultPolicies are the cache TTLs declared at client init. Season data
// still changes for airing shows; everything else is immutable enough to
// keep forever.
func DefaultPolicies() map[string]*float64 {
	return map[string]*float64{
		"tmdb/search/movie":  never(),
		"tmdb/search/tv":     never(),
		"tmdb/movie/imdb":    never(),
		"tmdb/tv/imdb":       never(),
		"tmdb/movie/details": never(),
		"tmdb/tv/details":    never(),
		"tmdb/tv/season":     hours(6),
		"tmdb/movie/similar": never(),
		"tmdb/tv/similar":    never(),
	}
}

type Client struct {
	baseURL string
	client  *http.Client
	cache   *cache.Store
	limiter *ratelimit.Reservoir

	mu    sync.RWMutex
	token string
}

// NewClient creates a metadata client. The token may be reconfigured later
// by the settings monitor via SetToken.
func NewClient(baseURL, token string, store *cache.Store, limiter *ratelimit.Reservoir) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	store.Register(DefaultPolicies())
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   store,
		limiter: limiter,
		token:   token,
	}
}

// SetToken swaps the bearer token at runtime.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Limiter exposes the reservoir so the settings monitor can retune it.
func (c *Client) Limiter() *ratelimit.Reservoir { return c.limiter }

func searchType(t models.MediaType) string {
	if t == models.MediaTypeTVShows {
		return "tv"
	}
	return "movie"
}

// get fetches path (relative, with query) through cache and reservoir.
// cacheKey's last part is the blob filename.
func (c *Client) get(ctx context.Context, path string, cacheKey []string) ([]byte, error) {
	if data, ok := c.cache.Fetch(cacheKey...); ok {
		return data, nil
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mdb: %s returned %d", path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(cacheKey, data, nil); err != nil {
		return nil, fmt.Errorf("mdb: cache write: %w", err)
	}
	return data, nil
}

// safeName makes an arbitrary string usable as a cache filename segment.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\x00':
			return '_'
		}
		return r
	}, s)
	if s == "" {
		s = "empty"
	}
	return s
}

// ──────────────────── Wire shapes ────────────────────

type SearchResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
}

type findResponse struct {
	MovieResults []SearchResult `json:"movie_results"`
	TVResults    []SearchResult `json:"tv_results"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Season struct {
	SeasonNumber int    `json:"season_number"`
	Name         string `json:"name"`
	EpisodeCount int    `json:"episode_count"`
	AirDate      string `json:"air_date"`
}

// Details covers both movie and TV detail payloads; the title/name and
// release_date/first_air_date pairs are normalized by accessors.
type Details struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	ReleaseDate  string   `json:"release_date"`
	FirstAirDate string   `json:"first_air_date"`
	VoteAverage  float64  `json:"vote_average"`
	Overview     string   `json:"overview"`
	PosterPath   string   `json:"poster_path"`
	Genres       []Genre  `json:"genres"`
	Seasons      []Season `json:"seasons"`
}

// DisplayTitle normalizes the movie/TV name split.
func (d *Details) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Released normalizes release_date/first_air_date.
func (d *Details) Released() string {
	if d.ReleaseDate != "" {
		return d.ReleaseDate
	}
	return d.FirstAirDate
}

type Episode struct {
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	AirDate       string `json:"air_date"`
	StillPath     string `json:"still_path"`
}

type SeasonDetails struct {
	SeasonNumber int       `json:"season_number"`
	Episodes     []Episode `json:"episodes"`
}

type similarResponse struct {
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Results    []SearchResult `json:"results"`
}

// ──────────────────── Calls ────────────────────

// FindByIMDB resolves an IMDB id ("tt…") to the service's canonical results.
func (c *Client) FindByIMDB(ctx context.Context, t models.MediaType, imdbID string) ([]SearchResult, error) {
	st := searchType(t)
	key := []string{"tmdb", st, "imdb", safeName(imdbID) + ".json"}
	data, err := c.get(ctx, "/find/"+url.PathEscape(imdbID)+"?external_source=imdb_id", key)
	if err != nil {
		return nil, err
	}
	var resp findResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("mdb: find decode: %w", err)
	}
	if t == models.MediaTypeTVShows {
		return resp.TVResults, nil
	}
	return resp.MovieResults, nil
}

// Search runs the name(+year) query. year 0 omits the year parameter.
func (c *Client) Search(ctx context.Context, t models.MediaType, query string, year int) ([]SearchResult, error) {
	st := searchType(t)
	q := url.Values{}
	q.Set("query", query)
	name := safeName(query)
	if year > 0 {
		if st == "tv" {
			q.Set("first_air_date_year", fmt.Sprintf("%d", year))
		} else {
			q.Set("year", fmt.Sprintf("%d", year))
		}
		name = fmt.Sprintf("%s-%d", name, year)
	}
	key := []string{"tmdb", "search", st, name + ".json"}
	data, err := c.get(ctx, "/search/"+st+"?"+q.Encode(), key)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("mdb: search decode: %w", err)
	}
	return resp.Results, nil
}

// GetDetails fetches movie or TV details by canonical id.
func (c *Client) GetDetails(ctx context.Context, t models.MediaType, id int) (*Details, error) {
	st := searchType(t)
	key := []string{"tmdb", st, "details", fmt.Sprintf("%d.json", id)}
	data, err := c.get(ctx, fmt.Sprintf("/%s/%d", st, id), key)
	if err != nil {
		return nil, err
	}
	d := &Details{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("mdb: details decode: %w", err)
	}
	return d, nil
}

// GetSeason fetches one TV season with its episodes.
func (c *Client) GetSeason(ctx context.Context, tvID, season int) (*SeasonDetails, error) {
	key := []string{"tmdb", "tv", "season", fmt.Sprintf("%d-%d.json", tvID, season)}
	data, err := c.get(ctx, fmt.Sprintf("/tv/%d/season/%d", tvID, season), key)
	if err != nil {
		return nil, err
	}
	sd := &SeasonDetails{}
	if err := json.Unmarshal(data, sd); err != nil {
		return nil, fmt.Errorf("mdb: season decode: %w", err)
	}
	return sd, nil
}

// GetSimilar fetches one page of similar titles.
func (c *Client) GetSimilar(ctx context.Context, t models.MediaType, id, page int) ([]SearchResult, error) {
	st := searchType(t)
	key := []string{"tmdb", st, "similar", fmt.Sprintf("%d-p%d.json", id, page)}
	data, err := c.get(ctx, fmt.Sprintf("/%s/%d/similar?page=%d", st, id, page), key)
	if err != nil {
		return nil, err
	}
	var resp similarResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("mdb: similar decode: %w", err)
	}
	return resp.Results, nil
}

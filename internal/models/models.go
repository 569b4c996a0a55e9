package models

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type MediaType string

const (
	MediaTypeMovies  MediaType = "movies"
	MediaTypeTVShows MediaType = "tvshows"
)

// Valid reports whether t is one of the two supported catalog types.
func (t MediaType) Valid() bool {
	return t == MediaTypeMovies || t == MediaTypeTVShows
}

type ProviderKind string

const (
	ProviderAGTV   ProviderKind = "agtv"
	ProviderXtream ProviderKind = "xtream"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ProviderAction is a control-plane event on a provider, drained by jobs.
type ProviderAction string

const (
	ActionEnabled           ProviderAction = "enabled"
	ActionDisabled          ProviderAction = "disabled"
	ActionCreated           ProviderAction = "created"
	ActionDeleted           ProviderAction = "deleted"
	ActionCategoriesChanged ProviderAction = "categories-changed"
)

// ──────────────────── Provider config ────────────────────

// CleanupRule rewrites raw titles before matching. Rules apply in declared order.
type CleanupRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// APIRate is the reservoir configuration for a provider's upstream.
type APIRate struct {
	Concurrent      int `json:"concurrent"`
	DurationSeconds int `json:"duration_seconds"`
}

// ProviderConfig is a row of iptv_providers, owned by the control plane.
type ProviderConfig struct {
	ID                string                 `json:"id" db:"id"`
	Kind              ProviderKind           `json:"type" db:"type"`
	APIURL            string                 `json:"api_url" db:"api_url"`
	Username          string                 `json:"username" db:"username"`
	Password          string                 `json:"password" db:"password"`
	Enabled           bool                   `json:"enabled" db:"enabled"`
	Deleted           bool                   `json:"deleted" db:"deleted"`
	Priority          int                    `json:"priority" db:"priority"`
	APIRate           APIRate                `json:"api_rate" db:"api_rate"`
	CleanupRules      []CleanupRule          `json:"cleanup_rules" db:"cleanup_rules"`
	EnabledCategories map[MediaType][]string `json:"enabled_categories" db:"enabled_categories"`
	LastUpdated       time.Time              `json:"lastUpdated" db:"last_updated"`
}

// CategoryEnabled reports whether categoryID is in the enabled set for t.
// A provider with no enabled-category list for t accepts everything.
func (p *ProviderConfig) CategoryEnabled(t MediaType, categoryID string) bool {
	ids, ok := p.EnabledCategories[t]
	if !ok || len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == categoryID {
			return true
		}
	}
	return false
}

// ──────────────────── Provider title ────────────────────

// ProviderTitle is the raw per-provider record, keyed by (provider_id, title_key).
// An ignore entry is a ProviderTitle with Ignored=true and a reason.
type ProviderTitle struct {
	ProviderID    string            `json:"provider_id" db:"provider_id"`
	TitleID       string            `json:"title_id" db:"title_id"`
	TitleKey      string            `json:"title_key" db:"title_key"`
	Type          MediaType         `json:"type" db:"type"`
	Title         string            `json:"title" db:"title"`
	TMDBID        int               `json:"tmdb_id,omitempty" db:"tmdb_id"`
	CategoryID    string            `json:"category_id,omitempty" db:"category_id"`
	ReleaseDate   string            `json:"release_date,omitempty" db:"release_date"`
	Streams       map[string]string `json:"streams" db:"streams"`
	Ignored       bool              `json:"ignored" db:"ignored"`
	IgnoredReason string            `json:"ignored_reason,omitempty" db:"ignored_reason"`
	CreatedAt     time.Time         `json:"createdAt" db:"created_at"`
	LastUpdated   time.Time         `json:"lastUpdated" db:"last_updated"`
}

// ──────────────────── Canonical title ────────────────────

// CanonicalStream is one stream entry of a canonical title: the providers that
// carry it plus, for TV episodes, the episode metadata from MDB.
type CanonicalStream struct {
	Sources   []string `json:"sources"`
	AirDate   string   `json:"air_date,omitempty"`
	Name      string   `json:"name,omitempty"`
	Overview  string   `json:"overview,omitempty"`
	StillPath string   `json:"still_path,omitempty"`
}

// CanonicalTitle is the merged, provider-agnostic record keyed by title_key.
// Similar is nil until the similar-title enrichment phase has run; an empty
// non-nil slice means enriched with no results.
type CanonicalTitle struct {
	TitleID     int                        `json:"title_id" db:"title_id"`
	Type        MediaType                  `json:"type" db:"type"`
	TitleKey    string                     `json:"title_key" db:"title_key"`
	Title       string                     `json:"title" db:"title"`
	ReleaseDate string                     `json:"release_date,omitempty" db:"release_date"`
	VoteAverage float64                    `json:"vote_average" db:"vote_average"`
	Overview    string                     `json:"overview,omitempty" db:"overview"`
	PosterPath  string                     `json:"poster_path,omitempty" db:"poster_path"`
	Genres      []string                   `json:"genres" db:"genres"`
	Streams     map[string]CanonicalStream `json:"streams" db:"streams"`
	Similar     []string                   `json:"similar,omitempty" db:"similar"`
	CreatedAt   time.Time                  `json:"createdAt" db:"created_at"`
	LastUpdated time.Time                  `json:"lastUpdated" db:"last_updated"`
}

// Year returns the four-digit release year, or 0 when unknown.
func (c *CanonicalTitle) Year() int {
	return YearOf(c.ReleaseDate)
}

// YearOf extracts the leading four-digit year of a YYYY-MM-DD date string.
func YearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y := 0
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		y = y*10 + int(r-'0')
	}
	return y
}

// ──────────────────── Stream document ────────────────────

// StreamDocument is the per-stream record consumed by the downstream proxy,
// keyed by (title_key, stream_id, provider_id).
type StreamDocument struct {
	TitleKey    string    `json:"title_key" db:"title_key"`
	StreamID    string    `json:"stream_id" db:"stream_id"`
	ProviderID  string    `json:"provider_id" db:"provider_id"`
	TvgID       string    `json:"tvg-id" db:"tvg_id"`
	TvgName     string    `json:"tvg-name" db:"tvg_name"`
	TvgType     string    `json:"tvg-type" db:"tvg_type"`
	TvgLogo     string    `json:"tvg-logo" db:"tvg_logo"`
	GroupTitle  string    `json:"group-title" db:"group_title"`
	ProxyURL    string    `json:"proxy_url" db:"proxy_url"`
	ProxyPath   string    `json:"proxy_path" db:"proxy_path"`
	SeasonNum   int       `json:"tvg-season-num,omitempty" db:"season_num"`
	EpisodeNum  int       `json:"tvg-episode-num,omitempty" db:"episode_num"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`
}

// ──────────────────── Category ────────────────────

type Category struct {
	ProviderID  string    `json:"provider_id" db:"provider_id"`
	CategoryKey string    `json:"category_key" db:"category_key"`
	Type        MediaType `json:"type" db:"type"`
	Name        string    `json:"name" db:"name"`
	Enabled     bool      `json:"enabled" db:"enabled"`
}

// ──────────────────── Job history ────────────────────

// JobResult is what a job run leaves behind in job_history.last_result.
type JobResult struct {
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	DurationS float64        `json:"duration_s,omitempty"`
}

// JobHistory is one row per (job_name, provider_id?). LastExecution advances
// only on success; failures and cancellations leave it unchanged so retries
// re-process the same window. The *Check timestamps live at the top level of
// the row, not inside last_result.
type JobHistory struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	JobName           string     `json:"job_name" db:"job_name"`
	ProviderID        string     `json:"provider_id,omitempty" db:"provider_id"`
	Status            JobStatus  `json:"status" db:"status"`
	LastExecution     *time.Time `json:"last_execution,omitempty" db:"last_execution"`
	LastResult        *JobResult `json:"last_result,omitempty" db:"last_result"`
	ExecutionCount    int        `json:"execution_count" db:"execution_count"`
	LastProviderCheck *time.Time `json:"last_provider_check,omitempty" db:"last_provider_check"`
	LastSettingsCheck *time.Time `json:"last_settings_check,omitempty" db:"last_settings_check"`
	LastPolicyCheck   *time.Time `json:"last_policy_check,omitempty" db:"last_policy_check"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	LastUpdated       time.Time  `json:"lastUpdated" db:"last_updated"`
}

// ──────────────────── Cache policy / settings ────────────────────

// CachePolicy maps a policy key (possibly with {providerId}/{tmdbId} wildcard
// segments) to a TTL in hours. A nil TTL means the entry never expires.
type CachePolicy struct {
	Key         string    `json:"_id" db:"key"`
	TTLHours    *float64  `json:"value" db:"ttl_hours"`
	ProviderID  string    `json:"provider_id,omitempty" db:"provider_id"`
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`
}

type Setting struct {
	Key         string    `json:"_id" db:"key"`
	Value       string    `json:"value" db:"value"`
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`
}

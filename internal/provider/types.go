// Package provider implements the ingestion pipeline shared by all upstream
// adapters: fetch-list → filter → bounded parallel enrichment → accumulate →
// periodic flush → final flush. Adapters supply the fetching and parsing
// hooks; the pipeline owns filtering, matching, accumulation and persistence.
package provider

import (
	"context"
	"time"

	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/repository"
)

// Ignore reasons recorded by the pipeline. Both are transient: entries
// carrying them are re-examined on the next run.
const (
	ReasonMatchFailed       = "TMDB matching failed"
	ReasonExtendedInfoError = "Extended info fetch failed: "
)

// RetryableReason reports whether an ignore reason is transient. Ignored
// entries with other reasons (control-plane ignores) are dropped by the
// pipeline filter and never re-enriched.
func RetryableReason(reason string) bool {
	if reason == ReasonMatchFailed {
		return true
	}
	return len(reason) >= len(ReasonExtendedInfoError) &&
		reason[:len(ReasonExtendedInfoError)] == ReasonExtendedInfoError
}

// RawTitle is an adapter-normalized upstream entry before enrichment.
type RawTitle struct {
	TitleID     string
	Title       string
	Type        models.MediaType
	CategoryID  string
	ReleaseDate string
	TMDBID      int // upstream-declared canonical id, when the API carries one
	Streams     map[string]string
	Modified    time.Time // upstream modification stamp, zero when unknown

	TvgID      string
	TvgName    string
	TvgType    string
	GroupTitle string
	Logo       string
}

// Store is the slice of the catalog store the pipeline persists through.
type Store interface {
	GetProviderTitles(providerID string, f repository.TitleFilter) ([]*models.ProviderTitle, error)
	SaveProviderTitles(providerID string, titles []*models.ProviderTitle) (repository.SaveResult, error)
	SaveAllIgnoredTitles(providerID string, byReason map[string][]string) error
}

// Matcher resolves a raw title to a canonical id; 0 means no match.
type Matcher interface {
	Match(ctx context.Context, in MatchInput) (int, error)
}

// MatchInput mirrors mdb.MatchInput without importing it, so the pipeline
// can be exercised with a fake matcher.
type MatchInput struct {
	ProviderKind models.ProviderKind
	Type         models.MediaType
	TitleID      string
	Title        string
	ReleaseDate  string
}

// Adapter supplies the provider-specific extension points of the pipeline.
type Adapter interface {
	Config() *models.ProviderConfig

	// FetchRawTitles returns the upstream listing for one media type.
	FetchRawTitles(ctx context.Context, t models.MediaType) ([]*RawTitle, error)

	// FetchExtendedInfo completes raw in place (stream URLs, release date,
	// upstream tmdb id). Called once per surviving entry, inside the
	// bounded enrichment pool.
	FetchExtendedInfo(ctx context.Context, raw *RawTitle) error

	// ShouldSkip decides whether an entry needs no re-enrichment given its
	// stored counterpart (nil when the title is new).
	ShouldSkip(raw *RawTitle, existing *models.ProviderTitle) bool

	// FetchCategories lists upstream categories; empty for adapters
	// without category support.
	FetchCategories(ctx context.Context, t models.MediaType) ([]*models.Category, error)

	SupportsCategories() bool

	// BatchSize bounds the enrichment concurrency; 0 selects the default
	// min(2×concurrent, 100).
	BatchSize() int
}

// ProviderPolicies are the per-provider cache TTL defaults declared at
// adapter init. The {providerId} wildcard matches any provider segment.
func ProviderPolicies() map[string]*float64 {
	oneHour := 1.0
	sixHours := 6.0
	return map[string]*float64{
		"{providerId}/categories":       &oneHour,
		"{providerId}/metadata":         &oneHour,
		"{providerId}/extended/movies":  nil,
		"{providerId}/extended/tvshows": &sixHours,
	}
}

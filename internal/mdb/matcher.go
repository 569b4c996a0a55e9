package mdb

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/mfleet/streamvault/internal/models"
)

var (
	// yearInTitle extracts "(1994" style embedded years.
	yearInTitle = regexp.MustCompile(`\((\d{4})`)
	// trailingYear strips a trailing "(1994)" or "(1994-1998)" suffix.
	trailingYear = regexp.MustCompile(`\s*\(\d{4}(-\d{4})?\)\s*$`)
)

// Matcher resolves raw provider titles to canonical ids. "No match" is a
// first-class outcome (id 0, nil error), not an error.
type Matcher struct {
	client *Client
}

func NewMatcher(client *Client) *Matcher {
	return &Matcher{client: client}
}

// Client returns the underlying metadata client, for runtime reconfiguration.
func (m *Matcher) Client() *Client { return m.client }

// MatchInput is the slice of a provider title the matcher needs.
type MatchInput struct {
	ProviderKind models.ProviderKind
	Type         models.MediaType
	TitleID      string
	Title        string
	ReleaseDate  string
}

// Match resolves in to a canonical id:
//  1. Strong match via the external-id lookup, for AGTV titles whose
//     provider-local id is an IMDB id ("tt…").
//  2. Name+year search, with the year taken from the release date or the
//     title text; retried without the year when empty.
//
// Returns 0 when nothing matched.
func (m *Matcher) Match(ctx context.Context, in MatchInput) (int, error) {
	if in.ProviderKind == models.ProviderAGTV && strings.HasPrefix(in.TitleID, "tt") {
		results, err := m.client.FindByIMDB(ctx, in.Type, in.TitleID)
		if err != nil {
			return 0, err
		}
		if len(results) > 0 {
			return results[0].ID, nil
		}
		// Fall through to the name search: upstream IMDB ids go stale.
	}

	base := BaseTitle(in.Title)
	if base == "" {
		return 0, nil
	}
	year := ExtractYear(in.Title, in.ReleaseDate)

	results, err := m.client.Search(ctx, in.Type, base, year)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 && year > 0 {
		results, err = m.client.Search(ctx, in.Type, base, 0)
		if err != nil {
			return 0, err
		}
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].ID, nil
}

// BaseTitle strips the trailing "(YYYY)" / "(YYYY-YYYY)" suffix.
func BaseTitle(title string) string {
	return strings.TrimSpace(trailingYear.ReplaceAllString(title, ""))
}

// ExtractYear prefers the release date's year and falls back to a year
// embedded in the title text.
func ExtractYear(title, releaseDate string) int {
	if y := models.YearOf(releaseDate); y > 0 {
		return y
	}
	if m := yearInTitle.FindStringSubmatch(title); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	return 0
}

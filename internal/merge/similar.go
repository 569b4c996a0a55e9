package merge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/repository"
)

const (
	// similarMaxPages bounds the metadata paging per title.
	similarMaxPages = 10
	// similarMaxFailures aborts a title after this many consecutive page
	// failures; the title stays unenriched and is retried next run.
	similarMaxFailures = 3
)

// EnrichSimilar fills the similar-title list of every never-enriched
// canonical title of one type. Results are filtered to titles the catalog
// actually carries; an empty outcome is still recorded so the title is not
// re-examined every run.
func (e *Engine) EnrichSimilar(ctx context.Context, t models.MediaType) (int, error) {
	all, err := e.store.GetMainTitles(repository.MainTitleFilter{Type: t})
	if err != nil {
		return 0, fmt.Errorf("load canonical titles: %w", err)
	}
	inCatalog := make(map[string]bool, len(all))
	var pending []*models.CanonicalTitle
	for _, ct := range all {
		inCatalog[ct.TitleKey] = true
		if ct.Similar == nil && ct.CreatedAt.Equal(ct.LastUpdated) {
			pending = append(pending, ct)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	var save []*models.CanonicalTitle
	for _, ct := range pending {
		if ctx.Err() != nil {
			break
		}
		similar, ok := e.similarFor(ctx, ct, inCatalog)
		if !ok {
			continue
		}
		ct.Similar = similar
		ct.LastUpdated = now
		save = append(save, ct)
	}

	if err := e.store.SaveMainTitles(save); err != nil {
		return 0, fmt.Errorf("save enriched titles: %w", err)
	}
	log.Printf("[similar] %s: enriched %d of %d pending titles", t, len(save), len(pending))
	return len(save), nil
}

// similarFor pages through the metadata service's similar list for one
// title. ok is false when no page succeeded at all.
func (e *Engine) similarFor(ctx context.Context, ct *models.CanonicalTitle, inCatalog map[string]bool) ([]string, bool) {
	keys := []string{}
	seen := make(map[string]bool)
	failures := 0
	succeeded := false
	for page := 1; page <= similarMaxPages; page++ {
		results, err := e.meta.GetSimilar(ctx, ct.Type, ct.TitleID, page)
		if err != nil {
			failures++
			log.Printf("[similar] %s page %d: %v", ct.TitleKey, page, err)
			if failures >= similarMaxFailures {
				break
			}
			continue
		}
		failures = 0
		succeeded = true
		if len(results) == 0 {
			break
		}
		for _, r := range results {
			key := models.TitleKeyInt(ct.Type, r.ID)
			if key == ct.TitleKey || !inCatalog[key] || seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, succeeded
}

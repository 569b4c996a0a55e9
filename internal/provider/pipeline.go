package provider

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"

	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/progress"
	"github.com/mfleet/streamvault/internal/repository"
)

// maxBatchSize caps the default enrichment concurrency.
const maxBatchSize = 100

// Pipeline drives one provider's ingestion. It is single-writer per run:
// the scheduler's single-flight guarantee keeps overlapping runs of the same
// provider out.
type Pipeline struct {
	adapter  Adapter
	store    Store
	matcher  Matcher
	progress *progress.Coordinator

	mu          sync.Mutex
	accumulated []*models.ProviderTitle
	ignored     map[string][]string // reason → title keys
}

func NewPipeline(adapter Adapter, store Store, matcher Matcher, coord *progress.Coordinator) *Pipeline {
	return &Pipeline{
		adapter:  adapter,
		store:    store,
		matcher:  matcher,
		progress: coord,
		ignored:  make(map[string][]string),
	}
}

func (p *Pipeline) batchSize() int {
	if n := p.adapter.BatchSize(); n > 0 {
		return n
	}
	n := p.adapter.Config().APIRate.Concurrent * 2
	if n < 1 {
		n = 1
	}
	if n > maxBatchSize {
		n = maxBatchSize
	}
	return n
}

// FetchMetadata ingests one media type end to end. Per-item failures become
// ignore entries; only fetch-list and baseline failures abort the run.
func (p *Pipeline) FetchMetadata(ctx context.Context, t models.MediaType) error {
	cfg := p.adapter.Config()
	providerID := cfg.ID

	existing, err := p.store.GetProviderTitles(providerID, repository.TitleFilter{Type: t})
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	baseline := make(map[string]*models.ProviderTitle, len(existing))
	for _, e := range existing {
		baseline[e.TitleKey] = e
	}

	raws, err := p.adapter.FetchRawTitles(ctx, t)
	if err != nil {
		return fmt.Errorf("fetch raw titles: %w", err)
	}

	items := p.filter(raws, t, cfg, baseline)
	log.Printf("[%s] %s: %d upstream entries, %d to enrich", providerID, t, len(raws), len(items))
	if len(items) == 0 {
		return nil
	}

	rules := compileCleanupRules(cfg.CleanupRules)

	progressKey := providerID + ":" + string(t)
	p.progress.Register(progressKey, len(items), p.flush(providerID))
	defer p.progress.Unregister(progressKey)

	batch := p.batchSize()
	remaining := len(items)
	for start := 0; start < len(items); start += batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + batch
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for _, raw := range items[start:end] {
			wg.Add(1)
			go func(raw *RawTitle) {
				defer wg.Done()
				p.enrich(ctx, cfg, raw, rules)
			}(raw)
		}
		wg.Wait()
		remaining -= end - start
		p.progress.Update(progressKey, remaining)
	}
	return nil
}

// filter applies the drop rules: missing id, already-ignored (non-retryable),
// disabled category, and the adapter's skip hook. Dropped-for-validation
// entries are only counted.
func (p *Pipeline) filter(raws []*RawTitle, t models.MediaType, cfg *models.ProviderConfig, baseline map[string]*models.ProviderTitle) []*RawTitle {
	var out []*RawTitle
	invalid, ignored, filtered, skipped := 0, 0, 0, 0
	for _, raw := range raws {
		if raw.TitleID == "" {
			invalid++
			continue
		}
		key := models.TitleKey(t, raw.TitleID)
		prior := baseline[key]
		if prior != nil && prior.Ignored && !RetryableReason(prior.IgnoredReason) {
			ignored++
			continue
		}
		if p.adapter.SupportsCategories() && !cfg.CategoryEnabled(t, raw.CategoryID) {
			filtered++
			continue
		}
		if p.adapter.ShouldSkip(raw, prior) {
			skipped++
			continue
		}
		out = append(out, raw)
	}
	if invalid+ignored+filtered+skipped > 0 {
		log.Printf("[%s] %s filter: %d invalid, %d ignored, %d category-filtered, %d unchanged",
			cfg.ID, t, invalid, ignored, filtered, skipped)
	}
	return out
}

// enrich runs one item: extended info, cleanup rules, matching. Failures
// downgrade the item to an ignore entry but it is still accumulated so the
// failure state persists.
func (p *Pipeline) enrich(ctx context.Context, cfg *models.ProviderConfig, raw *RawTitle, rules []cleanupRule) {
	key := models.TitleKey(raw.Type, raw.TitleID)
	title := &models.ProviderTitle{
		ProviderID:  cfg.ID,
		TitleID:     raw.TitleID,
		TitleKey:    key,
		Type:        raw.Type,
		Title:       raw.Title,
		TMDBID:      raw.TMDBID,
		CategoryID:  raw.CategoryID,
		ReleaseDate: raw.ReleaseDate,
		Streams:     raw.Streams,
	}

	if err := p.adapter.FetchExtendedInfo(ctx, raw); err != nil {
		p.accumulateIgnored(title, ReasonExtendedInfoError+err.Error())
		return
	}
	title.Title = applyCleanupRules(raw.Title, rules)
	title.TMDBID = raw.TMDBID
	title.ReleaseDate = raw.ReleaseDate
	title.Streams = raw.Streams

	if title.TMDBID == 0 {
		id, err := p.matcher.Match(ctx, MatchInput{
			ProviderKind: cfg.Kind,
			Type:         raw.Type,
			TitleID:      raw.TitleID,
			Title:        title.Title,
			ReleaseDate:  raw.ReleaseDate,
		})
		if err != nil || id == 0 {
			if err != nil {
				log.Printf("[%s] match %s: %v", cfg.ID, key, err)
			}
			p.accumulateIgnored(title, ReasonMatchFailed)
			return
		}
		title.TMDBID = id
	}
	p.accumulate(title)
}

func (p *Pipeline) accumulate(t *models.ProviderTitle) {
	p.mu.Lock()
	p.accumulated = append(p.accumulated, t)
	p.mu.Unlock()
}

func (p *Pipeline) accumulateIgnored(t *models.ProviderTitle, reason string) {
	t.Ignored = true
	t.IgnoredReason = reason
	p.mu.Lock()
	p.accumulated = append(p.accumulated, t)
	p.ignored[reason] = append(p.ignored[reason], t.TitleKey)
	p.mu.Unlock()
}

// flush persists the accumulator. On success the flushed items are removed;
// on failure they stay for the next periodic or final flush.
func (p *Pipeline) flush(providerID string) func() {
	return func() {
		p.mu.Lock()
		titles := p.accumulated
		ignored := make(map[string][]string, len(p.ignored))
		for reason, keys := range p.ignored {
			ignored[reason] = keys[:len(keys):len(keys)]
		}
		p.mu.Unlock()
		if len(titles) == 0 && len(ignored) == 0 {
			return
		}

		if len(titles) > 0 {
			res, err := p.store.SaveProviderTitles(providerID, titles)
			if err != nil {
				log.Printf("[%s] flush failed, keeping %d titles for retry: %v", providerID, len(titles), err)
				return
			}
			log.Printf("[%s] flushed %d titles (%d inserted, %d updated)", providerID, len(titles), res.Inserted, res.Updated)
			p.mu.Lock()
			p.accumulated = p.accumulated[len(titles):]
			p.mu.Unlock()
		}

		if len(ignored) > 0 {
			if err := p.store.SaveAllIgnoredTitles(providerID, ignored); err != nil {
				log.Printf("[%s] ignore flush failed, keeping for retry: %v", providerID, err)
				return
			}
			p.mu.Lock()
			for reason, keys := range ignored {
				rest := p.ignored[reason][len(keys):]
				if len(rest) == 0 {
					delete(p.ignored, reason)
				} else {
					p.ignored[reason] = rest
				}
			}
			p.mu.Unlock()
		}
	}
}

// ──────────────────── Cleanup rules ────────────────────

type cleanupRule struct {
	re          *regexp.Regexp
	replacement string
}

// compileCleanupRules compiles the provider's ordered rewrite rules,
// dropping rules that fail to compile.
func compileCleanupRules(rules []models.CleanupRule) []cleanupRule {
	out := make([]cleanupRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			log.Printf("cleanup rule %q skipped: %v", r.Pattern, err)
			continue
		}
		out = append(out, cleanupRule{re: re, replacement: r.Replacement})
	}
	return out
}

func applyCleanupRules(title string, rules []cleanupRule) string {
	for _, r := range rules {
		title = r.re.ReplaceAllString(title, r.replacement)
	}
	return title
}

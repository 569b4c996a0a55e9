package jobs

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/mfleet/streamvault/internal/app"
	"github.com/mfleet/streamvault/internal/mdb"
	"github.com/mfleet/streamvault/internal/merge"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/provider"
	"github.com/mfleet/streamvault/internal/scheduler"
)

// Job intervals. The monitors poll fast; the heavy catalog jobs run daily
// and stagger their first run so startup is not a thundering herd.
const (
	fetchCategoriesInterval = 12 * time.Hour
	fetchMetadataInterval   = 12 * time.Hour
	mergeInterval           = 24 * time.Hour
	similarInterval         = 24 * time.Hour
	monitorInterval         = time.Minute
	cleanupInterval         = 5 * time.Minute
)

var mediaTypes = []models.MediaType{models.MediaTypeMovies, models.MediaTypeTVShows}

func fetchCategoriesJob(providerID string) string { return "fetch-categories:" + providerID }
func fetchMetadataJob(providerID string) string   { return "fetch-metadata:" + providerID }

// Registry builds the job catalog and owns the provider lifecycle: adapters
// come and go as the control plane creates, disables, and deletes providers.
type Registry struct {
	ctx     *app.Context
	sched   *scheduler.Scheduler
	queue   scheduler.Enqueuer
	engine  *merge.Engine
	matcher *mdb.Matcher
}

func NewRegistry(ctx *app.Context, sched *scheduler.Scheduler, queue scheduler.Enqueuer,
	engine *merge.Engine, matcher *mdb.Matcher) *Registry {
	return &Registry{ctx: ctx, sched: sched, queue: queue, engine: engine, matcher: matcher}
}

// Bootstrap registers the core jobs and one job pair per enabled provider.
func (r *Registry) Bootstrap() error {
	r.sched.Register(&scheduler.Job{
		Name:         "merge-catalog",
		Interval:     mergeInterval,
		InitialDelay: 5 * time.Minute,
		Run:          r.runMergeCatalog,
		PostExecute:  []string{"enrich-similar"},
		CanRun: func() error {
			if r.sched.RunningWithPrefix("fetch-metadata:") {
				return fmt.Errorf("ingestion in progress")
			}
			return nil
		},
	})
	r.sched.Register(&scheduler.Job{
		Name:         "enrich-similar",
		Interval:     similarInterval,
		InitialDelay: 10 * time.Minute,
		Run:          r.runEnrichSimilar,
	})
	r.sched.Register(&scheduler.Job{
		Name:     "settings-monitor",
		Interval: monitorInterval,
		Run:      r.runSettingsMonitor,
	})
	r.sched.Register(&scheduler.Job{
		Name:     "config-monitor",
		Interval: monitorInterval,
		Run:      r.runConfigMonitor,
	})
	r.sched.Register(&scheduler.Job{
		Name:     "provider-cleanup",
		Interval: cleanupInterval,
		Run:      r.runProviderCleanup,
	})

	providers, err := r.ctx.Catalog.Providers.GetProviders(true)
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	for _, cfg := range providers {
		if err := r.RegisterProvider(cfg); err != nil {
			log.Printf("[jobs] provider %s: %v", cfg.ID, err)
		}
	}
	return nil
}

// RegisterProvider builds the adapter and arms the provider's fetch jobs.
func (r *Registry) RegisterProvider(cfg *models.ProviderConfig) error {
	adapter, err := provider.NewAdapter(cfg, r.ctx.Cache)
	if err != nil {
		return err
	}
	if old := r.ctx.Adapter(cfg.ID); old != nil {
		provider.Close(old)
	}
	r.ctx.SetAdapter(cfg.ID, adapter)

	id := cfg.ID
	r.sched.Register(&scheduler.Job{
		Name:         fetchCategoriesJob(id),
		ProviderID:   id,
		Interval:     fetchCategoriesInterval,
		InitialDelay: 30 * time.Second,
		Run: func(ctx context.Context) (*models.JobResult, error) {
			return r.runFetchCategories(ctx, id)
		},
	})
	r.sched.Register(&scheduler.Job{
		Name:         fetchMetadataJob(id),
		ProviderID:   id,
		Interval:     fetchMetadataInterval,
		InitialDelay: time.Minute,
		Run: func(ctx context.Context) (*models.JobResult, error) {
			return r.runFetchMetadata(ctx, id)
		},
	})
	return nil
}

// UnregisterProvider disarms the fetch jobs and closes the adapter.
func (r *Registry) UnregisterProvider(providerID string) {
	r.sched.Unregister(fetchCategoriesJob(providerID))
	r.sched.Unregister(fetchMetadataJob(providerID))
	if a := r.ctx.Adapter(providerID); a != nil {
		provider.Close(a)
	}
	r.ctx.RemoveAdapter(providerID)
}

// ──────────────────── Provider jobs ────────────────────

func (r *Registry) runFetchCategories(ctx context.Context, providerID string) (*models.JobResult, error) {
	adapter := r.ctx.Adapter(providerID)
	if adapter == nil {
		return nil, fmt.Errorf("no adapter for provider %s", providerID)
	}
	if !adapter.SupportsCategories() {
		return &models.JobResult{Message: "provider has no categories"}, nil
	}
	counts := map[string]int{}
	for _, t := range mediaTypes {
		cats, err := adapter.FetchCategories(ctx, t)
		if err != nil {
			return &models.JobResult{Counts: counts}, fmt.Errorf("%s: %w", t, err)
		}
		if err := r.ctx.Catalog.Categories.SaveCategories(providerID, cats); err != nil {
			return &models.JobResult{Counts: counts}, fmt.Errorf("save %s: %w", t, err)
		}
		counts[string(t)] = len(cats)
	}
	return &models.JobResult{Counts: counts}, nil
}

func (r *Registry) runFetchMetadata(ctx context.Context, providerID string) (*models.JobResult, error) {
	adapter := r.ctx.Adapter(providerID)
	if adapter == nil {
		return nil, fmt.Errorf("no adapter for provider %s", providerID)
	}
	pipeline := provider.NewPipeline(adapter, r.ctx.Catalog, r.pipelineMatcher(), r.ctx.Progress)
	for _, t := range mediaTypes {
		if err := pipeline.FetchMetadata(ctx, t); err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
	}
	return &models.JobResult{Message: "ingestion complete"}, nil
}

// pipelineMatcher bridges the mdb matcher into the pipeline's local
// interface.
func (r *Registry) pipelineMatcher() provider.Matcher {
	return matcherFunc(func(ctx context.Context, in provider.MatchInput) (int, error) {
		return r.matcher.Match(ctx, mdb.MatchInput{
			ProviderKind: in.ProviderKind,
			Type:         in.Type,
			TitleID:      in.TitleID,
			Title:        in.Title,
			ReleaseDate:  in.ReleaseDate,
		})
	})
}

type matcherFunc func(ctx context.Context, in provider.MatchInput) (int, error)

func (f matcherFunc) Match(ctx context.Context, in provider.MatchInput) (int, error) {
	return f(ctx, in)
}

// ──────────────────── Catalog jobs ────────────────────

func (r *Registry) runMergeCatalog(ctx context.Context) (*models.JobResult, error) {
	providers, err := r.ctx.Catalog.Providers.GetProviders(true)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	counts := map[string]int{}
	for _, t := range mediaTypes {
		stats, err := r.engine.Run(ctx, t, providers)
		if err != nil {
			return &models.JobResult{Counts: counts}, fmt.Errorf("%s: %w", t, err)
		}
		counts[string(t)+"_created"] = stats.Created
		counts[string(t)+"_updated"] = stats.Updated
		counts[string(t)+"_deleted"] = stats.Deleted
	}
	return &models.JobResult{Counts: counts}, nil
}

func (r *Registry) runEnrichSimilar(ctx context.Context) (*models.JobResult, error) {
	counts := map[string]int{}
	for _, t := range mediaTypes {
		n, err := r.engine.EnrichSimilar(ctx, t)
		if err != nil {
			return &models.JobResult{Counts: counts}, fmt.Errorf("%s: %w", t, err)
		}
		counts[string(t)] = n
	}
	return &models.JobResult{Counts: counts}, nil
}

// ──────────────────── Monitors ────────────────────

// settingsWindow is the incremental read window of settings-monitor: its own
// last successful execution. Failures leave the window open so the same
// changes are re-read.
func settingsWindow(h *models.JobHistory) time.Time {
	if h != nil && h.LastExecution != nil {
		return *h.LastExecution
	}
	return time.Time{}
}

// configWindows are the three reconciliation watermarks owned by
// config-monitor, stored at the top level of its history row.
func configWindows(h *models.JobHistory) (provider, settings, policy time.Time) {
	if h == nil {
		return
	}
	if h.LastProviderCheck != nil {
		provider = *h.LastProviderCheck
	}
	if h.LastSettingsCheck != nil {
		settings = *h.LastSettingsCheck
	}
	if h.LastPolicyCheck != nil {
		policy = *h.LastPolicyCheck
	}
	return
}

// runSettingsMonitor applies control-plane settings changed since the last
// successful run: metadata token and rate swaps.
func (r *Registry) runSettingsMonitor(ctx context.Context) (*models.JobResult, error) {
	h, err := r.ctx.Catalog.Jobs.GetJobHistory("settings-monitor", "")
	if err != nil {
		return nil, err
	}
	changed, err := r.ctx.Catalog.Settings.GetChangedSince(settingsWindow(h))
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	for _, s := range changed {
		r.applySetting(s)
	}
	return &models.JobResult{Counts: map[string]int{"settings": len(changed)}}, nil
}

func (r *Registry) applySetting(s *models.Setting) {
	switch s.Key {
	case "mdb_token":
		r.ctx.MDB.SetToken(s.Value)
		log.Printf("[jobs] metadata token updated")
	case "mdb_rate_concurrent", "mdb_rate_duration_seconds":
		r.retuneMetadataLimiter()
	default:
		log.Printf("[jobs] setting %s changed, no handler", s.Key)
	}
}

func (r *Registry) retuneMetadataLimiter() {
	concurrent := settingInt(r.ctx, "mdb_rate_concurrent", 0)
	duration := settingInt(r.ctx, "mdb_rate_duration_seconds", 0)
	if concurrent <= 0 || duration <= 0 {
		return
	}
	r.ctx.MDB.Limiter().Update(concurrent, time.Duration(duration)*time.Second)
	log.Printf("[jobs] metadata rate set to %d per %ds", concurrent, duration)
}

func settingInt(ctx *app.Context, key string, fallback int) int {
	v, err := ctx.Catalog.Settings.Get(key)
	if err != nil || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// runConfigMonitor reconciles the three incremental watermarks: provider
// changes become lifecycle actions for the cleanup job, settings changes are
// re-applied (idempotent, same handlers as settings-monitor), and policy
// changes reload the cache's TTL table.
func (r *Registry) runConfigMonitor(ctx context.Context) (*models.JobResult, error) {
	h, err := r.ctx.Catalog.Jobs.GetJobHistory("config-monitor", "")
	if err != nil {
		return nil, err
	}
	providerSince, settingsSince, policySince := configWindows(h)
	now := time.Now().UTC()

	changed, err := r.ctx.Catalog.Providers.GetProvidersChangedSince(providerSince)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	for _, p := range changed {
		live := r.ctx.Adapter(p.ID) != nil
		switch {
		case p.Deleted:
			r.ctx.EnqueueProviderAction(p.ID, models.ActionDeleted)
		case !p.Enabled && live:
			r.ctx.EnqueueProviderAction(p.ID, models.ActionDisabled)
		case p.Enabled && !live:
			r.ctx.EnqueueProviderAction(p.ID, models.ActionCreated)
		case p.Enabled:
			r.ctx.EnqueueProviderAction(p.ID, models.ActionCategoriesChanged)
		}
	}
	if len(changed) > 0 {
		// A merge built on the old provider set would persist stale source
		// inversions. Abort it; the next armed run sees the new set.
		r.sched.Cancel("merge-catalog")
	}

	changedSettings, err := r.ctx.Catalog.Settings.GetChangedSince(settingsSince)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	for _, s := range changedSettings {
		r.applySetting(s)
	}

	policiesChanged, err := r.ctx.Catalog.Policies.ChangedSince(policySince)
	if err != nil {
		return nil, fmt.Errorf("policies: %w", err)
	}
	if policiesChanged {
		policies, err := r.ctx.Catalog.Policies.GetAll()
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		r.ctx.Cache.Register(policies)
		log.Printf("[jobs] reloaded %d cache policies", len(policies))
	}

	for _, column := range []string{"last_provider_check", "last_settings_check", "last_policy_check"} {
		if err := r.ctx.Catalog.Jobs.UpdateCheckTimestamp("config-monitor", column, now); err != nil {
			return nil, err
		}
	}
	return &models.JobResult{Counts: map[string]int{
		"providers": len(changed), "settings": len(changedSettings),
	}}, nil
}

// ──────────────────── Cleanup ────────────────────

// runProviderCleanup drains the action queue. Deletion tears everything
// down including the provider's catalog contribution; disabling keeps the
// raw titles but strips the provider from the canonical catalog.
func (r *Registry) runProviderCleanup(ctx context.Context) (*models.JobResult, error) {
	drained := r.ctx.GetAndClearProviderActionQueue()
	counts := map[string]int{}
	for providerID, actions := range drained {
		for _, action := range actions {
			if err := r.applyProviderAction(ctx, providerID, action); err != nil {
				log.Printf("[jobs] provider %s action %s: %v", providerID, action, err)
				continue
			}
			counts[string(action)]++
		}
	}
	return &models.JobResult{Counts: counts}, nil
}

func (r *Registry) applyProviderAction(ctx context.Context, providerID string, action models.ProviderAction) error {
	switch action {
	case models.ActionCreated, models.ActionEnabled:
		cfg, err := r.ctx.Catalog.Providers.GetProvider(providerID)
		if err != nil {
			return err
		}
		if cfg == nil || !cfg.Enabled || cfg.Deleted {
			return nil
		}
		if err := r.RegisterProvider(cfg); err != nil {
			return err
		}
		if err := r.queue.Enqueue(fetchCategoriesJob(providerID)); err != nil {
			return err
		}
		return r.queue.Enqueue(fetchMetadataJob(providerID))

	case models.ActionDisabled:
		r.UnregisterProvider(providerID)
		return r.stripProviderStreams(providerID)

	case models.ActionDeleted:
		r.UnregisterProvider(providerID)
		if err := r.stripProviderStreams(providerID); err != nil {
			return err
		}
		if _, err := r.ctx.Catalog.DeleteProviderTitles(providerID); err != nil {
			return err
		}
		return r.ctx.Catalog.Categories.DeleteCategories(providerID)

	case models.ActionCategoriesChanged:
		cfg, err := r.ctx.Catalog.Providers.GetProvider(providerID)
		if err != nil {
			return err
		}
		if cfg == nil || !cfg.Enabled || cfg.Deleted {
			return nil
		}
		// Rebuild the adapter so rate, credentials and category filters
		// take effect, then re-ingest.
		if err := r.RegisterProvider(cfg); err != nil {
			return err
		}
		return r.queue.Enqueue(fetchMetadataJob(providerID))
	}
	return fmt.Errorf("unknown action %q", action)
}

// stripProviderStreams removes the provider from every canonical title and
// drops its stream documents.
func (r *Registry) stripProviderStreams(providerID string) error {
	res, err := r.ctx.Catalog.RemoveProviderFromTitles(providerID, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := r.ctx.Catalog.DeleteProviderTitleStreams(providerID); err != nil {
		return err
	}
	log.Printf("[jobs] provider %s removed from catalog: %d titles updated, %d deleted, %d streams",
		providerID, res.TitlesUpdated, res.TitlesDeleted, res.StreamsRemoved)
	return nil
}

package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/progress"
	"github.com/mfleet/streamvault/internal/repository"
)

// fakeAdapter returns a scripted listing and delegates skip decisions to an
// optional hook.
type fakeAdapter struct {
	cfg        *models.ProviderConfig
	raws       []*RawTitle
	categories bool
	extErr     map[string]error
	skip       func(raw *RawTitle, existing *models.ProviderTitle) bool
}

func (f *fakeAdapter) Config() *models.ProviderConfig { return f.cfg }
func (f *fakeAdapter) SupportsCategories() bool       { return f.categories }
func (f *fakeAdapter) BatchSize() int                 { return 0 }

func (f *fakeAdapter) FetchRawTitles(ctx context.Context, t models.MediaType) ([]*RawTitle, error) {
	return f.raws, nil
}

func (f *fakeAdapter) FetchExtendedInfo(ctx context.Context, raw *RawTitle) error {
	if err, ok := f.extErr[raw.TitleID]; ok {
		return err
	}
	return nil
}

func (f *fakeAdapter) ShouldSkip(raw *RawTitle, existing *models.ProviderTitle) bool {
	if f.skip != nil {
		return f.skip(raw, existing)
	}
	return false
}

func (f *fakeAdapter) FetchCategories(ctx context.Context, t models.MediaType) ([]*models.Category, error) {
	return nil, nil
}

// fakeStore keeps saved titles in memory and can fail a scripted number of
// saves.
type fakeStore struct {
	mu       sync.Mutex
	existing []*models.ProviderTitle
	saved    []*models.ProviderTitle
	ignored  map[string][]string
	failures int
	saves    int
}

func (f *fakeStore) GetProviderTitles(providerID string, _ repository.TitleFilter) ([]*models.ProviderTitle, error) {
	return f.existing, nil
}

func (f *fakeStore) SaveProviderTitles(providerID string, titles []*models.ProviderTitle) (repository.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failures > 0 {
		f.failures--
		return repository.SaveResult{}, errors.New("store unavailable")
	}
	f.saved = append(f.saved, titles...)
	return repository.SaveResult{Inserted: len(titles)}, nil
}

func (f *fakeStore) SaveAllIgnoredTitles(providerID string, byReason map[string][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ignored == nil {
		f.ignored = make(map[string][]string)
	}
	for reason, keys := range byReason {
		f.ignored[reason] = append(f.ignored[reason], keys...)
	}
	return nil
}

func (f *fakeStore) savedKeys() map[string]*models.ProviderTitle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*models.ProviderTitle, len(f.saved))
	for _, t := range f.saved {
		out[t.TitleKey] = t
	}
	return out
}

// fakeMatcher resolves by title; absent titles are no-matches.
type fakeMatcher struct {
	ids  map[string]int
	errs map[string]error
}

func (f *fakeMatcher) Match(ctx context.Context, in MatchInput) (int, error) {
	if err, ok := f.errs[in.Title]; ok {
		return 0, err
	}
	return f.ids[in.Title], nil
}

func pipelineConfig() *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:      "p1",
		Kind:    models.ProviderXtream,
		Enabled: true,
		APIRate: models.APIRate{Concurrent: 2, DurationSeconds: 1},
	}
}

func newTestPipeline(a Adapter, s Store, m Matcher) *Pipeline {
	return NewPipeline(a, s, m, progress.New(time.Hour, nil))
}

func TestPipeline_filterRules(t *testing.T) {
	cfg := pipelineConfig()
	cfg.EnabledCategories = map[models.MediaType][]string{
		models.MediaTypeMovies: {"7"},
	}
	adapter := &fakeAdapter{
		cfg:        cfg,
		categories: true,
		raws: []*RawTitle{
			{TitleID: "", Title: "No ID", Type: models.MediaTypeMovies},
			{TitleID: "1", Title: "Kept", Type: models.MediaTypeMovies, CategoryID: "7"},
			{TitleID: "2", Title: "Wrong Category", Type: models.MediaTypeMovies, CategoryID: "9"},
			{TitleID: "3", Title: "Permanently Ignored", Type: models.MediaTypeMovies, CategoryID: "7"},
			{TitleID: "4", Title: "Retryable", Type: models.MediaTypeMovies, CategoryID: "7"},
			{TitleID: "5", Title: "Unchanged", Type: models.MediaTypeMovies, CategoryID: "7"},
		},
		skip: func(raw *RawTitle, existing *models.ProviderTitle) bool {
			return raw.TitleID == "5"
		},
	}
	store := &fakeStore{existing: []*models.ProviderTitle{
		{TitleKey: "movies-3", Ignored: true, IgnoredReason: "manually excluded"},
		{TitleKey: "movies-4", Ignored: true, IgnoredReason: ReasonMatchFailed},
	}}
	matcher := &fakeMatcher{ids: map[string]int{"Kept": 100, "Retryable": 200}}

	p := newTestPipeline(adapter, store, matcher)
	if err := p.FetchMetadata(context.Background(), models.MediaTypeMovies); err != nil {
		t.Fatal(err)
	}

	saved := store.savedKeys()
	if len(saved) != 2 {
		t.Fatalf("saved %d titles, want 2: %v", len(saved), saved)
	}
	if saved["movies-1"] == nil || saved["movies-1"].TMDBID != 100 {
		t.Errorf("movies-1 = %+v", saved["movies-1"])
	}
	// The previously match-failed entry is retried and now resolves.
	if saved["movies-4"] == nil || saved["movies-4"].TMDBID != 200 || saved["movies-4"].Ignored {
		t.Errorf("movies-4 = %+v", saved["movies-4"])
	}
}

func TestPipeline_matchFailureIgnores(t *testing.T) {
	adapter := &fakeAdapter{
		cfg: pipelineConfig(),
		raws: []*RawTitle{
			{TitleID: "1", Title: "Resolves", Type: models.MediaTypeMovies},
			{TitleID: "2", Title: "Unknown", Type: models.MediaTypeMovies},
		},
	}
	store := &fakeStore{}
	matcher := &fakeMatcher{ids: map[string]int{"Resolves": 100}}

	p := newTestPipeline(adapter, store, matcher)
	if err := p.FetchMetadata(context.Background(), models.MediaTypeMovies); err != nil {
		t.Fatal(err)
	}

	saved := store.savedKeys()
	if got := saved["movies-2"]; got == nil || !got.Ignored || got.IgnoredReason != ReasonMatchFailed {
		t.Errorf("movies-2 = %+v", got)
	}
	if keys := store.ignored[ReasonMatchFailed]; len(keys) != 1 || keys[0] != "movies-2" {
		t.Errorf("ignored keys = %v", store.ignored)
	}
	if got := saved["movies-1"]; got == nil || got.Ignored {
		t.Errorf("movies-1 = %+v", got)
	}
}

func TestPipeline_extendedInfoFailureIgnores(t *testing.T) {
	adapter := &fakeAdapter{
		cfg: pipelineConfig(),
		raws: []*RawTitle{
			{TitleID: "1", Title: "Flaky", Type: models.MediaTypeTVShows},
		},
		extErr: map[string]error{"1": errors.New("timeout")},
	}
	store := &fakeStore{}

	p := newTestPipeline(adapter, store, &fakeMatcher{})
	if err := p.FetchMetadata(context.Background(), models.MediaTypeTVShows); err != nil {
		t.Fatal(err)
	}

	got := store.savedKeys()["tvshows-1"]
	if got == nil || !got.Ignored {
		t.Fatalf("tvshows-1 = %+v", got)
	}
	want := ReasonExtendedInfoError + "timeout"
	if got.IgnoredReason != want {
		t.Errorf("reason = %q, want %q", got.IgnoredReason, want)
	}
	if !RetryableReason(got.IgnoredReason) {
		t.Error("extended-info reason not retryable")
	}
}

func TestPipeline_upstreamTMDBSkipsMatcher(t *testing.T) {
	adapter := &fakeAdapter{
		cfg: pipelineConfig(),
		raws: []*RawTitle{
			{TitleID: "1", Title: "Pre-resolved", Type: models.MediaTypeMovies, TMDBID: 550},
		},
	}
	store := &fakeStore{}
	matcher := &fakeMatcher{errs: map[string]error{
		"Pre-resolved": errors.New("matcher must not be called"),
	}}

	p := newTestPipeline(adapter, store, matcher)
	if err := p.FetchMetadata(context.Background(), models.MediaTypeMovies); err != nil {
		t.Fatal(err)
	}
	got := store.savedKeys()["movies-1"]
	if got == nil || got.TMDBID != 550 || got.Ignored {
		t.Errorf("movies-1 = %+v", got)
	}
}

func TestPipeline_cleanupRulesApplied(t *testing.T) {
	cfg := pipelineConfig()
	cfg.CleanupRules = []models.CleanupRule{
		{Pattern: `^\[4K\]\s*`, Replacement: ""},
		{Pattern: `\s+$`, Replacement: ""},
	}
	adapter := &fakeAdapter{
		cfg: cfg,
		raws: []*RawTitle{
			{TitleID: "1", Title: "[4K] Dune ", Type: models.MediaTypeMovies},
		},
	}
	store := &fakeStore{}
	matcher := &fakeMatcher{ids: map[string]int{"Dune": 438631}}

	p := newTestPipeline(adapter, store, matcher)
	if err := p.FetchMetadata(context.Background(), models.MediaTypeMovies); err != nil {
		t.Fatal(err)
	}
	got := store.savedKeys()["movies-1"]
	if got == nil || got.Title != "Dune" || got.TMDBID != 438631 {
		t.Errorf("movies-1 = %+v", got)
	}
}

func TestPipeline_flushFailureKeepsItems(t *testing.T) {
	adapter := &fakeAdapter{
		cfg: pipelineConfig(),
		raws: []*RawTitle{
			{TitleID: "1", Title: "Kept", Type: models.MediaTypeMovies},
		},
	}
	store := &fakeStore{failures: 1}
	matcher := &fakeMatcher{ids: map[string]int{"Kept": 100}}

	p := newTestPipeline(adapter, store, matcher)
	if err := p.FetchMetadata(context.Background(), models.MediaTypeMovies); err != nil {
		t.Fatal(err)
	}
	// The final flush failed; nothing was persisted but the accumulator
	// still holds the item.
	if len(store.savedKeys()) != 0 {
		t.Fatalf("saved = %v after failed flush", store.savedKeys())
	}

	p.flush("p1")()
	got := store.savedKeys()["movies-1"]
	if got == nil || got.TMDBID != 100 {
		t.Errorf("movies-1 = %+v after retry flush", got)
	}
	if store.saves != 2 {
		t.Errorf("saves = %d, want 2", store.saves)
	}
}

func TestPipeline_defaultBatchSize(t *testing.T) {
	cfg := pipelineConfig()
	cfg.APIRate.Concurrent = 8
	p := newTestPipeline(&fakeAdapter{cfg: cfg}, &fakeStore{}, &fakeMatcher{})
	if got := p.batchSize(); got != 16 {
		t.Errorf("batchSize = %d, want 16", got)
	}
	cfg.APIRate.Concurrent = 200
	if got := p.batchSize(); got != maxBatchSize {
		t.Errorf("batchSize = %d, want %d", got, maxBatchSize)
	}
}

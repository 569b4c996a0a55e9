package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

func xtreamConfig(apiURL string) *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:       "xt-1",
		Kind:     models.ProviderXtream,
		APIURL:   apiURL,
		Username: "user",
		Password: "pass",
		Enabled:  true,
		APIRate:  models.APIRate{Concurrent: 4, DurationSeconds: 1},
	}
}

// xtreamServer answers player_api.php by action, one JSON body per action.
func xtreamServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player_api.php" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("username") != "user" || q.Get("password") != "pass" {
			t.Errorf("missing credentials in %s", r.URL.RawQuery)
		}
		body, ok := responses[q.Get("action")]
		if !ok {
			t.Errorf("unexpected action %q", q.Get("action"))
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
}

func TestXtream_fetchVODStreams(t *testing.T) {
	// stream_id arrives as a number on one entry and a string on the other.
	srv := xtreamServer(t, map[string]string{
		"get_vod_streams": `[
			{"name":"Dune","stream_id":101,"category_id":"7","container_extension":"mkv","added":"1700000000","tmdb":438631},
			{"name":"Arrival","stream_id":"102","category_id":7,"added":""}
		]`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	raws, err := x.FetchRawTitles(context.Background(), models.MediaTypeMovies)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 2 {
		t.Fatalf("got %d titles, want 2", len(raws))
	}
	dune := raws[0]
	if dune.TitleID != "101" || dune.TMDBID != 438631 || dune.CategoryID != "7" {
		t.Errorf("dune = %+v", dune)
	}
	wantURL := srv.URL + "/movie/user/pass/101.mkv"
	if got := dune.Streams[models.StreamKeyMain]; got != wantURL {
		t.Errorf("stream URL = %q, want %q", got, wantURL)
	}
	if dune.Modified != time.Unix(1700000000, 0).UTC() {
		t.Errorf("Modified = %v", dune.Modified)
	}
	arrival := raws[1]
	if arrival.TitleID != "102" || arrival.CategoryID != "7" {
		t.Errorf("arrival = %+v", arrival)
	}
	if got := arrival.Streams[models.StreamKeyMain]; got != srv.URL+"/movie/user/pass/102.mp4" {
		t.Errorf("default extension URL = %q", got)
	}
	if !arrival.Modified.IsZero() {
		t.Errorf("empty added parsed to %v", arrival.Modified)
	}
}

func TestXtream_fetchSeries(t *testing.T) {
	srv := xtreamServer(t, map[string]string{
		"get_series": `[
			{"name":"Severance","series_id":"55","category_id":"3","last_modified":"1700000100","releaseDate":"2022-02-18"}
		]`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	raws, err := x.FetchRawTitles(context.Background(), models.MediaTypeTVShows)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 1 {
		t.Fatalf("got %d titles, want 1", len(raws))
	}
	s := raws[0]
	if s.TitleID != "55" || s.Title != "Severance" || s.ReleaseDate != "2022-02-18" {
		t.Errorf("series = %+v", s)
	}
	if len(s.Streams) != 0 {
		t.Errorf("series listing carries %d streams before the info call", len(s.Streams))
	}
}

func TestXtream_entryWithoutIDKeptForInvalidCount(t *testing.T) {
	srv := xtreamServer(t, map[string]string{
		"get_vod_streams": `[{"name":"Broken","stream_id":null}]`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	raws, err := x.FetchRawTitles(context.Background(), models.MediaTypeMovies)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 1 || raws[0].TitleID != "" {
		t.Fatalf("raws = %+v, want one id-less entry", raws)
	}
}

func TestXtream_fetchExtendedInfoMovie(t *testing.T) {
	srv := xtreamServer(t, map[string]string{
		"get_vod_info": `{"info":{"tmdb_id":"329865","releasedate":"2016-11-11"}}`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	raw := &RawTitle{TitleID: "102", Type: models.MediaTypeMovies,
		Streams: map[string]string{models.StreamKeyMain: "u"}}
	if err := x.FetchExtendedInfo(context.Background(), raw); err != nil {
		t.Fatal(err)
	}
	if raw.TMDBID != 329865 || raw.ReleaseDate != "2016-11-11" {
		t.Errorf("raw = %+v", raw)
	}
	if raw.Streams[models.StreamKeyMain] != "u" {
		t.Error("movie streams overwritten by info call")
	}
}

func TestXtream_fetchExtendedInfoSeries(t *testing.T) {
	srv := xtreamServer(t, map[string]string{
		"get_series_info": `{
			"info":{"tmdb":95396,"releaseDate":"2022-02-18"},
			"episodes":{
				"1":[
					{"id":"9001","episode_num":1,"season":1,"container_extension":"mkv"},
					{"id":"9002","episode_num":"2"}
				],
				"2":[{"id":9101,"episode_num":1,"season":2}]
			}
		}`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	raw := &RawTitle{TitleID: "55", Type: models.MediaTypeTVShows}
	if err := x.FetchExtendedInfo(context.Background(), raw); err != nil {
		t.Fatal(err)
	}
	if raw.TMDBID != 95396 {
		t.Errorf("TMDBID = %d", raw.TMDBID)
	}
	if len(raw.Streams) != 3 {
		t.Fatalf("got %d streams, want 3: %v", len(raw.Streams), raw.Streams)
	}
	if got := raw.Streams["S01-E01"]; got != srv.URL+"/series/user/pass/9001.mkv" {
		t.Errorf("S01-E01 = %q", got)
	}
	// Season omitted on the episode falls back to the map key; extension
	// defaults to mp4.
	if got := raw.Streams["S01-E02"]; got != srv.URL+"/series/user/pass/9002.mp4" {
		t.Errorf("S01-E02 = %q", got)
	}
	if got := raw.Streams["S02-E01"]; got != srv.URL+"/series/user/pass/9101.mp4" {
		t.Errorf("S02-E01 = %q", got)
	}
}

func TestXtream_fetchCategories(t *testing.T) {
	srv := xtreamServer(t, map[string]string{
		"get_series_categories": `[
			{"category_id":"3","category_name":"Drama"},
			{"category_id":4,"category_name":"Sci-Fi"}
		]`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	cats, err := x.FetchCategories(context.Background(), models.MediaTypeTVShows)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 2 {
		t.Fatalf("got %d categories, want 2", len(cats))
	}
	if cats[0].CategoryKey != "tvshows-3" || cats[0].Name != "Drama" || cats[0].Type != models.MediaTypeTVShows {
		t.Errorf("first category = %+v", cats[0])
	}
	if cats[1].CategoryKey != "tvshows-4" {
		t.Errorf("numeric category_id = %q", cats[1].CategoryKey)
	}
}

func TestXtream_categoryKeysDistinctAcrossTypes(t *testing.T) {
	// VOD and series category ids are independent upstream spaces; the same
	// numeric id must not collapse onto one (provider_id, category_key) row.
	srv := xtreamServer(t, map[string]string{
		"get_vod_categories":    `[{"category_id":"3","category_name":"Action Movies"}]`,
		"get_series_categories": `[{"category_id":"3","category_name":"Drama Series"}]`,
	})
	defer srv.Close()

	x := NewXtream(xtreamConfig(srv.URL), newTestCache(t))
	defer x.Close()

	movies, err := x.FetchCategories(context.Background(), models.MediaTypeMovies)
	if err != nil {
		t.Fatal(err)
	}
	series, err := x.FetchCategories(context.Background(), models.MediaTypeTVShows)
	if err != nil {
		t.Fatal(err)
	}
	if movies[0].CategoryKey != "movies-3" {
		t.Errorf("movie key = %q", movies[0].CategoryKey)
	}
	if series[0].CategoryKey != "tvshows-3" {
		t.Errorf("series key = %q", series[0].CategoryKey)
	}
	if movies[0].CategoryKey == series[0].CategoryKey {
		t.Error("same upstream id collides across media types")
	}
}

func TestXtream_shouldSkip(t *testing.T) {
	x := &Xtream{cfg: xtreamConfig("http://host")}
	now := time.Now().UTC()

	raw := &RawTitle{TitleID: "101", Modified: now.Add(-time.Hour)}
	stored := &models.ProviderTitle{LastUpdated: now}
	if !x.ShouldSkip(raw, stored) {
		t.Error("stale upstream stamp not skipped")
	}
	raw.Modified = now.Add(time.Hour)
	if x.ShouldSkip(raw, stored) {
		t.Error("newer upstream stamp skipped")
	}
	if x.ShouldSkip(raw, nil) {
		t.Error("new title skipped")
	}
	stored.Ignored = true
	raw.Modified = now.Add(-time.Hour)
	if x.ShouldSkip(raw, stored) {
		t.Error("ignored title skipped instead of retried")
	}

	// No stamp: key-set comparison decides.
	noStamp := &RawTitle{TitleID: "102",
		Streams: map[string]string{models.StreamKeyMain: "u"}}
	same := &models.ProviderTitle{Streams: map[string]string{models.StreamKeyMain: "x"}}
	if !x.ShouldSkip(noStamp, same) {
		t.Error("unchanged key set not skipped")
	}
}

func TestFlexTypes(t *testing.T) {
	var v struct {
		N flexInt    `json:"n"`
		S flexString `json:"s"`
	}
	for _, tt := range []struct {
		in string
		n  int
		s  string
	}{
		{`{"n":7,"s":"abc"}`, 7, "abc"},
		{`{"n":"7","s":42}`, 7, "42"},
		{`{"n":null,"s":null}`, 0, ""},
		{`{"n":"garbage","s":"x"}`, 0, "x"},
	} {
		v.N, v.S = 0, ""
		if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if int(v.N) != tt.n || string(v.S) != tt.s {
			t.Errorf("%s: got (%d, %q), want (%d, %q)", tt.in, v.N, v.S, tt.n, tt.s)
		}
	}
}

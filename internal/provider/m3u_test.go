package provider

import "testing"

const sampleM3U = `#EXTM3U
#EXTINF:-1 tvg-id="tt0111161" tvg-name="The Shawshank Redemption (1994)" tvg-type="movie" tvg-logo="http://img/shawshank.jpg" group-title="Drama",The Shawshank Redemption (1994)
http://host/movies/tt0111161.mp4
#EXTGRP:ignored
#EXTINF:-1 tvg-id="tt0108778" tvg-name="Friends" tvg-type="tvshow",Friends S01 E01
http://host/series/tt0108778/1/1.mkv
`

func TestParseM3U_pairsEntries(t *testing.T) {
	entries := parseM3U(sampleM3U)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0]
	if first.TvgID != "tt0111161" {
		t.Errorf("TvgID = %q", first.TvgID)
	}
	if first.TvgName != "The Shawshank Redemption (1994)" {
		t.Errorf("TvgName = %q", first.TvgName)
	}
	if first.TvgType != "movie" {
		t.Errorf("TvgType = %q", first.TvgType)
	}
	if first.Logo != "http://img/shawshank.jpg" {
		t.Errorf("Logo = %q", first.Logo)
	}
	if first.GroupTitle != "Drama" {
		t.Errorf("GroupTitle = %q", first.GroupTitle)
	}
	if first.Name != "The Shawshank Redemption (1994)" {
		t.Errorf("Name = %q", first.Name)
	}
	if first.URL != "http://host/movies/tt0111161.mp4" {
		t.Errorf("URL = %q", first.URL)
	}
	if entries[1].Name != "Friends S01 E01" {
		t.Errorf("second Name = %q", entries[1].Name)
	}
}

func TestParseM3U_orphanURLSkipped(t *testing.T) {
	entries := parseM3U("http://host/stray.mp4\n")
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestParseExtinf_nameWithCommas(t *testing.T) {
	e := parseExtinf(`#EXTINF:-1 tvg-id="tt1" group-title="Action, Adventure",Me, Myself & Irene (2000)`)
	if e.Name != "Me, Myself & Irene (2000)" {
		t.Errorf("Name = %q", e.Name)
	}
	if e.GroupTitle != "Action, Adventure" {
		t.Errorf("GroupTitle = %q", e.GroupTitle)
	}
}

func TestParseSeasonEpisode(t *testing.T) {
	tests := []struct {
		url             string
		season, episode int
		ok              bool
	}{
		{"http://host/series/tt1/1/5.mp4", 1, 5, true},
		{"http://host/series/tt1/12/103.mkv", 12, 103, true},
		{"http://host/series/tt1/2/7.mp4?token=abc", 2, 7, true},
		{"http://host/series/tt1/extras/trailer.mp4", 0, 0, false},
		{"http://host/movie.mp4", 0, 0, false},
	}
	for _, tt := range tests {
		s, e, ok := parseSeasonEpisode(tt.url)
		if ok != tt.ok || s != tt.season || e != tt.episode {
			t.Errorf("parseSeasonEpisode(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.url, s, e, ok, tt.season, tt.episode, tt.ok)
		}
	}
}

func TestBaseShowName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Friends S01 E01", "Friends"},
		{"Friends S10 E18", "Friends"},
		{"Severance", "Severance"},
	}
	for _, tt := range tests {
		if got := baseShowName(tt.in); got != tt.want {
			t.Errorf("baseShowName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameStreamKeys(t *testing.T) {
	a := map[string]string{"S01-E01": "u1", "S01-E02": "u2"}
	b := map[string]string{"S01-E01": "x", "S01-E02": "y"}
	if !sameStreamKeys(a, b) {
		t.Error("equal key sets reported different")
	}
	b["S01-E03"] = "z"
	if sameStreamKeys(a, b) {
		t.Error("different sizes reported same")
	}
	delete(b, "S01-E02")
	delete(b, "S01-E03")
	b["S02-E01"] = "w"
	if sameStreamKeys(a, b) {
		t.Error("different keys reported same")
	}
}

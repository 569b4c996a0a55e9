package models

import "testing"

func TestTitleKey_roundTrip(t *testing.T) {
	cases := []struct {
		typ MediaType
		id  string
	}{
		{MediaTypeMovies, "278"},
		{MediaTypeTVShows, "1399"},
		{MediaTypeMovies, "tt0111161"},
		{MediaTypeTVShows, "abc-def-123"},
	}
	for _, c := range cases {
		key := TitleKey(c.typ, c.id)
		typ, id, err := ParseTitleKey(key)
		if err != nil {
			t.Fatalf("ParseTitleKey(%q): %v", key, err)
		}
		if typ != c.typ || id != c.id {
			t.Errorf("round trip %q: got (%s, %s), want (%s, %s)", key, typ, id, c.typ, c.id)
		}
	}
}

func TestTitleKeyInt(t *testing.T) {
	if got := TitleKeyInt(MediaTypeMovies, 278); got != "movies-278" {
		t.Errorf("TitleKeyInt: %s", got)
	}
}

func TestParseTitleKey_rejects(t *testing.T) {
	for _, key := range []string{"", "movies", "music-1", "movies-", "nodash"} {
		if _, _, err := ParseTitleKey(key); err == nil {
			t.Errorf("ParseTitleKey(%q) should fail", key)
		}
	}
}

func TestStreamKey(t *testing.T) {
	if got := StreamKey(1, 2); got != "S01-E02" {
		t.Errorf("StreamKey(1,2) = %s", got)
	}
	if got := StreamKey(12, 345); got != "S12-E345" {
		t.Errorf("StreamKey(12,345) = %s", got)
	}
	s, e, ok := ParseStreamKey("S03-E07")
	if !ok || s != 3 || e != 7 {
		t.Errorf("ParseStreamKey(S03-E07) = %d, %d, %v", s, e, ok)
	}
	if _, _, ok := ParseStreamKey(StreamKeyMain); ok {
		t.Error("main should not parse as an episode key")
	}
}

func TestYearOf(t *testing.T) {
	if y := YearOf("1994-09-23"); y != 1994 {
		t.Errorf("YearOf: %d", y)
	}
	if y := YearOf(""); y != 0 {
		t.Errorf("YearOf empty: %d", y)
	}
	if y := YearOf("n/a"); y != 0 {
		t.Errorf("YearOf garbage: %d", y)
	}
}

func TestCategoryEnabled(t *testing.T) {
	p := &ProviderConfig{EnabledCategories: map[MediaType][]string{
		MediaTypeMovies: {"1", "7"},
	}}
	if !p.CategoryEnabled(MediaTypeMovies, "7") {
		t.Error("7 should be enabled")
	}
	if p.CategoryEnabled(MediaTypeMovies, "9") {
		t.Error("9 should be disabled")
	}
	// No list for tvshows: everything passes.
	if !p.CategoryEnabled(MediaTypeTVShows, "anything") {
		t.Error("missing list should accept all")
	}
}

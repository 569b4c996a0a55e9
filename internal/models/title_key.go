package models

import (
	"fmt"
	"strings"
)

// StreamKeyMain is the single stream key used by movie titles.
const StreamKeyMain = "main"

// TitleKey builds the synthetic "{type}-{id}" natural key shared by provider
// and canonical title spaces.
func TitleKey(t MediaType, id string) string {
	return string(t) + "-" + id
}

// TitleKeyInt is TitleKey for canonical (numeric) ids.
func TitleKeyInt(t MediaType, id int) string {
	return fmt.Sprintf("%s-%d", t, id)
}

// CategoryKey builds the "{type}-{category_id}" natural key. Upstream VOD
// and series category ids are independent numeric spaces, so the bare id is
// not unique per provider.
func CategoryKey(t MediaType, id string) string {
	return string(t) + "-" + id
}

// ParseTitleKey splits a "{type}-{id}" key back into its parts. The id may
// itself contain '-', so only the first separator after a valid type counts.
func ParseTitleKey(key string) (MediaType, string, error) {
	i := strings.IndexByte(key, '-')
	if i < 0 {
		return "", "", fmt.Errorf("malformed title key %q", key)
	}
	t := MediaType(key[:i])
	if !t.Valid() {
		return "", "", fmt.Errorf("unknown media type in title key %q", key)
	}
	id := key[i+1:]
	if id == "" {
		return "", "", fmt.Errorf("empty id in title key %q", key)
	}
	return t, id, nil
}

// StreamKey builds the canonical "Sxx-Exx" episode key.
func StreamKey(season, episode int) string {
	return fmt.Sprintf("S%02d-E%02d", season, episode)
}

// ParseStreamKey parses "Sxx-Exx" back into season and episode numbers.
// Returns ok=false for the movie key "main" and anything else non-episodic.
func ParseStreamKey(key string) (season, episode int, ok bool) {
	if _, err := fmt.Sscanf(key, "S%02d-E%02d", &season, &episode); err != nil {
		return 0, 0, false
	}
	return season, episode, true
}

package merge

import (
	"fmt"
	"strings"

	"github.com/mfleet/streamvault/internal/models"
)

// tvgType maps the catalog type to the playlist vocabulary.
func tvgType(t models.MediaType) string {
	if t == models.MediaTypeTVShows {
		return "series"
	}
	return "movie"
}

// displayName is "{title} ({year})", or just the title when the year is
// unknown.
func displayName(ct *models.CanonicalTitle) string {
	if y := ct.Year(); y > 0 {
		return fmt.Sprintf("%s (%d)", sanitizeName(ct.Title), y)
	}
	return sanitizeName(ct.Title)
}

// titleDir is the per-title directory of the proxy layout:
// "{type}/{title} ({year}) [tmdb={id}]".
func titleDir(ct *models.CanonicalTitle) string {
	return fmt.Sprintf("%s/%s [tmdb=%d]", ct.Type, displayName(ct), ct.TitleID)
}

// sanitizeName strips characters that cannot appear in the proxy's file
// layout.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\x00':
			return -1
		}
		return r
	}, s)
}

// streamDocuments expands one canonical title and its group members into the
// per-(stream, provider) documents the downstream proxy serves.
func streamDocuments(ct *models.CanonicalTitle, members []*models.ProviderTitle) []*models.StreamDocument {
	name := displayName(ct)
	dir := titleDir(ct)
	group := strings.Join(ct.Genres, ", ")

	var docs []*models.StreamDocument
	for _, pt := range members {
		for sk, url := range pt.Streams {
			// Keys the canonical title dropped (unknown episodes) emit no doc.
			if _, ok := ct.Streams[sk]; !ok {
				continue
			}
			doc := &models.StreamDocument{
				TitleKey:   ct.TitleKey,
				StreamID:   sk,
				ProviderID: pt.ProviderID,
				TvgType:    tvgType(ct.Type),
				TvgLogo:    ct.PosterPath,
				GroupTitle: group,
				ProxyURL:   url,
			}
			if ct.Type == models.MediaTypeMovies {
				doc.TvgID = fmt.Sprintf("tmdb-%d", ct.TitleID)
				doc.TvgName = name
				doc.ProxyPath = fmt.Sprintf("%s/%s.strm", dir, name)
			} else {
				season, episode, ok := models.ParseStreamKey(sk)
				if !ok {
					continue
				}
				doc.SeasonNum = season
				doc.EpisodeNum = episode
				doc.TvgID = fmt.Sprintf("tmdb-%d-S%02dE%02d", ct.TitleID, season, episode)
				doc.TvgName = fmt.Sprintf("%s S%02dE%02d", name, season, episode)
				doc.ProxyPath = fmt.Sprintf("%s/Season %02d/%s S%02d-E%02d.strm",
					dir, season, name, season, episode)
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

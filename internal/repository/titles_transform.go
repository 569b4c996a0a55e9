package repository

import "github.com/mfleet/streamvault/internal/models"

// StripProviderSources removes providerID from every stream's sources of a
// canonical title, in place. Streams whose sources empty out are deleted
// entirely; streams keeping other sources retain their episode metadata
// untouched. Returns whether anything changed and how many stream entries
// were removed outright.
func StripProviderSources(t *models.CanonicalTitle, providerID string) (changed bool, removed int) {
	for key, stream := range t.Streams {
		idx := -1
		for i, src := range stream.Sources {
			if src == providerID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		changed = true
		stream.Sources = append(stream.Sources[:idx], stream.Sources[idx+1:]...)
		if len(stream.Sources) == 0 {
			delete(t.Streams, key)
			removed++
			continue
		}
		t.Streams[key] = stream
	}
	return changed, removed
}

// Package repository is the typed persistence layer over the catalog
// database. One repository per collection; bulk operations chunk their key
// sets at batchSize to keep statements bounded.
package repository

import (
	"encoding/json"
)

// batchSize bounds every disjunction probe and bulk write.
const batchSize = 1000

// chunkStrings splits keys into slices of at most batchSize.
func chunkStrings(keys []string) [][]string {
	var out [][]string
	for len(keys) > batchSize {
		out = append(out, keys[:batchSize])
		keys = keys[batchSize:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

// mustJSON marshals v for a JSONB column. The models marshal cleanly; a
// failure here is a programming error and surfaces as `null`.
func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}

// unmarshalJSON decodes a JSONB column, treating NULL/empty as absent.
func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

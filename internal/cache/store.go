// Package cache is a file-backed blob store with per-key TTL policies.
// Keys are variadic path parts whose last element is a filename; the policy
// key is the parts joined with '/' minus the filename. Policies may contain
// {providerId} and {tmdbId} wildcard segments.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store caches blobs under root. It is a cache of the authoritative policy
// table in the database; Register merges policies in, the policy monitor
// re-registers on change.
type Store struct {
	root string

	mu       sync.RWMutex
	policies map[string]*float64 // literal policy key → TTL hours (nil = never)
	patterns []policyPattern     // compiled wildcard policies
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache root: %w", err)
	}
	return &Store{
		root:     dir,
		policies: make(map[string]*float64),
	}, nil
}

func (s *Store) path(parts []string) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("cache key must have at least a filename")
	}
	name := parts[len(parts)-1]
	if !strings.Contains(name, ".") {
		return "", fmt.Errorf("cache key filename %q must contain an extension", name)
	}
	for _, p := range parts {
		if p == "" || strings.Contains(p, "..") {
			return "", fmt.Errorf("bad cache key part %q", p)
		}
	}
	return filepath.Join(append([]string{s.root}, parts...)...), nil
}

// PolicyKey is the directory portion of a cache key: all parts but the
// filename, joined with '/'.
func PolicyKey(parts []string) string {
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "/")
}

// Get returns the cached blob, or nil when absent.
func (s *Store) Get(parts ...string) ([]byte, error) {
	p, err := s.path(parts)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// Put writes the blob atomically (temp file + rename) so concurrent readers
// never observe a truncated blob. When ttlHours is non-nil, the matching
// policy is also upserted.
func (s *Store) Put(parts []string, data []byte, ttlHours *float64) error {
	p, err := s.path(parts)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".blob-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("cache: write: %w", writeErr)
		}
		return fmt.Errorf("cache: close: %w", closeErr)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: rename: %w", err)
	}

	if ttlHours != nil {
		s.mu.Lock()
		s.policies[PolicyKey(parts)] = ttlHours
		s.mu.Unlock()
	}
	return nil
}

// IsExpired reports whether the cached blob for the key is stale under the
// resolved policy. Absent blobs are expired; keys with no literal or wildcard
// policy never expire.
func (s *Store) IsExpired(parts ...string) bool {
	p, err := s.path(parts)
	if err != nil {
		return true
	}
	info, err := os.Stat(p)
	if err != nil {
		return true
	}

	ttl, found := s.lookupPolicy(PolicyKey(parts))
	if !found || ttl == nil {
		return false
	}
	age := time.Since(info.ModTime())
	return age > time.Duration(*ttl*float64(time.Hour))
}

// Fetch combines the freshness check and the read: it returns the blob only
// when present and not expired.
func (s *Store) Fetch(parts ...string) ([]byte, bool) {
	if s.IsExpired(parts...) {
		return nil, false
	}
	data, err := s.Get(parts...)
	if err != nil || data == nil {
		return nil, false
	}
	return data, true
}

// Invalidate removes a cached blob. Missing blobs are not an error.
func (s *Store) Invalidate(parts ...string) error {
	p, err := s.path(parts)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

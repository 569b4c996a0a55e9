package cache

import (
	"regexp"
	"strings"
)

// Wildcard segments allowed in policy keys. Each stands for one path segment.
var wildcardSegments = map[string]string{
	"{providerId}": `[^/]+`,
	"{tmdbId}":     `[^/]+`,
}

type policyPattern struct {
	re  *regexp.Regexp
	ttl *float64
}

// Register merges policies into the in-memory table. Keys containing
// wildcard segments are compiled to regexps once, here, so lookups stay
// cheap. Later registrations win on key collision.
func (s *Store) Register(policies map[string]*float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ttl := range policies {
		if !strings.ContainsRune(key, '{') {
			s.policies[key] = ttl
			continue
		}
		re, ok := compileWildcard(key)
		if !ok {
			// Unknown placeholder: treat the key as literal.
			s.policies[key] = ttl
			continue
		}
		replaced := false
		for i := range s.patterns {
			if s.patterns[i].re.String() == re.String() {
				s.patterns[i].ttl = ttl
				replaced = true
				break
			}
		}
		if !replaced {
			s.patterns = append(s.patterns, policyPattern{re: re, ttl: ttl})
		}
	}
}

func compileWildcard(key string) (*regexp.Regexp, bool) {
	segs := strings.Split(key, "/")
	out := make([]string, len(segs))
	sawWildcard := false
	for i, seg := range segs {
		if pat, ok := wildcardSegments[seg]; ok {
			out[i] = pat
			sawWildcard = true
		} else {
			out[i] = regexp.QuoteMeta(seg)
		}
	}
	if !sawWildcard {
		return nil, false
	}
	re, err := regexp.Compile("^" + strings.Join(out, "/") + "$")
	if err != nil {
		return nil, false
	}
	return re, true
}

// lookupPolicy resolves a policy key: literal table first, then wildcard
// patterns. found=false means no policy applies (never expires).
func (s *Store) lookupPolicy(policyKey string) (ttl *float64, found bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ttl, ok := s.policies[policyKey]; ok {
		return ttl, true
	}
	for _, p := range s.patterns {
		if p.re.MatchString(policyKey) {
			return p.ttl, true
		}
	}
	return nil, false
}

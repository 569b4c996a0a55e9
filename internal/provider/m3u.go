package provider

import (
	"bufio"
	"regexp"
	"strings"
)

// maxLineSize bounds one playlist line (some upstreams emit very long URLs).
const maxLineSize = 1 << 20

// m3uEntry is one parsed EXTINF/URL pair.
type m3uEntry struct {
	TvgID      string
	TvgName    string
	TvgType    string
	GroupTitle string
	Logo       string
	Name       string // display name after the attribute list
	URL        string
}

var extinfAttr = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)

// parseM3U scans an M3U8-style listing into entries. Lines that are neither
// EXTINF metadata nor a following URL are skipped.
func parseM3U(content string) []m3uEntry {
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(nil, maxLineSize)

	var entries []m3uEntry
	var pending *m3uEntry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			e := parseExtinf(line)
			pending = &e
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if pending != nil {
			pending.URL = line
			entries = append(entries, *pending)
			pending = nil
		}
	}
	return entries
}

// parseExtinf extracts the quoted attributes and the trailing display name
// of one EXTINF line.
func parseExtinf(line string) m3uEntry {
	var e m3uEntry
	for _, m := range extinfAttr.FindAllStringSubmatch(line, -1) {
		switch m[1] {
		case "tvg-id":
			e.TvgID = m[2]
		case "tvg-name":
			e.TvgName = m[2]
		case "tvg-type":
			e.TvgType = m[2]
		case "tvg-logo":
			e.Logo = m[2]
		case "group-title":
			e.GroupTitle = m[2]
		}
	}
	// Display name: everything after the first comma that follows the last
	// quoted attribute (names themselves may contain commas).
	rest := line
	if q := strings.LastIndex(line, `"`); q >= 0 {
		rest = line[q:]
	}
	if c := strings.Index(rest, ","); c >= 0 {
		e.Name = strings.TrimSpace(rest[c+1:])
	}
	return e
}

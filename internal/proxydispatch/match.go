package proxydispatch

import (
	"strings"

	"github.com/nite-io/wakeproxy/internal/config"
)

// matchResult carries the backend a request resolved to, plus the
// group it was reached through (if any), so start actions can be
// group-aware per spec.md §4.2/§4.4.
type matchResult struct {
	backend *config.Backend
	group   *config.Group
}

// match implements spec.md §4.2's ordered matching: exact Host, then
// first path segment against backend.path, then first path segment
// against an active group's name.
func match(doc *config.Document, host, path string) (matchResult, bool) {
	host = stripPort(host)

	for _, name := range doc.Order {
		b, ok := doc.Containers[name]
		if ok && b.Host != "" && b.Host == host {
			return matchResult{backend: b}, true
		}
	}

	segment := firstPathSegment(path)
	if segment != "" {
		for _, name := range doc.Order {
			b, ok := doc.Containers[name]
			if ok && b.Path != "" && b.Path == segment {
				return matchResult{backend: b}, true
			}
		}

		for _, gname := range doc.GroupOrder {
			g, ok := doc.Groups[gname]
			if !ok || !g.Active || (g.Name != segment && gname != segment) {
				continue
			}
			for _, member := range doc.GroupMembers(gname) {
				if member.Active && member.Host != "" && member.Path != "" {
					return matchResult{backend: member, group: g}, true
				}
			}
		}
	}

	return matchResult{}, false
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

package config

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts either a single string or an array of strings,
// normalizing group.container's mixed shape into an ordered sequence.
func (n *RawNames) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*n = nil
			return nil
		}
		*n = RawNames{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*n = RawNames(many)
		return nil
	}

	return fmt.Errorf("config: containers field must be a string or array of strings")
}

// Validate rejects a document that would leave the engine in an
// inconsistent state: empty or nil entries, dangling references. The
// watcher retains the last good snapshot when this fails. Duplicate
// backend keys in the JSON text are not detected: decoding into the
// Containers map keeps the last one.
func (d *Document) Validate() error {
	seen := make(map[string]bool, len(d.Containers))
	for name, b := range d.Containers {
		if name == "" {
			return fmt.Errorf("config: backend with empty name")
		}
		if seen[name] {
			return fmt.Errorf("config: duplicate backend name %q", name)
		}
		seen[name] = true
		if b == nil {
			return fmt.Errorf("config: backend %q is nil", name)
		}
	}

	for gname, g := range d.Groups {
		if g == nil {
			return fmt.Errorf("config: group %q is nil", gname)
		}
		for _, member := range g.Containers {
			if _, ok := d.Containers[member]; !ok {
				return fmt.Errorf("config: group %q references unknown backend %q", gname, member)
			}
		}
	}

	for i, s := range d.Schedules {
		switch s.TargetType {
		case TargetContainer:
			if _, ok := d.Containers[s.Target]; !ok {
				return fmt.Errorf("config: schedule[%d] targets unknown backend %q", i, s.Target)
			}
		case TargetGroup:
			if _, ok := d.Groups[s.Target]; !ok {
				return fmt.Errorf("config: schedule[%d] targets unknown group %q", i, s.Target)
			}
		default:
			return fmt.Errorf("config: schedule[%d] has invalid targetType %q", i, s.TargetType)
		}
	}

	return nil
}

// GroupMembers resolves a group's ordered backend list, skipping any
// name that no longer exists in the document (defensive against a
// stale reference surviving between validate and use).
func (d *Document) GroupMembers(groupName string) []*Backend {
	g, ok := d.Groups[groupName]
	if !ok {
		return nil
	}
	members := make([]*Backend, 0, len(g.Containers))
	for _, name := range g.Containers {
		if b, ok := d.Containers[name]; ok {
			members = append(members, b)
		}
	}
	return members
}

// GroupsContaining returns the active groups a backend belongs to.
func (d *Document) GroupsContaining(backendName string) []*Group {
	var out []*Group
	for _, g := range d.Groups {
		if !g.Active {
			continue
		}
		for _, member := range g.Containers {
			if member == backendName {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

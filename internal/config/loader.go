package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates the document at path. It never mutates a
// live Snapshot; callers swap snapshots explicitly.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if doc.Containers == nil {
		doc.Containers = make(map[string]*Backend)
	}
	if doc.Groups == nil {
		doc.Groups = make(map[string]*Group)
	}

	for name, b := range doc.Containers {
		b.Name = name
	}
	for name, g := range doc.Groups {
		if g != nil {
			g.Name = name
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}

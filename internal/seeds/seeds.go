// Package seeds loads SaaSHub seed queries from YAML.
package seeds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrSeedsFileNotFound = errors.New("seeds file not found")

// Load reads a seeds file. Two layouts are accepted:
//
//	- notion
//	- slack
//
// or categories of lists, flattened in file order:
//
//	productivity: [notion, coda]
//	chat: [slack]
//
// Blank entries and repeats are dropped.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSeedsFileNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []string{}, nil
	}

	var raw []string
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse seeds: %w", err)
		}
	case yaml.MappingNode:
		// Content alternates key, value. Non-list categories are ignored.
		for i := 1; i < len(root.Content); i += 2 {
			value := root.Content[i]
			if value.Kind != yaml.SequenceNode {
				continue
			}
			var items []string
			if err := value.Decode(&items); err != nil {
				return nil, fmt.Errorf("parse seeds category %q: %w", root.Content[i-1].Value, err)
			}
			raw = append(raw, items...)
		}
	default:
		return []string{}, nil
	}
	return Dedupe(raw), nil
}

// Dedupe trims entries and keeps the first occurrence of each.
func Dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

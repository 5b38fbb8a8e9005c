package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/lookalike/internal/labels"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateLabels is returned by AddLabels when a new label is already configured.
var ErrDuplicateLabels = errors.New("config already contains labels")

// AddLabels appends labels to images.labels in the YAML file at path.
// The rest of the document, comments included, is written back untouched.
// Labels that normalize to an already configured identity are rejected.
func AddLabels(path string, added []string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted CLI flag
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config %s: top level must be a mapping", path)
	}

	images := mappingValue(root, "images", yaml.MappingNode)
	seq := mappingValue(images, "labels", yaml.SequenceNode)

	var existing []string
	if err := seq.Decode(&existing); err != nil {
		return fmt.Errorf("config %s: images.labels: %w", path, err)
	}
	if conflicts := labels.Conflicts(existing, added); len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateLabels, strings.Join(conflicts, ", "))
	}

	for _, label := range added {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: label})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// mappingValue returns the value node stored under key, creating an empty node of
// the given kind when the key is missing.
func mappingValue(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			if v.Kind != kind && v.Tag == "!!null" {
				v.Kind, v.Tag = kind, ""
			}
			return v
		}
	}
	v := &yaml.Node{Kind: kind}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

package service

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/studycompanion/studycompanion/internal/model"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is a curated list of study materials keyed by subject.
type Catalog struct {
	subjects map[string][]catalogMaterial
}

type catalogFile struct {
	Subjects []catalogSubject `yaml:"subjects"`
}

type catalogSubject struct {
	Name      string            `yaml:"name"`
	Aliases   []string          `yaml:"aliases"`
	Materials []catalogMaterial `yaml:"materials"`
}

type catalogMaterial struct {
	Title       string   `yaml:"title"`
	Level       string   `yaml:"level"`
	Kind        string   `yaml:"kind"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// ParseCatalog reads a catalog from YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{subjects: make(map[string][]catalogMaterial)}
	for _, subj := range file.Subjects {
		name := normalizeSubject(subj.Name)
		if name == "" {
			return nil, fmt.Errorf("parse catalog: subject without name")
		}
		for _, m := range subj.Materials {
			if m.Title == "" {
				return nil, fmt.Errorf("parse catalog: %s has a material without title", name)
			}
			if _, ok := model.ParseLevel(m.Level); !ok {
				return nil, fmt.Errorf("parse catalog: %q has unknown level %q", m.Title, m.Level)
			}
		}
		for _, key := range append([]string{name}, subj.Aliases...) {
			key = normalizeSubject(key)
			c.subjects[key] = append(c.subjects[key], subj.Materials...)
		}
	}
	return c, nil
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the materials for subject at level, in catalog order.
func (c *Catalog) Lookup(subject string, level model.Level) []*model.StudyMaterial {
	if c == nil {
		return nil
	}

	var out []*model.StudyMaterial
	for _, m := range c.subjects[normalizeSubject(subject)] {
		lvl, _ := model.ParseLevel(m.Level)
		if lvl != level {
			continue
		}
		out = append(out, &model.StudyMaterial{
			Subject:     subject,
			Level:       level,
			Title:       m.Title,
			Kind:        model.NormalizeKind(m.Kind),
			Description: m.Description,
			URL:         m.URL,
			Source:      model.SourceCatalog,
			Tags:        m.Tags,
		})
	}
	return out
}

// normalizeSubject lower-cases and collapses whitespace.
func normalizeSubject(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

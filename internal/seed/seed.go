// Package seed loads model definitions from YAML and applies them through
// the engine, so a schema can ship as a file next to the binary.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leontalbot/caribou/internal/model"
)

// File is the root of a seed document.
type File struct {
	Models []ModelDef `yaml:"models"`
}

// ModelDef declares one model and its fields.
type ModelDef struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Nested      bool       `yaml:"nested,omitempty"`
	Fields      []FieldDef `yaml:"fields,omitempty"`
}

// FieldDef declares one field. Target names the model a relation kind points
// at; LinkSlug names a sibling field to derive from.
type FieldDef struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	Target      string `yaml:"target,omitempty"`
	LinkSlug    string `yaml:"link_slug,omitempty"`
	Dependent   bool   `yaml:"dependent,omitempty"`
	Default     string `yaml:"default,omitempty"`
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for _, md := range f.Models {
		if md.Name == "" {
			return nil, fmt.Errorf("parse seed: model with no name")
		}
		for _, fd := range md.Fields {
			if fd.Name == "" || fd.Type == "" {
				return nil, fmt.Errorf("parse seed: model %q: field needs name and type", md.Name)
			}
			if fd.relation() && fd.Target == "" {
				return nil, fmt.Errorf("parse seed: model %q: %s field %q needs a target", md.Name, fd.Type, fd.Name)
			}
		}
	}
	return &f, nil
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

// Apply writes the declared models through the engine. Scalar fields ride
// along on model creation; relation fields apply in a second pass once every
// target model exists, whatever order the file declares them in. Applying
// the same file twice is a no-op: existing models only gain fields they are
// missing.
func Apply(ctx context.Context, eng *model.Engine, f *File) error {
	type pending struct {
		modelSlug string
		def       FieldDef
	}
	var relations []pending

	for _, md := range f.Models {
		slug := model.Slugify(md.Name)

		var scalars []FieldDef
		for _, fd := range md.Fields {
			if fd.relation() {
				relations = append(relations, pending{modelSlug: slug, def: fd})
				continue
			}
			scalars = append(scalars, fd)
		}

		if m, err := eng.Model(slug); err == nil {
			for _, fd := range scalars {
				if err := ensureField(ctx, eng, m, fd); err != nil {
					return err
				}
			}
			continue
		}

		fieldSpecs := make([]model.Content, 0, len(scalars))
		for _, fd := range scalars {
			spec, err := fd.spec(eng)
			if err != nil {
				return fmt.Errorf("seed model %s: %w", md.Name, err)
			}
			fieldSpecs = append(fieldSpecs, spec)
		}

		spec := model.Content{"name": md.Name}
		if md.Description != "" {
			spec["description"] = md.Description
		}
		if md.Nested {
			spec["nested"] = true
		}
		if len(fieldSpecs) > 0 {
			spec["fields"] = fieldSpecs
		}
		if _, err := eng.Create(ctx, "model", spec); err != nil {
			return fmt.Errorf("seed model %s: %w", md.Name, err)
		}
	}

	for _, p := range relations {
		m, err := eng.Model(p.modelSlug)
		if err != nil {
			return fmt.Errorf("seed relations: %w", err)
		}
		if err := ensureField(ctx, eng, m, p.def); err != nil {
			return err
		}
	}
	return nil
}

func ensureField(ctx context.Context, eng *model.Engine, m *model.Model, fd FieldDef) error {
	if _, err := m.FieldBySlug(model.Slugify(fd.Name)); err == nil {
		return nil
	}
	spec, err := fd.spec(eng)
	if err != nil {
		return fmt.Errorf("seed field %s.%s: %w", m.Slug, fd.Name, err)
	}
	spec["model_id"] = m.ID
	if _, err := eng.Create(ctx, "field", spec); err != nil {
		return fmt.Errorf("seed field %s.%s: %w", m.Slug, fd.Name, err)
	}
	return nil
}

func (fd FieldDef) relation() bool {
	switch fd.Type {
	case "collection", "part", "link":
		return true
	}
	return false
}

func (fd FieldDef) spec(eng *model.Engine) (model.Content, error) {
	spec := model.Content{"name": fd.Name, "type": fd.Type}
	if fd.Description != "" {
		spec["description"] = fd.Description
	}
	if fd.Default != "" {
		spec["default_value"] = fd.Default
	}
	if fd.Dependent {
		spec["dependent"] = true
	}
	if fd.LinkSlug != "" {
		spec["link_slug"] = fd.LinkSlug
	}
	if fd.Target != "" {
		target, err := eng.Model(model.Slugify(fd.Target))
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", fd.Target, err)
		}
		spec["target_id"] = target.ID
	}
	return spec, nil
}

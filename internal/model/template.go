package model

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Template describes one document type: which field kinds its extractor
// should look for. Template IDs come from the upstream classifier.
type Template struct {
	ID     string      `yaml:"id" json:"id"`
	Name   string      `yaml:"name" json:"name"`
	Fields []FieldKind `yaml:"fields" json:"fields"`
}

// TemplateRegistry is an indexed collection of document templates.
type TemplateRegistry struct {
	Templates []Template
	byID      map[string]*Template
}

// NewTemplateRegistry builds a registry with indexed lookups.
func NewTemplateRegistry(templates []Template) *TemplateRegistry {
	r := &TemplateRegistry{
		Templates: templates,
		byID:      make(map[string]*Template, len(templates)),
	}
	for i := range r.Templates {
		r.byID[r.Templates[i].ID] = &r.Templates[i]
	}
	return r
}

// LoadTemplates reads a YAML template registry from path.
func LoadTemplates(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read templates %s", path)
	}
	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "model: parse templates")
	}
	for _, t := range doc.Templates {
		if t.ID == "" {
			return nil, eris.New("model: template missing id")
		}
		for _, k := range t.Fields {
			if !k.Valid() {
				return nil, eris.Errorf("model: template %s: unknown field kind %q", t.ID, k)
			}
		}
	}
	return NewTemplateRegistry(doc.Templates), nil
}

// ByID returns the template for the given ID, or nil if not found.
func (r *TemplateRegistry) ByID(id string) *Template {
	return r.byID[id]
}

// FieldsFor returns the expected field kinds for a template ID. Unknown or
// empty IDs fall back to every known kind so extraction still proceeds.
func (r *TemplateRegistry) FieldsFor(id string) []FieldKind {
	if r != nil {
		if t := r.byID[id]; t != nil && len(t.Fields) > 0 {
			return t.Fields
		}
	}
	return AllKinds
}

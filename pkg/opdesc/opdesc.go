// Package opdesc implements the round-trippable YAML operation description
// format. It is the exchange format between the server and external front
// ends (CLI editors, importers); unknown fields are rejected so that a typo
// in an edited document cannot silently drop data.
package opdesc

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// Description is the YAML form of an operation. Field order matches the
// rendered document.
type Description struct {
	Title   string `yaml:"title" json:"title"`
	Purpose string `yaml:"purpose" json:"purpose"`
	URL     string `yaml:"url" json:"url"`

	Components []string `yaml:"components" json:"components"`
	Locks      []string `yaml:"locks,omitempty" json:"locks,omitempty"`
	Tags       []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	DependsOn  []uint64 `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Operators  []string `yaml:"operators,omitempty" json:"operators,omitempty"`

	StartsAt *time.Time `yaml:"starts_at,omitempty" json:"starts_at,omitempty"`
	EndsAt   *time.Time `yaml:"ends_at,omitempty" json:"ends_at,omitempty"`

	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// Parse decodes a YAML operation description. Unknown fields are an error.
func Parse(data []byte) (*Description, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Description
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("invalid operation description: %w", err)
	}
	return &d, nil
}

// Render encodes the description as YAML.
func Render(d *Description) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("render operation description: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromOperation builds a description from an operation record, for editors
// that fetch, modify, and resubmit.
func FromOperation(op *models.Operation) *Description {
	return &Description{
		Title:       op.Title,
		Purpose:     op.Purpose,
		URL:         op.URL,
		Components:  append([]string(nil), op.Components...),
		Locks:       append([]string(nil), op.Locks...),
		Tags:        append([]string(nil), op.Tags...),
		DependsOn:   append([]uint64(nil), op.DependsOn...),
		Operators:   append([]string(nil), op.Operators...),
		StartsAt:    op.StartsAt,
		EndsAt:      op.EndsAt,
		Annotations: op.Annotations,
	}
}

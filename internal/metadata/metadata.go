// Package metadata fuses reference-area and route attributes into the
// canonical output record.
//
// A merged record always carries every declared output field. It is built by
// copying the polygon's metadata, overlaying the route's truthy fields, filling
// the gaps with nil, then applying reformat and derive functions in that order.
// Polygon metadata is never modified: one polygon may be the best match for
// many pieces over a run.
package metadata

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/areamatch/internal/model"
)

// Mapping renames source fields to canonical names. Keys are source field names,
// matched case-insensitively. When both maps name the same source field, the
// route mapping wins.
type Mapping struct {
	Route   map[string]string
	Polygon map[string]string
}

// Combined returns the effective source → canonical mapping with lowercased keys.
func (m Mapping) Combined() map[string]string {
	out := make(map[string]string, len(m.Route)+len(m.Polygon))
	for src, canon := range m.Polygon {
		out[strings.ToLower(src)] = canon
	}
	for src, canon := range m.Route {
		out[strings.ToLower(src)] = canon
	}
	return out
}

// PolygonOnly returns the canonical names produced only by polygon fields, sorted.
func (m Mapping) PolygonOnly() []string {
	combined := m.Combined()
	routeNames := make(map[string]bool, len(m.Route))
	for _, canon := range m.Route {
		routeNames[canon] = true
	}
	seen := make(map[string]bool)
	var out []string
	for src, canon := range m.Polygon {
		if combined[strings.ToLower(src)] != canon || routeNames[canon] || seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
	}
	sort.Strings(out)
	return out
}

// Model applies the field mapping, precedence and reformat/derive functions
// against a declared output schema. It is immutable and safe for concurrent use.
type Model struct {
	combined map[string]string
	schema   model.Schema
	reformat map[string]Reformat
	derive   map[string]Derive
	// derived field names, sorted, so derive functions run in a stable order
	deriveOrder []string
}

// New builds a Model. Every derive target must be a declared field.
func New(mapping Mapping, schema model.Schema, reformat map[string]Reformat, derive map[string]Derive) (*Model, error) {
	m := &Model{
		combined: mapping.Combined(),
		schema:   schema,
		reformat: reformat,
		derive:   derive,
	}
	for name := range derive {
		if _, ok := schema.Field(name); !ok {
			return nil, eris.Errorf("metadata: derived field %q is not declared in the output schema", name)
		}
		m.deriveOrder = append(m.deriveOrder, name)
	}
	sort.Strings(m.deriveOrder)
	return m, nil
}

// Schema returns the declared output schema.
func (m *Model) Schema() model.Schema {
	return m.schema
}

// SourceMetadata renames source attributes to canonical names, keeping only
// mapped fields with truthy values.
func (m *Model) SourceMetadata(attrs map[string]any) model.Metadata {
	out := make(model.Metadata, len(attrs))
	for src, v := range attrs {
		canon, ok := m.combined[strings.ToLower(src)]
		if !ok || !model.Truthy(v) {
			continue
		}
		out[canon] = v
	}
	return out
}

// Merge builds the output record for a route piece matched to a polygon.
// Neither input is modified.
func (m *Model) Merge(route, polygon model.Metadata) (model.Metadata, error) {
	out := make(model.Metadata, len(m.schema.Fields))

	// Copy, never alias, the polygon's metadata.
	for _, f := range m.schema.Fields {
		if v, ok := polygon[f.Name]; ok {
			out[f.Name] = v
		}
	}
	for _, f := range m.schema.Fields {
		if v, ok := route[f.Name]; ok && model.Truthy(v) {
			out[f.Name] = v
		}
	}
	for _, f := range m.schema.Fields {
		if _, ok := out[f.Name]; !ok {
			out[f.Name] = nil
		}
	}

	for _, f := range m.schema.Fields {
		r, ok := m.reformat[f.Name]
		if !ok || out[f.Name] == nil {
			continue
		}
		v := r.Fn(out[f.Name])
		if !f.Type.Accepts(v) {
			return nil, &SchemaMismatchError{Field: f.Name, Type: f.Type, Value: v}
		}
		out[f.Name] = v
	}

	// Derive functions see the fully reformatted record; derived values are
	// applied only after all of them ran.
	derived := make(map[string]any, len(m.deriveOrder))
	for _, name := range m.deriveOrder {
		f, _ := m.schema.Field(name)
		v := m.derive[name].Fn(out)
		if !f.Type.Accepts(v) {
			return nil, &SchemaMismatchError{Field: name, Type: f.Type, Value: v}
		}
		derived[name] = v
	}
	for name, v := range derived {
		out[name] = v
	}

	return out, nil
}

// Overlay returns a copy of base with every declared, truthy field of over applied.
func (m *Model) Overlay(base, over model.Metadata) model.Metadata {
	out := base.Clone()
	for _, f := range m.schema.Fields {
		if v, ok := over[f.Name]; ok && model.Truthy(v) {
			out[f.Name] = v
		}
	}
	return out
}

// Empty returns the all-null polygon template used when a piece has no
// acceptable reference area.
func (m *Model) Empty() model.Metadata {
	out := make(model.Metadata, len(m.schema.Fields))
	for _, f := range m.schema.Fields {
		out[f.Name] = nil
	}
	return out
}

package featurestore

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/areamatch/internal/metadata"
	"github.com/sells-group/areamatch/internal/model"
)

// DeriveSchema builds the output schema of a run. Source fields are combined
// in the order given, later sources overriding the type of a field already
// seen, and only mapped fields are kept under their canonical names. Reformat
// functions with a declared type override the source type; derived fields are
// appended when not already present.
func DeriveSchema(geometryType string, sources []model.Schema, mapping metadata.Mapping, reformat map[string]metadata.Reformat, derive map[string]metadata.Derive) (model.Schema, error) {
	combined := mapping.Combined()

	// Source field names are compared case-insensitively, like the mapping.
	var order []string
	types := make(map[string]model.FieldType)
	for _, src := range sources {
		for _, f := range src.Fields {
			key := strings.ToLower(f.Name)
			if _, seen := types[key]; !seen {
				order = append(order, key)
			}
			types[key] = f.Type
		}
	}

	out := model.Schema{Geometry: geometryType}
	index := make(map[string]int)
	for _, key := range order {
		canon, ok := combined[key]
		if !ok {
			continue
		}
		if i, dup := index[canon]; dup {
			out.Fields[i].Type = types[key]
			continue
		}
		index[canon] = len(out.Fields)
		out.Fields = append(out.Fields, model.Field{Name: canon, Type: types[key]})
	}

	for name, r := range reformat {
		i, ok := index[name]
		if !ok {
			return model.Schema{}, eris.Errorf("featurestore: reformat target %q is not an output field", name)
		}
		if r.Type != "" {
			out.Fields[i].Type = r.Type
		}
	}

	for _, name := range sortedKeys(derive) {
		d := derive[name]
		if i, ok := index[name]; ok {
			out.Fields[i].Type = d.Type
			continue
		}
		index[name] = len(out.Fields)
		out.Fields = append(out.Fields, model.Field{Name: name, Type: d.Type})
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

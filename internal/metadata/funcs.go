package metadata

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/areamatch/internal/model"
)

// Reformat rewrites the value of a field that is already present after merge.
// Type, when set, replaces the source type of the field in the output schema.
type Reformat struct {
	Name string
	Type model.FieldType
	Fn   func(any) any
}

// Derive computes a field from the full merged record.
type Derive struct {
	Name string
	Type model.FieldType
	Fn   func(model.Metadata) any
}

// DeriveEnv is the configuration derive functions may close over.
type DeriveEnv struct {
	Preferred     model.Filter
	PolygonFields []string
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102",
	"2.1.2006",
}

func mapString(fn func(string) string) func(any) any {
	return func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		return fn(s)
	}
}

// reformatters is the registry of named reformat functions. Functions return
// the input unchanged when they cannot convert it; the schema check in Merge
// then reports the mismatch.
var reformatters = map[string]Reformat{
	"trim":  {Fn: mapString(strings.TrimSpace)},
	"nfc":   {Fn: mapString(norm.NFC.String)},
	"lower": {Fn: mapString(func(s string) string { return cases.Lower(language.Und).String(s) })},
	"title": {Fn: mapString(func(s string) string { return cases.Title(language.Und).String(s) })},
	"int": {Type: model.FieldInt, Fn: func(v any) any {
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case float64:
			if x == float64(int64(x)) {
				return int64(x)
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
		}
		return v
	}},
	"float": {Type: model.FieldFloat, Fn: func(v any) any {
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case int:
			return float64(x)
		case string:
			s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return v
	}},
	"date": {Type: model.FieldDate, Fn: func(v any) any {
		switch x := v.(type) {
		case time.Time:
			return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC)
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
					return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
				}
			}
		}
		return v
	}},
}

// ReformatNames lists the registered reformat function names.
func ReformatNames() []string {
	names := make([]string, 0, len(reformatters))
	for n := range reformatters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reformats resolves a canonical field → function name table.
func Reformats(byField map[string]string) (map[string]Reformat, error) {
	out := make(map[string]Reformat, len(byField))
	for field, name := range byField {
		r, ok := reformatters[name]
		if !ok {
			return nil, eris.Errorf("metadata: unknown reformat function %q for field %q", name, field)
		}
		r.Name = name
		out[field] = r
	}
	return out, nil
}

// Derives resolves a canonical field → function name table.
//
//	preferred  bool  the record satisfies the preferred filter
//	matched    bool  at least one polygon-only field is non-null
func Derives(byField map[string]string, env DeriveEnv) (map[string]Derive, error) {
	out := make(map[string]Derive, len(byField))
	for field, name := range byField {
		var d Derive
		switch name {
		case "preferred":
			d = Derive{Type: model.FieldBool, Fn: func(m model.Metadata) any {
				return env.Preferred.Match(m)
			}}
		case "matched":
			fields := env.PolygonFields
			d = Derive{Type: model.FieldBool, Fn: func(m model.Metadata) any {
				for _, f := range fields {
					if m[f] != nil {
						return true
					}
				}
				return false
			}}
		default:
			return nil, eris.Errorf("metadata: unknown derive function %q for field %q", name, field)
		}
		d.Name = name
		out[field] = d
	}
	return out, nil
}

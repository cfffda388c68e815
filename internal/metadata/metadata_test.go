package metadata

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/areamatch/internal/model"
)

var testMapping = Mapping{
	Route: map[string]string{"id": "original_line_id"},
	Polygon: map[string]string{
		"osan_id":    "ylre_id",
		"alatyyppi":  "subtype",
		"rakenteell": "maintainer",
		"ID":         "polygon_id",
	},
}

var testSchema = model.Schema{
	Geometry: "LineString",
	Fields: []model.Field{
		{Name: "ylre_id", Type: model.FieldInt},
		{Name: "subtype", Type: model.FieldString},
		{Name: "maintainer", Type: model.FieldString},
		{Name: "original_line_id", Type: model.FieldInt},
	},
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(testMapping, testSchema, nil, nil)
	require.NoError(t, err)
	return m
}

func TestMappingCombinedRouteWins(t *testing.T) {
	t.Parallel()

	combined := testMapping.Combined()
	assert.Equal(t, "original_line_id", combined["id"], "route mapping takes precedence")
	assert.Equal(t, "ylre_id", combined["osan_id"])
	assert.Equal(t, []string{"maintainer", "subtype", "ylre_id"}, testMapping.PolygonOnly())
}

func TestSourceMetadata(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	got := m.SourceMetadata(map[string]any{
		"OSAN_ID":    int64(42),
		"alatyyppi":  "Pyörätie",
		"rakenteell": "",
		"unmapped":   "x",
		"id":         int64(7),
	})

	want := model.Metadata{"ylre_id": int64(42), "subtype": "Pyörätie", "original_line_id": int64(7)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SourceMetadata mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	polygon := model.Metadata{"ylre_id": int64(42), "subtype": "Pyörätie", "maintainer": "Stara"}
	route := model.Metadata{"original_line_id": int64(7), "maintainer": "", "subtype": "Katu"}

	got, err := m.Merge(route, polygon)
	require.NoError(t, err)

	want := model.Metadata{
		"ylre_id":          int64(42),
		"subtype":          "Katu",
		"maintainer":       "Stara",
		"original_line_id": int64(7),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeFillsEveryDeclaredField(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	got, err := m.Merge(model.Metadata{}, model.Metadata{"undeclared": "x"})
	require.NoError(t, err)
	assert.Len(t, got, len(testSchema.Fields))
	for _, f := range testSchema.Fields {
		v, ok := got[f.Name]
		assert.True(t, ok, f.Name)
		assert.Nil(t, v, f.Name)
	}
	assert.NotContains(t, got, "undeclared")
}

func TestMergeDoesNotMutatePolygon(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	polygon := model.Metadata{"ylre_id": int64(42), "subtype": "Ajorata"}
	snapshot := polygon.Clone()

	first, err := m.Merge(model.Metadata{"original_line_id": int64(1)}, polygon)
	require.NoError(t, err)
	second, err := m.Merge(model.Metadata{"original_line_id": int64(2)}, polygon)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first["original_line_id"])
	assert.Equal(t, int64(2), second["original_line_id"])
	assert.True(t, polygon.Equal(snapshot), "polygon metadata must not change")

	second["subtype"] = "changed"
	assert.Equal(t, "Ajorata", first["subtype"])
	assert.Equal(t, "Ajorata", polygon["subtype"])
}

func TestMergeDeterministic(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	polygon := model.Metadata{"ylre_id": int64(42), "subtype": "Ajorata"}
	route := model.Metadata{"original_line_id": int64(9)}

	a, err := m.Merge(route, polygon)
	require.NoError(t, err)
	b, err := m.Merge(route, polygon)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestMergeReformatThenDerive(t *testing.T) {
	t.Parallel()

	schema := model.Schema{Fields: []model.Field{
		{Name: "subtype", Type: model.FieldString},
		{Name: "ylre_id", Type: model.FieldInt},
		{Name: "is_bike", Type: model.FieldBool},
	}}
	reformat, err := Reformats(map[string]string{"subtype": "trim", "ylre_id": "int"})
	require.NoError(t, err)
	derive, err := Derives(map[string]string{"is_bike": "preferred"}, DeriveEnv{
		Preferred: model.Filter{Field: "subtype", Values: []string{"Pyörätie"}},
	})
	require.NoError(t, err)

	m, err := New(testMapping, schema, reformat, derive)
	require.NoError(t, err)

	got, err := m.Merge(model.Metadata{}, model.Metadata{"subtype": "  Pyörätie ", "ylre_id": "17"})
	require.NoError(t, err)
	assert.Equal(t, "Pyörätie", got["subtype"])
	assert.Equal(t, int64(17), got["ylre_id"])
	assert.Equal(t, true, got["is_bike"], "derive must see the reformatted value")
}

func TestMergeSchemaMismatch(t *testing.T) {
	t.Parallel()

	schema := model.Schema{Fields: []model.Field{{Name: "ylre_id", Type: model.FieldInt}}}
	reformat, err := Reformats(map[string]string{"ylre_id": "int"})
	require.NoError(t, err)
	m, err := New(testMapping, schema, reformat, nil)
	require.NoError(t, err)

	_, err = m.Merge(model.Metadata{}, model.Metadata{"ylre_id": "not a number"})
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	assert.True(t, IsSchemaMismatch(eris.Wrap(err, "classify")))

	var se *SchemaMismatchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ylre_id", se.Field)
	assert.Equal(t, model.FieldInt, se.Type)
}

func TestDeriveTypeMismatch(t *testing.T) {
	t.Parallel()

	schema := model.Schema{Fields: []model.Field{{Name: "matched", Type: model.FieldString}}}
	derive, err := Derives(map[string]string{"matched": "matched"}, DeriveEnv{PolygonFields: []string{"ylre_id"}})
	require.NoError(t, err)
	m, err := New(testMapping, schema, nil, derive)
	require.NoError(t, err)

	_, err = m.Merge(model.Metadata{}, model.Metadata{})
	assert.True(t, IsSchemaMismatch(err))
}

func TestNewRejectsUndeclaredDerive(t *testing.T) {
	t.Parallel()

	derive, err := Derives(map[string]string{"nowhere": "matched"}, DeriveEnv{})
	require.NoError(t, err)
	_, err = New(testMapping, testSchema, nil, derive)
	assert.Error(t, err)
}

func TestUnknownFunctionNames(t *testing.T) {
	t.Parallel()

	_, err := Reformats(map[string]string{"a": "shout"})
	assert.Error(t, err)
	_, err = Derives(map[string]string{"a": "guess"}, DeriveEnv{})
	assert.Error(t, err)
	assert.Contains(t, ReformatNames(), "nfc")
}

func TestReformatFunctions(t *testing.T) {
	t.Parallel()

	reformat, err := Reformats(map[string]string{
		"a": "nfc", "b": "lower", "c": "title", "d": "float", "e": "date",
	})
	require.NoError(t, err)

	decomposed := "Pyo\u0308ra\u0308tie"
	assert.Equal(t, "Pyörätie", reformat["a"].Fn(decomposed))
	assert.Equal(t, "pyörätie", reformat["b"].Fn("PYÖRÄTIE"))
	assert.Equal(t, "Alueen Nimi", reformat["c"].Fn("alueen nimi"))
	assert.Equal(t, 2.5, reformat["d"].Fn("2,5"))
	assert.Equal(t, time.Date(2016, 11, 3, 0, 0, 0, 0, time.UTC), reformat["e"].Fn("3.11.2016"))
	assert.Equal(t, "garbage", reformat["e"].Fn("garbage"))
	assert.Equal(t, 12, reformat["a"].Fn(12), "non-strings pass through")
}

func TestOverlayAndEmpty(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	base := model.Metadata{"original_line_id": int64(1), "subtype": "Katu"}
	got := m.Overlay(base, model.Metadata{"subtype": "Pyörätie", "maintainer": "", "undeclared": "x"})

	assert.Equal(t, "Pyörätie", got["subtype"])
	assert.NotContains(t, got, "maintainer")
	assert.NotContains(t, got, "undeclared")
	assert.Equal(t, "Katu", base["subtype"], "base is not modified")

	empty := m.Empty()
	assert.Len(t, empty, len(testSchema.Fields))
	for _, v := range empty {
		assert.Nil(t, v)
	}
}

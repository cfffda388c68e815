package geometry

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wkt  string
		want Kind
	}{
		{"POINT (1 2)", KindPoint},
		{"LINESTRING (0 0, 1 1)", KindLine},
		{"POLYGON ((0 0, 1 0, 1 1, 0 0))", KindPolygon},
		{"MULTIPOINT ((0 0), (1 1))", KindMultiPoint},
		{"MULTILINESTRING ((0 0, 1 1), (2 2, 3 3))", KindMultiLine},
		{"MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))", KindMultiPolygon},
		{"GEOMETRYCOLLECTION (POINT (0 0), LINESTRING (0 0, 1 1))", KindCollection},
		{"LINESTRING EMPTY", KindEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MustWKT(tt.wkt).Kind())
		})
	}

	assert.Equal(t, KindEmpty, Geometry{}.Kind())
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	g := MustWKT(`GEOMETRYCOLLECTION (
		MULTILINESTRING ((0 0, 1 0), (2 0, 3 0)),
		POINT (5 5),
		GEOMETRYCOLLECTION (LINESTRING (9 9, 10 10))
	)`)

	parts := Flatten(g)
	require.Len(t, parts, 4)
	for _, p := range parts {
		assert.False(t, p.Kind().IsMulti())
	}
	assert.Equal(t, KindPoint, parts[2].Kind())

	assert.Empty(t, Flatten(Geometry{}))
}

func TestIntersectionAndDifference(t *testing.T) {
	t.Parallel()

	line := MustWKT("LINESTRING (0 0, 20 0)")
	square := MustWKT("POLYGON ((5 -5, 15 -5, 15 5, 5 5, 5 -5))")

	inside, err := line.Intersection(square)
	require.NoError(t, err)
	l, err := inside.Length()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, l, 1e-9)

	outside, err := line.Difference(square)
	require.NoError(t, err)
	assert.Equal(t, KindMultiLine, outside.Kind())
	l, err = outside.Length()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, l, 1e-9)

	none, err := line.Intersection(Geometry{})
	require.NoError(t, err)
	assert.True(t, none.IsEmpty())
}

func TestEndpointBufferRegions(t *testing.T) {
	t.Parallel()

	long := MustWKT("LINESTRING (0 0, 20 0)")
	ends, err := long.Boundary()
	require.NoError(t, err)
	zone, err := ends.Buffer(4, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, Regions(zone))

	short := MustWKT("LINESTRING (0 0, 5 0)")
	ends, err = short.Boundary()
	require.NoError(t, err)
	zone, err = ends.Buffer(4, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, Regions(zone))
}

func TestIsRing(t *testing.T) {
	t.Parallel()

	ring, err := MustWKT("LINESTRING (0 0, 1 0, 1 1, 0 0)").IsRing()
	require.NoError(t, err)
	assert.True(t, ring)

	ring, err = MustWKT("LINESTRING (0 0, 1 0)").IsRing()
	require.NoError(t, err)
	assert.False(t, ring)
}

func TestLineMerge(t *testing.T) {
	t.Parallel()

	merged, err := LineMerge(
		MustWKT("LINESTRING (10 0, 20 0)"),
		MustWKT("LINESTRING (0 0, 10 0)"),
	)
	require.NoError(t, err)
	assert.Equal(t, KindLine, merged.Kind())
	l, err := merged.Length()
	require.NoError(t, err)
	assert.InDelta(t, 20.0, l, 1e-9)

	apart, err := LineMerge(
		MustWKT("LINESTRING (0 0, 1 0)"),
		MustWKT("LINESTRING (5 0, 6 0)"),
	)
	require.NoError(t, err)
	assert.Equal(t, KindMultiLine, apart.Kind())
	assert.Len(t, apart.Parts(), 2)

	empty, err := LineMerge()
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestBounds(t *testing.T) {
	t.Parallel()

	b := MustWKT("LINESTRING (1 2, 3 -4)").Bounds()
	assert.Equal(t, Box{MinX: 1, MinY: -4, MaxX: 3, MaxY: 2}, b)
	assert.False(t, b.IsEmpty())
	assert.True(t, Geometry{}.Bounds().IsEmpty())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MustWKT("POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))").Validate())
	assert.NoError(t, MustWKT("LINESTRING (0 0, 10 0)").Validate())
	assert.NoError(t, Geometry{}.Validate())

	err := MustWKT("POLYGON ((0 -5, 10 5, 10 -5, 0 5, 0 -5))").Validate()
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "Self-intersection")
}

func TestGuardRecoversPanics(t *testing.T) {
	t.Parallel()

	_, err := guard("boom", func() int { panic(errors.New("TopologyException: side location conflict")) })
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.True(t, IsInvalid(eris.Wrap(err, "classify: candidate")))
	assert.Contains(t, err.Error(), "boom")

	_, err = guard("boom", func() int { panic("not an error") })
	assert.True(t, IsInvalid(err))

	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(errors.New("other")))
}

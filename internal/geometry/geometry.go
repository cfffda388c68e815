// Package geometry adapts the GEOS engine to the small set of operations the
// classifier needs. Every engine call is guarded so that a malformed input
// surfaces as an *InvalidGeometryError instead of crashing the run.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
)

// Kind is the tagged variant of a geometry.
type Kind int

// Geometry kinds.
const (
	KindEmpty Kind = iota
	KindPoint
	KindLine
	KindPolygon
	KindMultiPoint
	KindMultiLine
	KindMultiPolygon
	KindCollection
)

var kindNames = map[Kind]string{
	KindEmpty:        "Empty",
	KindPoint:        "Point",
	KindLine:         "LineString",
	KindPolygon:      "Polygon",
	KindMultiPoint:   "MultiPoint",
	KindMultiLine:    "MultiLineString",
	KindMultiPolygon: "MultiPolygon",
	KindCollection:   "GeometryCollection",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// IsMulti reports whether the kind holds several constituent geometries.
func (k Kind) IsMulti() bool {
	return k == KindMultiPoint || k == KindMultiLine || k == KindMultiPolygon || k == KindCollection
}

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBox returns a box that contains nothing.
func EmptyBox() Box {
	return Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// IsEmpty reports whether the box has no extent at all.
func (b Box) IsEmpty() bool {
	return !(b.MinX <= b.MaxX && b.MinY <= b.MaxY) ||
		math.IsInf(b.MinX, 0) || math.IsInf(b.MaxX, 0)
}

// Geometry is an immutable geometry value. The zero value is empty.
type Geometry struct {
	g *geos.Geom
}

func wrap(g *geos.Geom) Geometry {
	return Geometry{g: g}
}

// FromWKT parses a well-known-text geometry.
func FromWKT(wkt string) (Geometry, error) {
	g, err := geos.NewGeomFromWKT(wkt)
	if err != nil {
		return Geometry{}, eris.Wrap(err, "geometry: parse WKT")
	}
	return wrap(g), nil
}

// FromWKB parses a well-known-binary geometry.
func FromWKB(wkb []byte) (Geometry, error) {
	g, err := geos.NewGeomFromWKB(wkb)
	if err != nil {
		return Geometry{}, eris.Wrap(err, "geometry: parse WKB")
	}
	return wrap(g), nil
}

// MustWKT parses wkt and panics on failure. Intended for fixtures.
func MustWKT(wkt string) Geometry {
	g, err := FromWKT(wkt)
	if err != nil {
		panic(err)
	}
	return g
}

// WKT encodes the geometry as well-known text.
func (g Geometry) WKT() string {
	if g.g == nil {
		return "GEOMETRYCOLLECTION EMPTY"
	}
	return g.g.ToWKT()
}

// WKB encodes the geometry as well-known binary.
func (g Geometry) WKB() ([]byte, error) {
	if g.g == nil {
		return nil, eris.New("geometry: cannot encode empty geometry")
	}
	return guard("wkb", g.g.ToWKB)
}

// IsEmpty reports whether the geometry has no points.
func (g Geometry) IsEmpty() bool {
	if g.g == nil {
		return true
	}
	empty, err := guard("is_empty", g.g.IsEmpty)
	return err != nil || empty
}

// Kind returns the tagged variant of the geometry.
func (g Geometry) Kind() Kind {
	if g.IsEmpty() {
		return KindEmpty
	}
	switch g.g.TypeID() {
	case geos.TypeIDPoint:
		return KindPoint
	case geos.TypeIDLineString, geos.TypeIDLinearRing:
		return KindLine
	case geos.TypeIDPolygon:
		return KindPolygon
	case geos.TypeIDMultiPoint:
		return KindMultiPoint
	case geos.TypeIDMultiLineString:
		return KindMultiLine
	case geos.TypeIDMultiPolygon:
		return KindMultiPolygon
	default:
		return KindCollection
	}
}

// Parts returns the constituents of a multi geometry, or the geometry itself
// for a single one. Empty geometries have no parts.
func (g Geometry) Parts() []Geometry {
	k := g.Kind()
	if k == KindEmpty {
		return nil
	}
	if !k.IsMulti() {
		return []Geometry{g}
	}
	n := g.g.NumGeometries()
	parts := make([]Geometry, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, wrap(g.g.Geometry(i)))
	}
	return parts
}

// Bounds returns the bounding box, or an empty box for an empty geometry.
func (g Geometry) Bounds() Box {
	if g.IsEmpty() {
		return EmptyBox()
	}
	b, err := guard("bounds", g.g.Bounds)
	if err != nil || b == nil {
		return EmptyBox()
	}
	return Box{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

// Intersection returns the shared portion of g and other.
func (g Geometry) Intersection(other Geometry) (Geometry, error) {
	if g.IsEmpty() || other.IsEmpty() {
		return Geometry{}, nil
	}
	res, err := guard("intersection", func() *geos.Geom { return g.g.Intersection(other.g) })
	return wrap(res), err
}

// Difference returns the portion of g not covered by other.
func (g Geometry) Difference(other Geometry) (Geometry, error) {
	if g.IsEmpty() {
		return Geometry{}, nil
	}
	if other.IsEmpty() {
		return g, nil
	}
	res, err := guard("difference", func() *geos.Geom { return g.g.Difference(other.g) })
	return wrap(res), err
}

// Union returns the point-set union of g and other.
func (g Geometry) Union(other Geometry) (Geometry, error) {
	if g.IsEmpty() {
		return other, nil
	}
	if other.IsEmpty() {
		return g, nil
	}
	res, err := guard("union", func() *geos.Geom { return g.g.Union(other.g) })
	return wrap(res), err
}

// Buffer returns the region within distance of g. quadSegs controls how many
// segments approximate a quarter circle.
func (g Geometry) Buffer(distance float64, quadSegs int) (Geometry, error) {
	if g.IsEmpty() {
		return Geometry{}, nil
	}
	res, err := guard("buffer", func() *geos.Geom { return g.g.Buffer(distance, quadSegs) })
	return wrap(res), err
}

// Boundary returns the combinatorial boundary; for an open line, its two endpoints.
func (g Geometry) Boundary() (Geometry, error) {
	if g.IsEmpty() {
		return Geometry{}, nil
	}
	res, err := guard("boundary", g.g.Boundary)
	return wrap(res), err
}

// Area returns the area of polygonal components.
func (g Geometry) Area() (float64, error) {
	if g.IsEmpty() {
		return 0, nil
	}
	return guard("area", g.g.Area)
}

// Length returns the length of linear components.
func (g Geometry) Length() (float64, error) {
	if g.IsEmpty() {
		return 0, nil
	}
	return guard("length", g.g.Length)
}

// IsRing reports whether g is a closed, simple line.
func (g Geometry) IsRing() (bool, error) {
	if g.Kind() != KindLine {
		return false, nil
	}
	return guard("is_ring", g.g.IsRing)
}

// Validate returns an InvalidGeometryError naming the defect when g is not
// topologically valid, e.g. a self-intersecting polygon ring. Empty geometries
// are valid.
func (g Geometry) Validate() error {
	if g.IsEmpty() {
		return nil
	}
	valid, err := guard("is_valid", g.g.IsValid)
	if err != nil {
		return err
	}
	if valid {
		return nil
	}
	reason, _ := guard("is_valid_reason", g.g.IsValidReason)
	return &InvalidGeometryError{Op: "validate", Err: eris.New(reason)}
}

// Equals reports topological equality.
func (g Geometry) Equals(other Geometry) bool {
	if g.IsEmpty() || other.IsEmpty() {
		return g.IsEmpty() && other.IsEmpty()
	}
	eq, err := guard("equals", func() bool { return g.g.Equals(other.g) })
	return err == nil && eq
}

// Flatten recursively splits multi geometries and collections until only
// single geometries remain. Empty geometries vanish.
func Flatten(g Geometry) []Geometry {
	k := g.Kind()
	switch {
	case k == KindEmpty:
		return nil
	case k.IsMulti():
		var out []Geometry
		for _, p := range g.Parts() {
			out = append(out, Flatten(p)...)
		}
		return out
	default:
		return []Geometry{g}
	}
}

// Regions counts the disjoint polygonal components of g.
func Regions(g Geometry) int {
	n := 0
	for _, p := range Flatten(g) {
		if p.Kind() == KindPolygon {
			n++
		}
	}
	return n
}

// LineMerge combines parts into the fewest possible lines. Parts that do not
// touch stay separate components of the result.
func LineMerge(parts ...Geometry) (Geometry, error) {
	var acc Geometry
	for _, p := range parts {
		u, err := acc.Union(p)
		if err != nil {
			return Geometry{}, err
		}
		acc = u
	}
	if acc.IsEmpty() {
		return Geometry{}, nil
	}
	if acc.Kind() == KindLine {
		return acc, nil
	}
	res, err := guard("line_merge", acc.g.LineMerge)
	return wrap(res), err
}

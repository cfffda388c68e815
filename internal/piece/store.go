// Package piece holds the validated, flattened line fragments that move through
// the classification passes.
package piece

import (
	"sort"

	"github.com/sells-group/areamatch/internal/geometry"
	"github.com/sells-group/areamatch/internal/model"
)

// DefaultMinLength is the length at or below which a fragment is discarded.
const DefaultMinLength = 0.001

// Stage records how far a piece got through classification.
type Stage int

// Piece stages. Every piece leaving the classifier is in a terminal stage.
const (
	StageUnclassified Stage = iota
	StagePreferred
	StageProximity
	StageOverlap
	StageUnmatched
)

var stageNames = [...]string{"unclassified", "preferred", "proximity", "overlap", "unmatched"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Terminal reports whether the stage is a final classification.
func (s Stage) Terminal() bool {
	return s != StageUnclassified
}

// NoPolygon marks a piece that is not assigned to any reference area.
const NoPolygon = -1

// Piece is a single-line fragment of a route.
type Piece struct {
	Geom      geometry.Geometry
	Meta      model.Metadata
	RouteKey  int
	Stage     Stage
	PolygonID int
}

// Store is an append-only collection of pieces indexed by originating route.
// It is not safe for concurrent inserts.
type Store struct {
	minLength float64
	pieces    []Piece
	byRoute   map[int][]int
	discarded int
}

// NewStore returns an empty store discarding fragments of length <= minLength.
func NewStore(minLength float64) *Store {
	return &Store{
		minLength: minLength,
		byRoute:   make(map[int][]int),
	}
}

// Insert validates p and stores one piece per single-line constituent of its
// geometry. Empty, point, ring, non-linear and too-short fragments are dropped
// silently. Returns the number of pieces stored.
func (s *Store) Insert(p Piece) int {
	stored := 0
	for _, part := range geometry.Flatten(p.Geom) {
		if !s.valid(part) {
			s.discarded++
			continue
		}
		q := p
		q.Geom = part
		s.byRoute[q.RouteKey] = append(s.byRoute[q.RouteKey], len(s.pieces))
		s.pieces = append(s.pieces, q)
		stored++
	}
	return stored
}

func (s *Store) valid(g geometry.Geometry) bool {
	if g.Kind() != geometry.KindLine {
		return false
	}
	ring, err := g.IsRing()
	if err != nil || ring {
		return false
	}
	length, err := g.Length()
	if err != nil {
		return false
	}
	return length > s.minLength
}

// ByRoute returns the pieces cut from the given route, in insertion order.
func (s *Store) ByRoute(routeKey int) []Piece {
	idx := s.byRoute[routeKey]
	out := make([]Piece, len(idx))
	for i, j := range idx {
		out[i] = s.pieces[j]
	}
	return out
}

// All returns every piece in insertion order.
func (s *Store) All() []Piece {
	out := make([]Piece, len(s.pieces))
	copy(out, s.pieces)
	return out
}

// Routes returns the keys of all routes with at least one piece, sorted.
func (s *Store) Routes() []int {
	keys := make([]int, 0, len(s.byRoute))
	for k := range s.byRoute {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Len returns the number of stored pieces.
func (s *Store) Len() int {
	return len(s.pieces)
}

// Discarded returns how many degenerate fragments were dropped.
func (s *Store) Discarded() int {
	return s.discarded
}

// Package model defines the value types shared by the classification stages.
package model

import (
	"github.com/sells-group/areamatch/internal/geometry"
)

// Feature is one raw record of a collection: geometry plus source attributes
// keyed by source field name.
type Feature struct {
	Geom  geometry.Geometry
	Attrs map[string]any
}

// Polygon is a reference area. Created once at load time and never mutated.
type Polygon struct {
	ID   int
	Geom geometry.Geometry
	Meta Metadata
}

// Route is a line of the base network. Key is the dense provenance key carried
// by every piece cut from the route; OriginalID is the stable identifier used
// to reconcile two line sources.
type Route struct {
	Key        int
	OriginalID string
	Geom       geometry.Geometry
	Meta       Metadata
}

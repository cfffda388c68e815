// Package reconcile merges a secondary line source into the primary one by
// stable identifier.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/model"
)

// Overlayer applies the truthy declared fields of over onto a copy of base.
type Overlayer interface {
	Overlay(base, over model.Metadata) model.Metadata
}

// Result is the reconciled route list with update/append counts.
type Result struct {
	Routes   []model.Route
	Updated  int
	Appended int
}

// Reconcile overlays each secondary route onto the first primary route with the
// same OriginalID, discarding the secondary geometry. Secondary routes without
// a match are appended whole. Routes with an empty OriginalID never match.
// Inputs are not modified; route keys of the result are renumbered densely.
//
// This scans all primaries per secondary route. It runs once over the two
// top-level datasets, not per fragment.
func Reconcile(primary, secondary []model.Route, ov Overlayer) Result {
	res := Result{Routes: make([]model.Route, 0, len(primary)+len(secondary))}
	for _, r := range primary {
		r.Meta = r.Meta.Clone()
		res.Routes = append(res.Routes, r)
	}

	nPrimary := len(res.Routes)
	for _, sec := range secondary {
		matched := false
		if sec.OriginalID != "" {
			for i := 0; i < nPrimary; i++ {
				if res.Routes[i].OriginalID == sec.OriginalID {
					res.Routes[i].Meta = ov.Overlay(res.Routes[i].Meta, sec.Meta)
					matched = true
					break
				}
			}
		}
		if matched {
			res.Updated++
			continue
		}
		sec.Meta = sec.Meta.Clone()
		res.Routes = append(res.Routes, sec)
		res.Appended++
	}

	for i := range res.Routes {
		res.Routes[i].Key = i
	}

	zap.L().Info("reconciled line sources",
		zap.Int("primary", len(primary)),
		zap.Int("secondary", len(secondary)),
		zap.Int("updated", res.Updated),
		zap.Int("appended", res.Appended),
	)
	return res
}

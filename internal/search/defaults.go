package search

import (
	"mongokit/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

// Defaults hold the configuration an engine applies when a query fragment
// leaves a knob unset. Defaults are an explicit value attached to each
// engine instance, merged at build time; there is no mutable shared state.
type Defaults struct {
	// GlobalStages are engine-wide static stages, always assembled first.
	GlobalStages []bson.D
	// Stages are instance-level static stages, assembled after GlobalStages.
	Stages []bson.D
	// Sort applies when a query declares none. It must be stable across
	// calls: cursors encoded under one default sort are meaningless under
	// another.
	Sort model.Sort
	// Projection applies when a query declares none.
	Projection bson.D
	// Limit is the page size when a query declares none; MaxLimit caps
	// explicit requests.
	Limit    int64
	MaxLimit int64
	// CountCap bounds the cost of total counts.
	CountCap int64
}

const (
	defaultLimit    int64 = 20
	defaultMaxLimit int64 = 100
	defaultCountCap int64 = 1000

	// defaultSortField is the insertion-time field used when neither the
	// query nor the instance declares a sort.
	defaultSortField = "created_at"
)

// withFallbacks fills unset values so the engine never has to special-case
// a zero Defaults.
func (d Defaults) withFallbacks() Defaults {
	if d.Limit <= 0 {
		d.Limit = defaultLimit
	}
	if d.MaxLimit <= 0 {
		d.MaxLimit = defaultMaxLimit
	}
	if d.CountCap <= 0 {
		d.CountCap = defaultCountCap
	}
	if len(d.Sort) == 0 {
		d.Sort = model.Sort{{Path: defaultSortField, Descending: true}}
	}
	return d
}

// limitFor resolves the effective page size for a query.
func (d Defaults) limitFor(requested int64) int64 {
	if requested <= 0 {
		return d.Limit
	}
	if requested > d.MaxLimit {
		return d.MaxLimit
	}
	return requested
}

// sortFor resolves the effective sort for a query.
func (d Defaults) sortFor(requested model.Sort) model.Sort {
	if len(requested) > 0 {
		return requested
	}
	return d.Sort
}

// projectionFor resolves the effective projection for a query.
func (d Defaults) projectionFor(requested bson.D) bson.D {
	if len(requested) > 0 {
		return requested
	}
	return d.Projection
}

package model

import (
	"go.mongodb.org/mongo-driver/bson"
)

// SortField is one component of an ordering.
type SortField struct {
	Path       string `json:"path"`
	Descending bool   `json:"descending"`
}

// Sort is an ordered multi-field sort specification.
type Sort []SortField

// BSON renders the sort as a stable sort document.
func (s Sort) BSON() bson.D {
	d := bson.D{}
	for _, f := range s {
		dir := 1
		if f.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: f.Path, Value: dir})
	}
	return d
}

// Reversed returns the sort with every direction flipped. Used when fetching
// a previous page, which walks the ordering backwards.
func (s Sort) Reversed() Sort {
	out := make(Sort, len(s))
	for i, f := range s {
		out[i] = SortField{Path: f.Path, Descending: !f.Descending}
	}
	return out
}

// Paths returns the field paths in sort order.
func (s Sort) Paths() []string {
	paths := make([]string, len(s))
	for i, f := range s {
		paths[i] = f.Path
	}
	return paths
}

// QueryInput is the tagged query variant accepted by search operations.
// A query is either a RawFilter (a verbatim match document) or a
// StructuredQuery; the two are distinguished at the type level.
type QueryInput interface {
	queryInput()
}

// RawFilter is a verbatim match document applied as a single filter stage.
type RawFilter bson.D

func (RawFilter) queryInput() {}

// CollectionQuery is the per-collection portion of a structured query.
type CollectionQuery struct {
	// Pipeline is a raw stage fragment inserted ahead of all filtering.
	Pipeline []bson.D `json:"pipeline,omitempty"`
	// Aggregate holds extra stages inserted after the pre stages.
	Aggregate []bson.D `json:"aggregate,omitempty"`
	// Search conditions, joined by SearchMode.
	Search Filters `json:"search,omitempty"`
	// SearchMode selects the search combinator; empty means AND.
	SearchMode Combinator `json:"searchMode,omitempty"`
	// API conditions, always joined by AND.
	API Filters `json:"api,omitempty"`
	// Permission conditions, always joined by OR.
	Permission Filters `json:"permission,omitempty"`
}

// StructuredQuery is a multi-collection query fragment plus the global
// pagination, sorting and projection knobs.
type StructuredQuery struct {
	Collections map[string]CollectionQuery `json:"collections,omitempty"`

	Sort       Sort   `json:"sort,omitempty"`
	Limit      int64  `json:"limit,omitempty"`
	Skip       int64  `json:"skip,omitempty"`
	Next       string `json:"next,omitempty"`
	Previous   string `json:"previous,omitempty"`
	Total      bool   `json:"total,omitempty"`
	Projection bson.D `json:"projection,omitempty"`
}

func (*StructuredQuery) queryInput() {}

// Collection returns the fragment for the named collection. Missing entries
// yield a zero fragment.
func (q *StructuredQuery) Collection(name string) CollectionQuery {
	if q.Collections == nil {
		return CollectionQuery{}
	}
	return q.Collections[name]
}

// Validate enforces the caller-facing invariants that hold before any I/O.
func (q *StructuredQuery) Validate() error {
	if q.Next != "" && q.Previous != "" {
		return Validation("next and previous cursors are mutually exclusive")
	}
	if q.Limit < 0 {
		return Validation("limit must not be negative")
	}
	if q.Skip < 0 {
		return Validation("skip must not be negative")
	}
	for name, cq := range q.Collections {
		for _, fs := range []Filters{cq.Search, cq.API, cq.Permission} {
			if err := fs.Validate(); err != nil {
				return Validation("collection %q: %v", name, err)
			}
		}
	}
	return nil
}

// Stages are caller-supplied pipeline injections for one search call.
type Stages struct {
	// Pre stages run before any filtering.
	Pre []bson.D
	// PrePagination stages run after filtering, before sort and pagination.
	PrePagination []bson.D
	// Post stages are appended last, after projection.
	Post []bson.D
}

// Lookup describes a best-effort related-record enrichment.
type Lookup struct {
	LocalField   string
	From         string
	ForeignField string
	As           string
}

// SearchResult is one page of matched records plus the effective pagination
// state. Built fresh per search call.
type SearchResult struct {
	Records []bson.M `json:"records"`

	Sort  Sort  `json:"sort"`
	Skip  int64 `json:"skip"`
	Limit int64 `json:"limit"`

	HasNext     bool   `json:"hasNext"`
	HasPrevious bool   `json:"hasPrevious"`
	Next        string `json:"next,omitempty"`
	Previous    string `json:"previous,omitempty"`

	Total *int64 `json:"total,omitempty"`
}

// Package search assembles aggregation pipelines from structured query
// fragments, executes them, and handles cursor- and offset-based pagination.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mongokit/internal/connection"
	"mongokit/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Runner executes an assembled pipeline against a collection. The engine
// never touches the driver directly so it can run against fakes.
type Runner interface {
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error)
}

// ManagerRunner is the production Runner backed by the shared connection.
type ManagerRunner struct {
	Manager *connection.Manager
}

func (r *ManagerRunner) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	db := r.Manager.Database()
	if db == nil {
		return nil, fmt.Errorf("%w: not connected", model.ErrConnection)
	}

	cursor, err := db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Engine runs searches. One engine serves one set of defaults; concurrent
// calls are independent.
type Engine struct {
	runner   Runner
	builder  *builder
	defaults Defaults
	logger   *slog.Logger

	// knownCollection, when set, rejects queries against unknown collection
	// names before any I/O. Usually Manager.HasCollection.
	knownCollection func(string) bool
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithCollectionValidator rejects searches against unknown collections.
func WithCollectionValidator(fn func(string) bool) EngineOption {
	return func(e *Engine) { e.knownCollection = fn }
}

// NewEngine creates an engine. A nil logger falls back to slog.Default.
func NewEngine(runner Runner, defaults Defaults, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	defaults = defaults.withFallbacks()
	e := &Engine{
		runner:   runner,
		builder:  &builder{defaults: defaults},
		defaults: defaults,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// resolve validates the input and merges defaults into an executable plan.
func (e *Engine) resolve(collection string, input model.QueryInput, stages model.Stages) (plan, error) {
	if collection == "" {
		return plan{}, model.Validation("collection name is required")
	}
	if e.knownCollection != nil && !e.knownCollection(collection) {
		return plan{}, model.Validation("unknown collection %q", collection)
	}

	p := plan{collection: collection, stages: stages}

	var q *model.StructuredQuery
	switch in := input.(type) {
	case nil:
		q = &model.StructuredQuery{}
	case model.RawFilter:
		p.raw = in
		q = &model.StructuredQuery{}
	case *model.StructuredQuery:
		if err := in.Validate(); err != nil {
			return plan{}, err
		}
		q = in
		p.fragment = in.Collection(collection)
	default:
		return plan{}, model.Validation("unsupported query input %T", input)
	}

	p.limit = e.defaults.limitFor(q.Limit)
	p.sort = e.defaults.sortFor(q.Sort)
	p.projection = e.defaults.projectionFor(q.Projection)
	p.skip = q.Skip

	switch {
	case q.Next != "":
		boundary, err := DecodeCursor(q.Next)
		if err != nil {
			return plan{}, err
		}
		p.boundary, p.dir = boundary, DirNext
	case q.Previous != "":
		boundary, err := DecodeCursor(q.Previous)
		if err != nil {
			return plan{}, err
		}
		p.boundary, p.dir = boundary, DirPrevious
	}

	// Previous pages walk the ordering backwards; the page is re-reversed
	// after execution.
	p.execSort = p.sort
	if p.dir == DirPrevious {
		p.execSort = p.sort.Reversed()
	}
	if p.boundary != nil {
		// Cursor presence overrides skip entirely, for both the boundary
		// filter and the HasPrevious computation.
		p.skip = 0
	}

	p.total = q.Total
	return p, nil
}

// SearchMany runs the assembled pipeline and returns one page plus
// pagination state.
func (e *Engine) SearchMany(ctx context.Context, collection string, input model.QueryInput, stages model.Stages) (*model.SearchResult, error) {
	p, err := e.resolve(collection, input, stages)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.runner.Aggregate(ctx, collection, e.builder.Build(p))
	if err != nil {
		return nil, model.WrapOp(collection, "searchMany", time.Since(start), err)
	}

	result := e.page(p, rows)

	if p.total {
		total, err := e.total(ctx, p)
		if err != nil {
			return nil, model.WrapOp(collection, "searchMany.total", time.Since(start), err)
		}
		result.Total = &total
	}

	e.logger.Debug("searchMany",
		"collection", collection, "records", len(result.Records), "duration", time.Since(start))
	return result, nil
}

// page trims the lookahead record, restores ordering for previous-direction
// pages, and computes the pagination flags and edge cursors.
func (e *Engine) page(p plan, rows []bson.M) *model.SearchResult {
	lookahead := int64(len(rows)) > p.limit
	if lookahead {
		rows = rows[:p.limit]
	}

	result := &model.SearchResult{
		Sort:  p.sort,
		Skip:  p.skip,
		Limit: p.limit,
	}

	switch p.dir {
	case DirNext:
		result.HasNext = lookahead
		// A next cursor can only come from an earlier page.
		result.HasPrevious = true
	case DirPrevious:
		// A previous cursor can only come from a later page.
		result.HasNext = true
		result.HasPrevious = lookahead
		reverse(rows)
	default:
		result.HasNext = lookahead
		result.HasPrevious = p.skip > 0
	}

	result.Records = rows

	if len(rows) > 0 {
		fields := p.sort.Paths()
		if next, err := EncodeCursor(rows[len(rows)-1], fields, p.sort, DirNext); err == nil {
			result.Next = next
		}
		if prev, err := EncodeCursor(rows[0], fields, p.sort, DirPrevious); err == nil {
			result.Previous = prev
		}
	}
	return result
}

// total runs the capped count pipeline. No match defaults to zero.
func (e *Engine) total(ctx context.Context, p plan) (int64, error) {
	rows, err := e.runner.Aggregate(ctx, p.collection, e.builder.BuildCount(p))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["total"]), nil
}

// SearchOne is SearchMany degenerated to a single record: limit 1, no
// pagination bookkeeping, ErrNotFound on an empty result.
func (e *Engine) SearchOne(ctx context.Context, collection string, input model.QueryInput, stages model.Stages) (bson.M, error) {
	p, err := e.resolve(collection, input, stages)
	if err != nil {
		return nil, err
	}
	// No pagination bookkeeping: fetch exactly one record, no lookahead.
	p.limit = 0

	start := time.Now()
	rows, err := e.runner.Aggregate(ctx, collection, e.builder.Build(p))
	if err != nil {
		return nil, model.WrapOp(collection, "searchOne", time.Since(start), err)
	}

	e.logger.Debug("searchOne", "collection", collection, "found", len(rows) > 0, "duration", time.Since(start))
	if len(rows) == 0 {
		return nil, model.ErrNotFound
	}
	return rows[0], nil
}

// Populate attaches one related record per input record, matched via the
// lookup spec. Enrichment is best effort: a failed or empty lookup is
// logged and skipped, never aborting the primary result.
func (e *Engine) Populate(ctx context.Context, records []bson.M, lookup model.Lookup) {
	if lookup.LocalField == "" || lookup.From == "" || lookup.ForeignField == "" || lookup.As == "" {
		e.logger.Warn("populate skipped: incomplete lookup spec", "from", lookup.From)
		return
	}

	for _, record := range records {
		local, ok := lookupPath(record, lookup.LocalField)
		if !ok {
			continue
		}

		pipeline := mongo.Pipeline{
			matchStage(bson.D{{Key: lookup.ForeignField, Value: bson.D{{Key: "$eq", Value: local}}}}),
			{{Key: "$limit", Value: 1}},
		}
		rows, err := e.runner.Aggregate(ctx, lookup.From, pipeline)
		if err != nil {
			e.logger.Warn("populate lookup failed",
				"from", lookup.From, "field", lookup.ForeignField, "error", err)
			continue
		}
		if len(rows) > 0 {
			record[lookup.As] = rows[0]
		}
	}
}

func reverse(rows []bson.M) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// toInt64 normalizes the count value the driver hands back.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

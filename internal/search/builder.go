package search

import (
	"mongokit/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// plan is a fully resolved search: every default merged, the cursor decoded,
// the mutually exclusive pagination mode already picked.
type plan struct {
	collection string
	fragment   model.CollectionQuery
	raw        model.RawFilter // set only for RawFilter inputs
	stages     model.Stages

	boundary Boundary // decoded cursor, nil in offset mode
	dir      Direction

	sort       model.Sort // effective sort, pre-flip
	execSort   model.Sort // sort actually sent (flipped for previous)
	skip       int64      // applied only in offset mode
	limit      int64      // requested page size
	projection bson.D
	total      bool
}

// builder assembles pipelines from a plan. Assembly order is fixed; two
// builds of the same plan produce identical pipelines.
type builder struct {
	defaults Defaults
}

func matchStage(cond bson.D) bson.D {
	return bson.D{{Key: "$match", Value: cond}}
}

// searchCombinator maps the fragment's declared mode onto a combinator,
// defaulting to AND.
func searchCombinator(mode model.Combinator) model.Combinator {
	if mode == model.CombineOr {
		return model.CombineOr
	}
	return model.CombineAnd
}

// filterStages assembles the shared head of every pipeline: statics, raw
// fragment, pre stages, collection aggregate extras, and the three filter
// families. Empty condition lists contribute no stage.
func (b *builder) filterStages(p plan) mongo.Pipeline {
	pipeline := mongo.Pipeline{}

	pipeline = append(pipeline, b.defaults.GlobalStages...)
	pipeline = append(pipeline, b.defaults.Stages...)

	if len(p.raw) > 0 {
		pipeline = append(pipeline, matchStage(bson.D(p.raw)))
	}
	pipeline = append(pipeline, p.fragment.Pipeline...)
	pipeline = append(pipeline, p.stages.Pre...)
	pipeline = append(pipeline, p.fragment.Aggregate...)

	if cond := p.fragment.Search.Combine(searchCombinator(p.fragment.SearchMode)); cond != nil {
		pipeline = append(pipeline, matchStage(cond))
	}
	if cond := p.fragment.API.Combine(model.CombineAnd); cond != nil {
		pipeline = append(pipeline, matchStage(cond))
	}
	if cond := p.fragment.Permission.Combine(model.CombineOr); cond != nil {
		pipeline = append(pipeline, matchStage(cond))
	}

	pipeline = append(pipeline, p.stages.PrePagination...)
	return pipeline
}

// Build assembles the full search pipeline. Cursor and skip are mutually
// exclusive pagination modes: a present boundary suppresses the skip stage.
// The limit stage always fetches one extra record for lookahead.
func (b *builder) Build(p plan) mongo.Pipeline {
	pipeline := b.filterStages(p)

	if cond := p.boundary.Match(); cond != nil {
		pipeline = append(pipeline, matchStage(cond))
	}

	if len(p.execSort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: p.execSort.BSON()}})
	}
	if p.skip > 0 && p.boundary == nil {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: p.skip}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$limit", Value: p.limit + 1}})

	if len(p.projection) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: p.projection}})
	}

	pipeline = append(pipeline, p.stages.Post...)
	return pipeline
}

// BuildCount assembles the capped total-count pipeline: the filter head
// followed by a hard limit and a count stage.
func (b *builder) BuildCount(p plan) mongo.Pipeline {
	pipeline := b.filterStages(p)
	pipeline = append(pipeline,
		bson.D{{Key: "$limit", Value: b.defaults.CountCap}},
		bson.D{{Key: "$count", Value: "total"}},
	)
	return pipeline
}

package model

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FilterOp defines the supported filter operators.
type FilterOp string

const (
	OpEq       FilterOp = "=="       // Equal
	OpNe       FilterOp = "!="       // Not equal
	OpGt       FilterOp = ">"        // Greater than
	OpGte      FilterOp = ">="       // Greater than or equal
	OpLt       FilterOp = "<"        // Less than
	OpLte      FilterOp = "<="       // Less than or equal
	OpIn       FilterOp = "in"       // Value in array
	OpContains FilterOp = "contains" // Array field contains value
)

// IsValid checks if the operator is valid.
func (op FilterOp) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains:
		return true
	}
	return false
}

// mongoOp maps a FilterOp to its aggregation operator. Empty operators
// default to equality; contains relies on Mongo matching scalars against
// array elements.
func (op FilterOp) mongoOp() string {
	switch op {
	case OpNe:
		return "$ne"
	case OpGt:
		return "$gt"
	case OpGte:
		return "$gte"
	case OpLt:
		return "$lt"
	case OpLte:
		return "$lte"
	case OpIn:
		return "$in"
	default:
		return "$eq"
	}
}

// Filter represents one field condition.
type Filter struct {
	Field string      `json:"field"`
	Op    FilterOp    `json:"op"`
	Value interface{} `json:"value"`
}

// Validate checks if the filter is well formed.
func (f Filter) Validate() bool {
	if f.Field == "" {
		return false
	}
	return f.Op == "" || f.Op.IsValid()
}

// BSON renders the condition as a single-field match document.
func (f Filter) BSON() bson.D {
	return bson.D{{Key: f.Field, Value: bson.D{{Key: f.Op.mongoOp(), Value: f.Value}}}}
}

// Filters is an ordered list of conditions.
type Filters []Filter

// Validate reports the first malformed filter, if any.
func (fs Filters) Validate() error {
	for _, f := range fs {
		if !f.Validate() {
			return Validation("bad filter on field %q", f.Field)
		}
	}
	return nil
}

// Combinator joins a condition list into one match document.
type Combinator string

const (
	CombineAnd Combinator = "$and"
	CombineOr  Combinator = "$or"
)

// Combine renders the filters as one match document joined by the given
// combinator. Returns nil when the list is empty so no stage is emitted for
// empty condition sets.
func (fs Filters) Combine(c Combinator) bson.D {
	if len(fs) == 0 {
		return nil
	}
	if len(fs) == 1 {
		return fs[0].BSON()
	}
	conds := make(bson.A, 0, len(fs))
	for _, f := range fs {
		conds = append(conds, f.BSON())
	}
	return bson.D{{Key: string(c), Value: conds}}
}

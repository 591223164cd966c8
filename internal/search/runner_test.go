package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// memRunner evaluates assembled pipelines against seeded documents. It
// implements the stage vocabulary the builder emits so engine behaviour can
// be exercised without a server.
type memRunner struct {
	mu        sync.Mutex
	data      map[string][]bson.M
	pipelines []mongo.Pipeline
	err       error
	errFor    string // collection name that fails, when set
}

func (m *memRunner) lastPipeline() mongo.Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pipelines) == 0 {
		return nil
	}
	return m.pipelines[len(m.pipelines)-1]
}

func (m *memRunner) Aggregate(_ context.Context, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	m.mu.Lock()
	m.pipelines = append(m.pipelines, pipeline)
	m.mu.Unlock()

	if m.err != nil && (m.errFor == "" || m.errFor == collection) {
		return nil, m.err
	}

	rows := make([]bson.M, len(m.data[collection]))
	copy(rows, m.data[collection])

	for _, stage := range pipeline {
		key, value := stage[0].Key, stage[0].Value
		switch key {
		case "$match":
			rows = matchRows(rows, value.(bson.D))
		case "$sort":
			sortRows(rows, value.(bson.D))
		case "$skip":
			n := int(numeric(value))
			if n > len(rows) {
				n = len(rows)
			}
			rows = rows[n:]
		case "$limit":
			n := int(numeric(value))
			if len(rows) > n {
				rows = rows[:n]
			}
		case "$project":
			rows = projectRows(rows, value.(bson.D))
		case "$count":
			return []bson.M{{value.(string): int64(len(rows))}}, nil
		default:
			// Stage injections carried by tests ($addFields etc.) don't
			// affect the assertions; pass rows through.
		}
	}
	return rows, nil
}

func matchRows(rows []bson.M, cond bson.D) []bson.M {
	out := rows[:0:0]
	for _, row := range rows {
		if matchDoc(row, cond) {
			out = append(out, row)
		}
	}
	return out
}

func matchDoc(doc bson.M, cond bson.D) bool {
	for _, e := range cond {
		switch e.Key {
		case "$and":
			for _, sub := range toConds(e.Value) {
				if !matchDoc(doc, sub) {
					return false
				}
			}
		case "$or":
			any := false
			for _, sub := range toConds(e.Value) {
				if matchDoc(doc, sub) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		default:
			if !matchField(doc, e.Key, e.Value) {
				return false
			}
		}
	}
	return true
}

func toConds(v interface{}) []bson.D {
	arr := v.(bson.A)
	out := make([]bson.D, len(arr))
	for i, c := range arr {
		out[i] = c.(bson.D)
	}
	return out
}

func matchField(doc bson.M, field string, cond interface{}) bool {
	value, present := lookupPath(doc, field)

	ops, ok := cond.(bson.D)
	if !ok {
		return present && compare(value, cond) == 0
	}

	for _, op := range ops {
		if !present {
			return op.Key == "$ne"
		}
		c := compare(value, op.Value)
		switch op.Key {
		case "$eq":
			if c != 0 {
				return false
			}
		case "$ne":
			if c == 0 {
				return false
			}
		case "$gt":
			if c <= 0 {
				return false
			}
		case "$gte":
			if c < 0 {
				return false
			}
		case "$lt":
			if c >= 0 {
				return false
			}
		case "$lte":
			if c > 0 {
				return false
			}
		case "$in":
			found := false
			for _, candidate := range op.Value.(bson.A) {
				if compare(value, candidate) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			panic(fmt.Sprintf("memRunner: unsupported operator %q", op.Key))
		}
	}
	return true
}

// compare orders two values, normalizing numerics so int64 documents match
// float64 boundaries decoded from cursors.
func compare(a, b interface{}) int {
	af, aNum := numericOK(a)
	bf, bNum := numericOK(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func numeric(v interface{}) float64 {
	f, _ := numericOK(v)
	return f
}

func numericOK(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortRows(rows []bson.M, spec bson.D) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, e := range spec {
			a, _ := lookupPath(rows[i], e.Key)
			b, _ := lookupPath(rows[j], e.Key)
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if numeric(e.Value) < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func projectRows(rows []bson.M, spec bson.D) []bson.M {
	out := make([]bson.M, len(rows))
	for i, row := range rows {
		projected := bson.M{}
		if id, ok := row["_id"]; ok {
			projected["_id"] = id
		}
		for _, e := range spec {
			if numeric(e.Value) == 0 {
				delete(projected, e.Key)
				continue
			}
			if v, ok := lookupPath(row, e.Key); ok {
				projected[e.Key] = v
			}
		}
		out[i] = projected
	}
	return out
}

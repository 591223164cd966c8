package search

import (
	"encoding/base64"
	"encoding/json"
	"sort"

	"mongokit/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

// Direction selects which way a cursor walks the ordering.
type Direction string

const (
	DirNext     Direction = "next"
	DirPrevious Direction = "previous"
)

// Boundary is a decoded cursor: field path → {comparison operator: boundary
// value}. Cursors are stateless; a Boundary plus the effective sort is all a
// later call needs to resume.
type Boundary map[string]map[string]interface{}

// EncodeCursor turns a record's sort-key values into an opaque cursor token.
// The comparison operator is $gt for next on an ascending field and $lt for
// next on a descending one, flipped for previous. Fields absent from the
// record are skipped; an empty mapping yields an empty token.
//
// The token is canonical JSON (Go marshals map keys sorted) wrapped in raw
// URL-safe base64, so equal inputs always produce the same string.
func EncodeCursor(record bson.M, fields []string, srt model.Sort, dir Direction) (string, error) {
	descending := make(map[string]bool, len(srt))
	for _, f := range srt {
		descending[f.Path] = f.Descending
	}

	b := Boundary{}
	for _, field := range fields {
		value, ok := lookupPath(record, field)
		if !ok {
			continue
		}
		op := "$gt"
		if (dir == DirNext) == descending[field] {
			op = "$lt"
		}
		b[field] = map[string]interface{}{op: value}
	}
	if len(b) == 0 {
		return "", nil
	}

	data, err := json.Marshal(b)
	if err != nil {
		return "", model.Validation("cursor not serializable: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor reverses EncodeCursor. Empty tokens decode to a nil Boundary.
func DecodeCursor(token string) (Boundary, error) {
	if token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, model.Validation("malformed cursor: %v", err)
	}

	var b Boundary
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, model.Validation("malformed cursor: %v", err)
	}
	return b, nil
}

// Match renders the boundary as one match condition set, field keys and
// operators in sorted order so two renders of the same boundary are
// identical.
func (b Boundary) Match() bson.D {
	if len(b) == 0 {
		return nil
	}

	fields := make([]string, 0, len(b))
	for f := range b {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	match := bson.D{}
	for _, f := range fields {
		ops := make([]string, 0, len(b[f]))
		for op := range b[f] {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		cond := bson.D{}
		for _, op := range ops {
			cond = append(cond, bson.E{Key: op, Value: b[f][op]})
		}
		match = append(match, bson.E{Key: f, Value: cond})
	}
	return match
}

// lookupPath resolves a dotted field path against nested documents.
func lookupPath(record bson.M, path string) (interface{}, bool) {
	var current interface{} = record
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1

		switch doc := current.(type) {
		case bson.M:
			v, ok := doc[key]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]interface{}:
			v, ok := doc[key]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

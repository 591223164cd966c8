package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSortBSON(t *testing.T) {
	t.Parallel()

	s := Sort{{Path: "created_at", Descending: true}, {Path: "_id"}}
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}, s.BSON())
	assert.Equal(t, []string{"created_at", "_id"}, s.Paths())
}

func TestSortReversed(t *testing.T) {
	t.Parallel()

	s := Sort{{Path: "a"}, {Path: "b", Descending: true}}
	rev := s.Reversed()
	assert.Equal(t, Sort{{Path: "a", Descending: true}, {Path: "b"}}, rev)
	// Reversing must not touch the original.
	assert.False(t, s[0].Descending)
}

func TestStructuredQueryValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   StructuredQuery
		wantErr bool
	}{
		{"empty", StructuredQuery{}, false},
		{"next only", StructuredQuery{Next: "abc"}, false},
		{"previous only", StructuredQuery{Previous: "abc"}, false},
		{"both cursors", StructuredQuery{Next: "a", Previous: "b"}, true},
		{"negative limit", StructuredQuery{Limit: -1}, true},
		{"negative skip", StructuredQuery{Skip: -5}, true},
		{
			"bad filter",
			StructuredQuery{Collections: map[string]CollectionQuery{
				"users": {Search: Filters{{Field: ""}}},
			}},
			true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.query.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStructuredQueryCollection(t *testing.T) {
	t.Parallel()

	var q StructuredQuery
	assert.Empty(t, q.Collection("users").Search, "missing map yields zero fragment")

	q.Collections = map[string]CollectionQuery{
		"users": {Search: Filters{{Field: "name", Op: OpEq, Value: "ada"}}},
	}
	assert.Len(t, q.Collection("users").Search, 1)
	assert.Empty(t, q.Collection("posts").Search)
}

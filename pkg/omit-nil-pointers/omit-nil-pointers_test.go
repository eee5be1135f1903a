package omitnilpointers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructFields(t *testing.T) {
	type record struct {
		Code    string  `redis:"code"`
		Name    *string `redis:"name"`
		Skipped string  `redis:"-"`
		Plain   int
		hidden  int
	}

	name := "movie night"
	assert.Equal(t,
		map[string]any{"code": "AB12Q9", "name": "movie night", "Plain": 2},
		StructFields(&record{Code: "AB12Q9", Name: &name, Skipped: "x", Plain: 2, hidden: 1}, "redis"),
	)
	assert.Equal(t,
		map[string]any{"code": "AB12Q9", "Plain": 0},
		StructFields(record{Code: "AB12Q9"}, "redis"),
	)
	assert.Empty(t, StructFields(42, "redis"))
}

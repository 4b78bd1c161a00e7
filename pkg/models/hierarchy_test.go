package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHierarchyFilter_CacheKey(t *testing.T) {
	assert.NotEqual(t,
		HierarchyFilter{AdAccountID: "a|b", Search: "c"}.CacheKey(),
		HierarchyFilter{AdAccountID: "a", Search: "b|c"}.CacheKey(),
		"separator inside a value must not collide")

	assert.Equal(t,
		HierarchyFilter{Country: "tr"}.CacheKey(),
		HierarchyFilter{Country: "TR"}.CacheKey(),
		"country is case-insensitive")

	r := DateRange{Since: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), Until: time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)}
	assert.NotEqual(t, HierarchyFilter{}.CacheKey(), HierarchyFilter{DateRange: &r}.CacheKey())
	assert.Equal(t, HierarchyFilter{DateRange: &r}.CacheKey(), HierarchyFilter{DateRange: &r}.CacheKey())
}

package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/ideaforge/internal/types"
)

func TestSchema_DeclaresTables(t *testing.T) {
	schema := Schema()
	for _, table := range []string{"runs", "run_checkpoints", "run_artifacts"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS "+activeRunIndex)
}

func TestSchema_ActiveIndexCoversActiveStatuses(t *testing.T) {
	schema := Schema()
	idx := strings.Index(schema, activeRunIndex)
	if !assert.GreaterOrEqual(t, idx, 0) {
		return
	}
	clause := schema[idx : idx+strings.Index(schema[idx:], ";")]
	for _, s := range types.ActiveStatuses() {
		assert.Contains(t, clause, "'"+string(s)+"'")
	}
	assert.NotContains(t, clause, "'completed'")
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, []string{}, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}

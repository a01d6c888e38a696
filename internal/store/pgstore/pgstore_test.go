package pgstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDeclaresExpectedTables(t *testing.T) {
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS history_record")
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS cross_chain_message")
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS rebalance_operation")
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS upkeep_checkpoint")
	assert.True(t, strings.Contains(Schema, "PRIMARY KEY"))
}

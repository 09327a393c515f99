package ddl

import (
	"testing"

	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func orderSchema(version int, fields ...models.FieldDefinition) *models.SchemaDefinition {
	return &models.SchemaDefinition{SchemaName: "order", TableName: "order", Version: version, Fields: fields}
}

func TestStatements_CreateTable(t *testing.T) {
	next := orderSchema(1,
		models.FieldDefinition{FieldName: "code", DbColumn: "order_code", LogicType: "string", Length: intPtr(32), Unique: true},
		models.FieldDefinition{FieldName: "amount", DbColumn: "amount", LogicType: "decimal", Length: intPtr(12), Scale: intPtr(2), Nullable: true, Index: true},
	)
	next.Indexes = []models.IndexDefinition{{Columns: []string{"code", "amount"}}}

	stmts, err := NewBuilder("").Statements(nil, next)
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"lc_order\" (\n"+
		"\t\"id\" BIGSERIAL PRIMARY KEY,\n"+
		"\t\"created_date\" TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n"+
		"\t\"last_updated\" TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n"+
		"\t\"order_code\" VARCHAR(32) NOT NULL,\n"+
		"\t\"amount\" NUMERIC(12,2)\n)", stmts[0])
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "uk_order_order_code" ON "lc_order" ("order_code")`, stmts[1])
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_order_amount" ON "lc_order" ("amount")`, stmts[2])
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_order_order_code_amount" ON "lc_order" ("order_code", "amount")`, stmts[3])
}

func TestStatements_AlterAddsOnlyNewColumns(t *testing.T) {
	code := models.FieldDefinition{FieldName: "code", LogicType: "string"}
	note := models.FieldDefinition{FieldName: "note", LogicType: "text"}
	qty := models.FieldDefinition{FieldName: "qty", LogicType: "int"}

	stmts, err := NewBuilder("app").Statements(orderSchema(1, code, note), orderSchema(2, code, qty))
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "app"."lc_order" ADD COLUMN IF NOT EXISTS "qty" INTEGER`}, stmts)
}

func TestStatements_RejectsTypeChange(t *testing.T) {
	prev := orderSchema(1, models.FieldDefinition{FieldName: "qty", LogicType: "int"})
	next := orderSchema(2, models.FieldDefinition{FieldName: "qty", LogicType: "string"})

	_, err := NewBuilder("").Statements(prev, next)
	assert.ErrorIs(t, err, ErrIncompatibleChange)
}

func TestStatements_NamedAndUnknownIndex(t *testing.T) {
	next := orderSchema(1, models.FieldDefinition{FieldName: "code", LogicType: "string"})
	next.Indexes = []models.IndexDefinition{{IndexName: "by_code", Columns: []string{"code", "created_date"}, Unique: true}}

	stmts, err := NewBuilder("").Statements(nil, next)
	require.NoError(t, err)
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "by_code" ON "lc_order" ("code", "created_date")`, stmts[len(stmts)-1])

	next.Indexes = []models.IndexDefinition{{Columns: []string{"nope"}}}
	_, err = NewBuilder("").Statements(nil, next)
	assert.Error(t, err)
}

func TestColumnType(t *testing.T) {
	tests := map[string]string{
		"string":   "VARCHAR(255)",
		"text":     "TEXT",
		"int":      "INTEGER",
		"long":     "BIGINT",
		"decimal":  "NUMERIC",
		"bool":     "BOOLEAN",
		"date":     "DATE",
		"datetime": "TIMESTAMPTZ",
		"json":     "JSONB",
		"uuid":     "UUID",
	}
	for logic, want := range tests {
		got, err := ColumnType(models.FieldDefinition{LogicType: logic})
		require.NoError(t, err, logic)
		assert.Equal(t, want, got, logic)
	}

	_, err := ColumnType(models.FieldDefinition{LogicType: "blob"})
	assert.Error(t, err)
}

func TestIdentifierTruncates(t *testing.T) {
	long := "idx_a_very_long_table_name_that_keeps_going_and_going_and_going_forever"
	got := identifier(long)
	assert.Len(t, got, maxIdentifier)
	assert.Equal(t, got, identifier(long))
}

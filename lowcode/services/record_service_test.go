package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nimbleforge/forge/internal/query"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ticketSchema() *models.SchemaDefinition {
	return &models.SchemaDefinition{
		SchemaName: "ticket",
		TableName:  "ticket",
		Status:     models.StatusPublished,
		Version:    1,
		Fields: []models.FieldDefinition{
			{FieldName: "code", DbColumn: "code", LogicType: "string", Unique: true,
				Sequence: &sequence.Rule{Name: "ticket.code", Prefix: "T", Width: 3}},
			{FieldName: "qty", DbColumn: "qty", LogicType: "int", Index: true},
			{FieldName: "price", DbColumn: "unit_price", LogicType: "decimal", Nullable: true},
			{FieldName: "meta", DbColumn: "meta", LogicType: "json", Nullable: true},
		},
	}
}

func newRecordFixture(t *testing.T) (*fixture, RecordService) {
	t.Helper()
	f := newFixture()
	require.NoError(t, f.registry.Put(ticketSchema()))
	return f, NewRecordService(f.repo, f.registry, f.seq)
}

func TestInsertRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("coerces values and fills the sequence", func(t *testing.T) {
		f, svc := newRecordFixture(t)
		f.repo.On("InsertRecord", mock.Anything, "lc_ticket", map[string]interface{}{
			"code":       "T001",
			"qty":        int64(2),
			"unit_price": "10.50",
			"meta":       `{"color":"red"}`,
		}).Return(int64(7), nil).Once()

		out, err := svc.InsertRecord(ctx, "ticket", map[string]interface{}{
			"qty":   json.Number("2"),
			"price": "10.50",
			"meta":  map[string]interface{}{"color": "red"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), out["id"])
		assert.Equal(t, "T001", out["code"])
		f.repo.AssertExpectations(t)
	})

	t.Run("explicit value skips the sequence", func(t *testing.T) {
		f, svc := newRecordFixture(t)
		f.repo.On("InsertRecord", mock.Anything, "lc_ticket", map[string]interface{}{
			"code": "MANUAL", "qty": int64(1),
		}).Return(int64(1), nil).Once()

		_, err := svc.InsertRecord(ctx, "ticket", map[string]interface{}{"code": "MANUAL", "qty": 1})
		require.NoError(t, err)
		f.repo.AssertExpectations(t)
	})

	rejected := []struct {
		name   string
		values map[string]interface{}
		target error
	}{
		{"unknown field", map[string]interface{}{"qty": 1, "secretColumn": 1}, query.ErrUnknownField},
		{"missing required", map[string]interface{}{"price": "1"}, lcerrors.ErrInvalidRecord},
		{"null required", map[string]interface{}{"qty": nil}, lcerrors.ErrInvalidRecord},
		{"wrong type", map[string]interface{}{"qty": "many"}, lcerrors.ErrInvalidRecord},
		{"system column", map[string]interface{}{"qty": 1, "id": 5}, lcerrors.ErrInvalidRecord},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			f, svc := newRecordFixture(t)
			_, err := svc.InsertRecord(ctx, "ticket", tt.values)
			assert.ErrorIs(t, err, tt.target)
			f.repo.AssertNotCalled(t, "InsertRecord", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("draft only schema", func(t *testing.T) {
		f := newFixture()
		draft := ticketSchema()
		draft.Status = models.StatusDraft
		require.NoError(t, f.registry.Put(draft))
		svc := NewRecordService(f.repo, f.registry, f.seq)

		_, err := svc.InsertRecord(ctx, "ticket", map[string]interface{}{"qty": 1})
		assert.ErrorIs(t, err, lcerrors.ErrSchemaNotPublished)
	})

	t.Run("unknown schema", func(t *testing.T) {
		f, svc := newRecordFixture(t)
		f.repo.On("LoadVersions", mock.Anything, "ghost").Return(nil, nil).Once()

		_, err := svc.InsertRecord(ctx, "ghost", map[string]interface{}{})
		assert.ErrorIs(t, err, lcerrors.ErrSchemaNotFound)
	})
}

func TestQueryRecords(t *testing.T) {
	ctx := context.Background()
	f, svc := newRecordFixture(t)

	cond, err := query.ParseCondition([]byte(`{
		"select": ["code", "qty"],
		"where": {"qty": {"_gt": 1}, "price": {"_is_null": false}},
		"orderBy": [{"field": "qty", "direction": "desc"}],
		"size": 5, "current": 2
	}`))
	require.NoError(t, err)

	rows := []map[string]interface{}{{"code": "T006", "qty": int64(3)}}
	f.repo.On("QueryRecords", mock.Anything, mock.MatchedBy(func(cq *query.CompiledQuery) bool {
		return cq.Table == "lc_ticket" && cq.Limit == 5 && cq.Offset == 5 && len(cq.Projection) == 2
	})).Return(rows, int64(12), nil).Once()

	page, err := svc.QueryRecords(ctx, "ticket", cond)
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total())
	assert.Equal(t, int64(3), page.Pages())
	assert.Equal(t, 2, page.Current())
	assert.True(t, page.HasPrevious())
	assert.True(t, page.HasNext())
	assert.Equal(t, rows, page.Records())

	t.Run("price is not sortable", func(t *testing.T) {
		_, err := svc.QueryRecords(ctx, "ticket", &query.QueryCondition{
			OrderBy: []query.OrderBy{{Field: "price", Direction: "asc"}},
		})
		assert.ErrorIs(t, err, query.ErrUnknownField)
	})

	t.Run("bad pagination", func(t *testing.T) {
		_, err := svc.QueryRecords(ctx, "ticket", (&query.QueryCondition{}).WithPage(10, 0))
		assert.ErrorIs(t, err, query.ErrInvalidPagination)
	})
	f.repo.AssertExpectations(t)
}

package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhere(t *testing.T) {
	w := &where{}
	assert.Equal(t, "TRUE", w.String())

	w.add("a = $%d", 1)
	w.raw("b IS NULL")
	w.add("c = ANY($%d)", "x")
	assert.Equal(t, "a = $1 AND b IS NULL AND c = ANY($2)", w.String())
	assert.Equal(t, []interface{}{1, "x"}, w.args)
}

func TestListAssignmentsQuery(t *testing.T) {
	tenant := uuid.New()
	r := model.DateRange{StartDate: "2025-03-03", EndDate: "2025-03-09"}

	query, args := listAssignmentsQuery(tenant, store.AssignmentQuery{DateRange: r})
	assert.Contains(t, query, "tenant_id = $1 AND date >= $2 AND date <= $3 AND status <> 'cancelled'")
	assert.Contains(t, query, "ORDER BY date ASC")
	require.Len(t, args, 3)
	assert.Equal(t, tenant, args[0])

	query, args = listAssignmentsQuery(tenant, store.AssignmentQuery{
		DateRange:        r,
		ShiftIDs:         []uuid.UUID{uuid.New()},
		WorkerIDs:        []uuid.UUID{uuid.New(), uuid.New()},
		IncludeCancelled: true,
	})
	assert.NotContains(t, query, "cancelled")
	assert.Contains(t, query, "shift_id = ANY($4::uuid[])")
	assert.Contains(t, query, "worker_id = ANY($5::uuid[])")
	assert.Len(t, args, 5)
}

func TestInsertArgsMatchColumns(t *testing.T) {
	tenant := uuid.New()
	s := &model.Shift{BaseModel: model.NewBaseModel(tenant)}
	a := model.NewAssignment(tenant, s, "2025-03-03", nil)
	assert.Len(t, insertArgs(a), 15)
}

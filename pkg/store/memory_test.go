package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShift(tenantID uuid.UUID, code string) *model.Shift {
	return &model.Shift{
		BaseModel: model.NewBaseModel(tenantID), Code: code,
		StartTime: "08:00", EndTime: "16:00", WorkDays: model.Weekdays(),
		MinWorkers: 1, TargetWorkers: 1, MaxWorkers: 2, IsActive: true,
	}
}

func TestMemory_InsertBatchSkipsDoubleBooking(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	m := NewMemory()
	s := newShift(tenant, "M")
	worker := uuid.New()

	first := model.NewAssignment(tenant, s, "2025-03-03", &worker)
	second := model.NewAssignment(tenant, s, "2025-03-03", &worker)
	placeholder := model.NewAssignment(tenant, s, "2025-03-03", nil)

	inserted, err := m.Assignments().InsertBatch(ctx, []*model.ShiftAssignment{first, second, placeholder})
	require.NoError(t, err)
	assert.Len(t, inserted, 2)

	err = m.Assignments().Insert(ctx, model.NewAssignment(tenant, s, "2025-03-03", &worker))
	assert.ErrorIs(t, err, ErrDuplicate)

	// 取消后同一天可以重新排
	require.NoError(t, m.Assignments().UpdateStatus(ctx, tenant, first.ID, model.StatusScheduled, model.StatusCancelled, "取消"))
	require.NoError(t, m.Assignments().Insert(ctx, model.NewAssignment(tenant, s, "2025-03-03", &worker)))
}

func TestMemory_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	m := NewMemory()
	s := newShift(tenant, "M")
	worker := uuid.New()
	a := model.NewAssignment(tenant, s, "2025-03-03", &worker)
	require.NoError(t, m.Assignments().Insert(ctx, a))

	boom := errors.New("boom")
	err := m.WithinTx(ctx, func(tx Tx) error {
		if err := tx.Assignments().UpdateStatus(ctx, tenant, a.ID, model.StatusScheduled, model.StatusCancelled, ""); err != nil {
			return err
		}
		got, _ := tx.Assignments().GetByID(ctx, tenant, a.ID)
		assert.Equal(t, model.StatusCancelled, got.Status, "事务内可见")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.Assignments().GetByID(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
}

func TestMemory_UpdateStatusRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	m := NewMemory()
	a := model.NewAssignment(tenant, newShift(tenant, "M"), "2025-03-03", nil)
	require.NoError(t, m.Assignments().Insert(ctx, a))

	err := m.Assignments().UpdateStatus(ctx, tenant, a.ID, model.StatusConfirmed, model.StatusInProgress, "")
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestMemory_ConcurrentInsertNeverDoubleBooks(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	m := NewMemory()
	s := newShift(tenant, "M")
	worker := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Assignments().InsertBatch(ctx, []*model.ShiftAssignment{
				model.NewAssignment(tenant, s, "2025-03-03", &worker),
			})
		}()
	}
	wg.Wait()

	list, err := m.Assignments().List(ctx, tenant, AssignmentQuery{
		DateRange: model.DateRange{StartDate: "2025-03-03", EndDate: "2025-03-03"},
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemory_ListFiltersAndTenantIsolation(t *testing.T) {
	ctx := context.Background()
	tenant, other := uuid.New(), uuid.New()
	m := NewMemory()
	s := newShift(tenant, "M")
	m.PutShift(s)
	m.PutShift(newShift(other, "M"))

	w1, w2 := uuid.New(), uuid.New()
	_, err := m.Assignments().InsertBatch(ctx, []*model.ShiftAssignment{
		model.NewAssignment(tenant, s, "2025-03-04", &w1),
		model.NewAssignment(tenant, s, "2025-03-03", &w2),
		model.NewAssignment(other, s, "2025-03-03", &w1),
	})
	require.NoError(t, err)

	list, err := m.Assignments().List(ctx, tenant, AssignmentQuery{
		DateRange: model.DateRange{StartDate: "2025-03-01", EndDate: "2025-03-31"},
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-03-03", list[0].Date)

	counts, err := m.Assignments().CountByWorkers(ctx, tenant, []uuid.UUID{w1, w2},
		model.DateRange{StartDate: "2025-03-03", EndDate: "2025-03-09"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[w1])
	assert.Equal(t, 1, counts[w2])

	shifts, err := m.ListActive(ctx, tenant, model.ShiftFilter{})
	require.NoError(t, err)
	assert.Len(t, shifts, 1)

	booked, err := BookedWorkers(ctx, m.Assignments(), tenant, "2025-03-04")
	require.NoError(t, err)
	assert.True(t, booked[w1])
	assert.False(t, booked[w2])
}

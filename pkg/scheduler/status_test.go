package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusUpdater(t *testing.T) {
	f := newFixture()
	s := f.shift("D", "08:00", "16:00", 1, 1, 5)
	w := f.worker("W1", nil)
	wid := w.ID
	a := model.NewAssignment(f.tenant, s, "2025-03-03", &wid)
	require.NoError(t, f.mem.Assignments().Insert(context.Background(), a))

	u := NewStatusUpdater(f.mem, f.options()...)
	ctx := context.Background()

	got, err := u.UpdateStatus(ctx, f.tenant, a.ID, model.StatusConfirmed, "已确认")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, "已确认", got.Notes)

	_, err = u.UpdateStatus(ctx, f.tenant, a.ID, model.StatusAbsent, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))

	_, err = u.UpdateStatus(ctx, f.tenant, a.ID, model.AssignmentStatus("paused"), "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	_, err = u.UpdateStatus(ctx, f.tenant, uuid.New(), model.StatusConfirmed, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	// 其他租户看不到
	_, err = u.UpdateStatus(ctx, uuid.New(), a.ID, model.StatusInProgress, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	for _, next := range []model.AssignmentStatus{model.StatusInProgress, model.StatusCompleted} {
		_, err = u.UpdateStatus(ctx, f.tenant, a.ID, next, "")
		require.NoError(t, err)
	}
	_, err = u.UpdateStatus(ctx, f.tenant, a.ID, model.StatusCancelled, "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition), "终态不可变更")

	evts := f.sink.OfType(events.AssignmentStatusUpdated)
	require.Len(t, evts, 3)
	assert.Equal(t, "scheduled", evts[0].Payload["oldStatus"])
	assert.Equal(t, "confirmed", evts[0].Payload["newStatus"])
	assert.Equal(t, a.ID.String(), evts[2].Payload["assignmentId"])
}

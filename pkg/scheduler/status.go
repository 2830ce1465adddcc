package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// StatusUpdater 处理外部驱动的分配状态变更（确认、上岗、完成、缺勤、取消）
type StatusUpdater struct {
	tx   store.Transactor
	opts options
}

// NewStatusUpdater 创建状态更新器
func NewStatusUpdater(tx store.Transactor, opts ...Option) *StatusUpdater {
	return &StatusUpdater{tx: tx, opts: buildOptions(opts)}
}

// UpdateStatus 按状态机校验并更新分配状态
func (u *StatusUpdater) UpdateStatus(ctx context.Context, tenantID, assignmentID uuid.UUID,
	next model.AssignmentStatus, note string) (*model.ShiftAssignment, error) {
	const op = "update_assignment_status"
	if !next.Valid() {
		return nil, apperrors.InvalidInput("status", string(next)).WithOperation(op)
	}

	var updated *model.ShiftAssignment
	var previous model.AssignmentStatus
	err := u.tx.WithinTx(ctx, func(tx store.Tx) error {
		assigns := tx.Assignments()
		current, err := assigns.GetByID(ctx, tenantID, assignmentID)
		if err != nil {
			return apperrors.Database(err, op)
		}
		if current == nil {
			return apperrors.NotFound("assignment", assignmentID.String()).WithOperation(op)
		}
		if !current.Status.CanTransitionTo(next) {
			return apperrors.InvalidTransition(assignmentID.String(), string(current.Status), string(next)).
				WithOperation(op)
		}

		if err := assigns.UpdateStatus(ctx, tenantID, assignmentID, current.Status, next, note); err != nil {
			if errors.Is(err, store.ErrStatusChanged) {
				return apperrors.New(apperrors.CodeScheduleConflict, "分配状态已被修改，请重试").
					WithField("assignment_id", assignmentID.String()).
					WithOperation(op)
			}
			return apperrors.Database(err, op)
		}

		previous = current.Status
		updated, err = assigns.GetByID(ctx, tenantID, assignmentID)
		if err != nil {
			return apperrors.Database(err, op)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.FromContext(ctxErr, op)
		}
		return nil, err
	}

	events.Emit(ctx, u.opts.sink, u.opts.log, events.New(events.AssignmentStatusUpdated, tenantID, u.opts.now(),
		map[string]interface{}{
			"assignmentId": assignmentID.String(),
			"oldStatus":    string(previous),
			"newStatus":    string(next),
		}))

	return updated, nil
}

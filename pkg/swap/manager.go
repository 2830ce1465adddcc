// Package swap 提供换班功能
package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/availability"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// Request 换班请求
type Request struct {
	AssignmentID uuid.UUID `json:"assignment_id" validate:"required"`
	FromWorkerID uuid.UUID `json:"from_worker_id" validate:"required"`
	ToWorkerID   uuid.UUID `json:"to_worker_id" validate:"required"`
	Reason       string    `json:"reason,omitempty"`
	RequestedBy  string    `json:"requested_by,omitempty"`
}

// Result 换班结果
type Result struct {
	Original    *model.ShiftAssignment `json:"original"`
	Replacement *model.ShiftAssignment `json:"replacement"`
}

// Option 换班管理器选项
type Option func(*Manager)

// WithLogger 设置日志
func WithLogger(l *logger.SchedulerLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSink 设置事件接收端
func WithSink(s events.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager 换班管理器：取消原分配并为接班员工创建新分配，两步在同一事务内完成
type Manager struct {
	tx      store.Transactor
	assigns store.AssignmentReader
	shifts  store.ShiftStore
	gate    availability.Gate

	log  *logger.SchedulerLogger
	sink events.Sink
	now  func() time.Time
}

// NewManager 创建换班管理器
func NewManager(tx store.Transactor, assigns store.AssignmentReader, shifts store.ShiftStore,
	gate availability.Gate, opts ...Option) *Manager {
	m := &Manager{
		tx:      tx,
		assigns: assigns,
		shifts:  shifts,
		gate:    gate,
		log:     logger.NewSchedulerLogger(),
		sink:    events.NopSink{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Swap 执行换班。任一前置检查失败时不写入任何数据。
func (m *Manager) Swap(ctx context.Context, tenantID uuid.UUID, req Request) (*Result, error) {
	const op = "swap_shift"

	original, shift, err := m.check(ctx, m.assigns, tenantID, req, op)
	if err != nil {
		return nil, err
	}

	gateResult, err := m.gate.CheckAvailability(ctx, tenantID, req.ToWorkerID, original.Date,
		shift.StartTime, shift.EndTime, shift.DurationHours())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "可用性检查失败").
			WithField("worker_id", req.ToWorkerID.String()).
			WithOperation(op)
	}
	if !gateResult.Available {
		return nil, apperrors.ScheduleConflict(req.ToWorkerID.String(), original.Date, "员工不可用: "+gateResult.Reason).
			WithField("assignment_id", original.ID.String()).
			WithOperation(op)
	}

	if err := m.checkBooked(ctx, m.assigns, tenantID, req.ToWorkerID, original, op); err != nil {
		return nil, err
	}

	now := m.now()
	var result *Result
	err = m.tx.WithinTx(ctx, func(tx store.Tx) error {
		assigns := tx.Assignments()
		// 事务内重新确认，防止检查之后被并发修改
		current, _, err := m.check(ctx, assigns, tenantID, req, op)
		if err != nil {
			return err
		}
		if err := m.checkBooked(ctx, assigns, tenantID, req.ToWorkerID, current, op); err != nil {
			return err
		}

		note := fmt.Sprintf("换班给 %s", req.ToWorkerID)
		if req.Reason != "" {
			note += ": " + req.Reason
		}
		if err := assigns.UpdateStatus(ctx, tenantID, current.ID, current.Status, model.StatusCancelled, note); err != nil {
			if errors.Is(err, store.ErrStatusChanged) {
				return apperrors.New(apperrors.CodeScheduleConflict, "原分配状态已被修改，请重试").
					WithField("assignment_id", current.ID.String()).
					WithOperation(op)
			}
			return apperrors.Database(err, op)
		}

		toWorker := req.ToWorkerID
		originalID := current.ID
		replacement := model.NewAssignment(tenantID, shift, current.Date, &toWorker)
		replacement.WorkCenterID = current.WorkCenterID
		replacement.ReplacementFor = &originalID
		replacement.ApprovedBy = req.RequestedBy
		replacement.ApprovedAt = &now
		replacement.Notes = req.Reason
		if err := assigns.Insert(ctx, replacement); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperrors.ScheduleConflict(toWorker.String(), current.Date, "当天已有排班").WithOperation(op)
			}
			return apperrors.Database(err, op)
		}

		cancelled, err := assigns.GetByID(ctx, tenantID, current.ID)
		if err != nil {
			return apperrors.Database(err, op)
		}
		result = &Result{Original: cancelled, Replacement: replacement}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.FromContext(ctxErr, op)
		}
		return nil, err
	}

	m.log.SwapPerformed(original.ID.String(), req.FromWorkerID.String(), req.ToWorkerID.String(), original.Date)
	events.Emit(ctx, m.sink, m.log, events.New(events.ShiftSwapped, tenantID, now, map[string]interface{}{
		"originalAssignmentId": original.ID.String(),
		"fromWorkerId":         req.FromWorkerID.String(),
		"toWorkerId":           req.ToWorkerID.String(),
		"date":                 original.Date,
		"shiftId":              original.ShiftID.String(),
		"reason":               req.Reason,
		"requestedBy":          req.RequestedBy,
	}))

	return result, nil
}

// check 校验分配存在、归属和状态
func (m *Manager) check(ctx context.Context, assigns store.AssignmentReader, tenantID uuid.UUID,
	req Request, op string) (*model.ShiftAssignment, *model.Shift, error) {
	a, err := assigns.GetByID(ctx, tenantID, req.AssignmentID)
	if err != nil {
		return nil, nil, apperrors.Database(err, op)
	}
	if a == nil {
		return nil, nil, apperrors.NotFound("assignment", req.AssignmentID.String()).WithOperation(op)
	}
	if req.FromWorkerID == req.ToWorkerID {
		return nil, nil, apperrors.InvalidInput("to_worker_id", "不能与原员工相同").WithOperation(op)
	}
	if !a.BelongsTo(req.FromWorkerID) {
		return nil, nil, apperrors.InvalidInput("from_worker_id", "分配不属于该员工").
			WithField("assignment_id", a.ID.String()).
			WithOperation(op)
	}
	if a.Status != model.StatusScheduled && a.Status != model.StatusConfirmed {
		return nil, nil, apperrors.InvalidInput("assignment", "状态为 "+string(a.Status)+"，不能换班").
			WithField("assignment_id", a.ID.String()).
			WithOperation(op)
	}

	shift, err := m.shifts.GetByID(ctx, tenantID, a.ShiftID)
	if err != nil {
		return nil, nil, apperrors.Database(err, op)
	}
	if shift == nil {
		return nil, nil, apperrors.NotFound("shift", a.ShiftID.String()).WithOperation(op)
	}
	return a, shift, nil
}

func (m *Manager) checkBooked(ctx context.Context, assigns store.AssignmentReader, tenantID, workerID uuid.UUID,
	original *model.ShiftAssignment, op string) error {
	booked, err := store.IsBooked(ctx, assigns, tenantID, workerID, original.Date, original.ID)
	if err != nil {
		return apperrors.Database(err, op)
	}
	if booked {
		return apperrors.ScheduleConflict(workerID.String(), original.Date, "当天已有排班").
			WithField("assignment_id", original.ID.String()).
			WithOperation(op)
	}
	return nil
}

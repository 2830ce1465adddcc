package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// GenerateRequest 排班生成请求
type GenerateRequest struct {
	model.DateRange
	ShiftIDs     []uuid.UUID `json:"shift_ids,omitempty"`
	DepartmentID *uuid.UUID  `json:"department_id,omitempty"`
	WorkCenterID *uuid.UUID  `json:"work_center_id,omitempty"`
	AutoAssign   bool        `json:"auto_assign"`
	AssignOptions
}

// Filter 返回班次筛选条件
func (r GenerateRequest) Filter() model.ShiftFilter {
	return model.ShiftFilter{
		ShiftIDs:     r.ShiftIDs,
		DepartmentID: r.DepartmentID,
		WorkCenterID: r.WorkCenterID,
	}
}

// GenerateResult 排班生成结果
type GenerateResult struct {
	StartDate    string                   `json:"start_date"`
	EndDate      string                   `json:"end_date"`
	Assignments  []*model.ShiftAssignment `json:"assignments"`
	Slots        int                      `json:"slots"`        // 处理的 班次×日期 数
	Understaffed int                      `json:"understaffed"` // 自动分配人数不足的 班次×日期 数
	Duplicates   int                      `json:"duplicates"`   // 因并发写入被唯一约束跳过的分配数
	Duration     time.Duration            `json:"duration"`
}

// Count 已写入的分配数
func (r *GenerateResult) Count() int {
	return len(r.Assignments)
}

// Generator 排班生成器
type Generator struct {
	catalog  *ShiftCatalog
	calendar *CalendarResolver
	assigner *AutoAssigner
	tx       store.Transactor
	opts     options
}

// NewGenerator 创建排班生成器
func NewGenerator(catalog *ShiftCatalog, calendar *CalendarResolver, assigner *AutoAssigner,
	tx store.Transactor, opts ...Option) *Generator {
	return &Generator{
		catalog:  catalog,
		calendar: calendar,
		assigner: assigner,
		tx:       tx,
		opts:     buildOptions(opts),
	}
}

// Generate 按日期范围生成排班。
// 每个 班次×日期 在独立事务中写入；取消时已提交的部分保留，
// 返回已完成部分的结果和 CANCELLED/TIMEOUT 错误，不发布事件。
func (g *Generator) Generate(ctx context.Context, tenantID uuid.UUID, req GenerateRequest) (*GenerateResult, error) {
	if err := req.DateRange.Validate(); err != nil {
		return nil, apperrors.InvalidInput("date_range", err.Error()).WithOperation("generate_schedule")
	}

	shifts, err := g.catalog.Resolve(ctx, tenantID, req.Filter())
	if err != nil {
		return nil, err
	}

	start := g.opts.now()
	g.opts.log.StartGeneration(tenantID.String(), req.StartDate, req.EndDate, len(shifts), req.AutoAssign)

	result := &GenerateResult{
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Assignments: []*model.ShiftAssignment{},
	}

	for _, date := range req.Dates() {
		if err := ctx.Err(); err != nil {
			result.Duration = g.opts.now().Sub(start)
			return result, apperrors.FromContext(err, "generate_schedule").WithField("date", date)
		}

		day, err := g.calendar.Resolve(ctx, tenantID, date)
		if err != nil {
			return result, apperrors.Database(err, "generate_schedule").WithField("date", date)
		}
		if g.calendar.SkipDate(day) {
			continue
		}

		for _, shift := range shifts {
			if !g.catalog.ActiveOn(shift, day) {
				continue
			}
			exc, err := g.calendar.Exception(ctx, tenantID, shift.ID, date)
			if err != nil {
				return result, apperrors.Database(err, "generate_schedule").WithField("shift_id", shift.ID.String())
			}
			if exc != nil && exc.IsCancelled {
				continue
			}

			target := CalculateTarget(TargetInput{
				Shift:     shift,
				Override:  day.OverrideFor(shift.ID),
				Exception: exc,
				Capacity:  day.CapacityPercentage,
			})
			if target == 0 {
				continue
			}

			result.Slots++
			if err := g.fillSlot(ctx, tenantID, EffectiveShift(shift, exc), date, target, req, result); err != nil {
				return result, err
			}
		}
	}

	result.Duration = g.opts.now().Sub(start)
	g.opts.log.GenerationComplete(tenantID.String(), result.Count(), result.Duration)
	g.opts.log.SkippedDuplicates("generate_schedule", result.Duplicates)

	events.Emit(ctx, g.opts.sink, g.opts.log, events.New(events.ScheduleGenerated, tenantID, g.opts.now(),
		map[string]interface{}{
			"startDate":       req.StartDate,
			"endDate":         req.EndDate,
			"assignmentCount": result.Count(),
		}))

	return result, nil
}

// fillSlot 在一个事务内补足班次某天的分配。已有的非取消分配计入需求，重复生成不会叠加。
func (g *Generator) fillSlot(ctx context.Context, tenantID uuid.UUID, shift *model.Shift, date string,
	target int, req GenerateRequest, result *GenerateResult) error {
	var (
		created []*model.ShiftAssignment
		skipped int
		short   bool
	)
	err := g.tx.WithinTx(ctx, func(tx store.Tx) error {
		created, skipped, short = nil, 0, false
		assigns := tx.Assignments()

		existing, err := assigns.List(ctx, tenantID, store.AssignmentQuery{
			DateRange: model.DateRange{StartDate: date, EndDate: date},
			ShiftIDs:  []uuid.UUID{shift.ID},
		})
		if err != nil {
			return err
		}
		need := target - len(existing)
		if need <= 0 {
			return nil
		}

		var batch []*model.ShiftAssignment
		if req.AutoAssign {
			batch, err = g.assigner.Assign(ctx, assigns, tenantID, shift, date, need, req.AssignOptions)
			if err != nil {
				return err
			}
			if len(batch) < need {
				short = true
				g.opts.log.Understaffed(shift.Code, date, target, len(existing)+len(batch))
			}
		} else {
			batch = make([]*model.ShiftAssignment, 0, need)
			for i := 0; i < need; i++ {
				batch = append(batch, model.NewAssignment(tenantID, shift, date, nil))
			}
		}
		if len(batch) == 0 {
			return nil
		}

		created, err = assigns.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		skipped = len(batch) - len(created)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.FromContext(ctxErr, "generate_schedule").WithField("date", date)
		}
		return apperrors.Database(fmt.Errorf("写入 %s/%s 失败: %w", shift.Code, date, err), "generate_schedule").
			WithField("shift_id", shift.ID.String()).
			WithField("date", date)
	}

	result.Assignments = append(result.Assignments, created...)
	result.Duplicates += skipped
	if short {
		result.Understaffed++
	}
	return nil
}

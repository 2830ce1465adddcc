package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// PatternRequest 轮班模式应用请求
type PatternRequest struct {
	model.DateRange
	Pattern   model.ShiftPattern `json:"pattern"`
	WorkerIDs []uuid.UUID        `json:"worker_ids"`
}

// PatternResult 轮班模式应用结果
type PatternResult struct {
	PatternName string                   `json:"pattern_name"`
	Assignments []*model.ShiftAssignment `json:"assignments"`
	Skipped     int                      `json:"skipped"` // 当天已有排班而跳过的 员工×日期 数
}

// PatternApplier 将轮班模式投射到员工和日期上
type PatternApplier struct {
	shifts store.ShiftStore
	tx     store.Transactor
	opts   options
}

// NewPatternApplier 创建轮班模式应用器
func NewPatternApplier(shifts store.ShiftStore, tx store.Transactor, opts ...Option) *PatternApplier {
	return &PatternApplier{shifts: shifts, tx: tx, opts: buildOptions(opts)}
}

// Apply 应用轮班模式。所有分配在一个事务内写入，员工当天已有排班则跳过。
func (p *PatternApplier) Apply(ctx context.Context, tenantID uuid.UUID, req PatternRequest) (*PatternResult, error) {
	const op = "apply_pattern"
	if err := req.DateRange.Validate(); err != nil {
		return nil, apperrors.InvalidInput("date_range", err.Error()).WithOperation(op)
	}
	if len(req.Pattern.ShiftCodes) == 0 {
		return nil, apperrors.InvalidInput("pattern.shift_codes", "不能为空").WithOperation(op)
	}
	if len(req.WorkerIDs) == 0 {
		return nil, apperrors.InvalidInput("worker_ids", "不能为空").WithOperation(op)
	}

	origin := req.StartDate
	if req.Pattern.StartDate != "" {
		if _, err := model.ParseDate(req.Pattern.StartDate); err != nil {
			return nil, apperrors.InvalidInput("pattern.start_date", err.Error()).WithOperation(op)
		}
		origin = req.Pattern.StartDate
	}

	// 先解析全部班次代码
	codes := req.Pattern.WorkCodes()
	shifts, err := p.shifts.GetByCodes(ctx, tenantID, codes)
	if err != nil {
		return nil, apperrors.Database(err, op)
	}
	var missing []string
	for _, c := range codes {
		if _, ok := shifts[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NotFound("shift_code", strings.Join(missing, ",")).WithOperation(op)
	}

	workers := dedupe(req.WorkerIDs)
	result := &PatternResult{PatternName: req.Pattern.Name, Assignments: []*model.ShiftAssignment{}}

	var created []*model.ShiftAssignment
	var skipped int
	err = p.tx.WithinTx(ctx, func(tx store.Tx) error {
		created, skipped = nil, 0
		assigns := tx.Assignments()

		existing, err := assigns.List(ctx, tenantID, store.AssignmentQuery{
			DateRange: req.DateRange,
			WorkerIDs: workers,
		})
		if err != nil {
			return err
		}
		booked := make(map[string]bool, len(existing))
		for _, a := range existing {
			booked[bookingKey(*a.WorkerID, a.Date)] = true
		}

		var batch []*model.ShiftAssignment
		for _, date := range req.Dates() {
			code := req.Pattern.CodeAt(model.DaysBetween(origin, date))
			if model.IsRestCode(code) {
				continue
			}
			shift := shifts[code]
			for _, w := range workers {
				if booked[bookingKey(w, date)] {
					skipped++
					continue
				}
				id := w
				batch = append(batch, model.NewAssignment(tenantID, shift, date, &id))
			}
		}
		if len(batch) == 0 {
			return nil
		}

		created, err = assigns.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		skipped += len(batch) - len(created)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.FromContext(ctxErr, op)
		}
		return nil, apperrors.Database(fmt.Errorf("写入轮班分配失败: %w", err), op).
			WithField("pattern", req.Pattern.Name)
	}

	result.Assignments = append(result.Assignments, created...)
	result.Skipped = skipped
	p.opts.log.PatternApplied(req.Pattern.Name, len(workers), len(created))

	events.Emit(ctx, p.opts.sink, p.opts.log, events.New(events.PatternApplied, tenantID, p.opts.now(),
		map[string]interface{}{
			"patternName":     req.Pattern.Name,
			"workerCount":     len(workers),
			"assignmentCount": len(created),
			"startDate":       req.StartDate,
			"endDate":         req.EndDate,
		}))

	return result, nil
}

func bookingKey(workerID uuid.UUID, date string) string {
	return workerID.String() + "|" + date
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package scheduler

import (
	"context"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// ShiftCatalog 班次目录
type ShiftCatalog struct {
	shifts store.ShiftStore
}

// NewShiftCatalog 创建班次目录
func NewShiftCatalog(shifts store.ShiftStore) *ShiftCatalog {
	return &ShiftCatalog{shifts: shifts}
}

// Resolve 返回满足筛选条件的启用班次，没有匹配时返回 NotFound
func (c *ShiftCatalog) Resolve(ctx context.Context, tenantID uuid.UUID, filter model.ShiftFilter) ([]*model.Shift, error) {
	shifts, err := c.shifts.ListActive(ctx, tenantID, filter)
	if err != nil {
		return nil, apperrors.Database(err, "list_shifts")
	}
	if len(shifts) == 0 {
		return nil, apperrors.NotFound("shift", describeFilter(filter)).WithOperation("resolve_shifts")
	}
	return shifts, nil
}

// ActiveOn 检查班次在某天是否需要排班。
// 工作日按班次的星期设置判断；非工作日只保留日历中显式调整的班次。
// 日历调整标记取消时不排。
func (c *ShiftCatalog) ActiveOn(shift *model.Shift, day *model.ProductionCalendar) bool {
	override := day.OverrideFor(shift.ID)
	if override != nil && override.IsCancelled {
		return false
	}
	if !day.IsWorkingDay {
		return override != nil
	}
	return shift.IsActiveOn(day.Date)
}

// EffectiveShift 应用例外中的替代时段，返回副本
func EffectiveShift(shift *model.Shift, exc *model.ShiftException) *model.Shift {
	if exc == nil || (exc.AlternateStartTime == nil && exc.AlternateEndTime == nil) {
		return shift
	}
	cp := *shift
	if exc.AlternateStartTime != nil {
		cp.StartTime = *exc.AlternateStartTime
	}
	if exc.AlternateEndTime != nil {
		cp.EndTime = *exc.AlternateEndTime
	}
	return &cp
}

func describeFilter(f model.ShiftFilter) string {
	switch {
	case len(f.ShiftIDs) > 0:
		return f.ShiftIDs[0].String()
	case f.DepartmentID != nil:
		return "department:" + f.DepartmentID.String()
	case f.WorkCenterID != nil:
		return "work_center:" + f.WorkCenterID.String()
	}
	return "*"
}

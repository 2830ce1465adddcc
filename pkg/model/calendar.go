// Package model 定义排班核心的数据模型
package model

import (
	"github.com/google/uuid"
)

// ShiftException 班次例外（按班次+日期）
type ShiftException struct {
	BaseModel
	ShiftID            uuid.UUID `json:"shift_id" db:"shift_id"`
	Date               string    `json:"date" db:"date"`
	IsCancelled        bool      `json:"is_cancelled" db:"is_cancelled"`
	ReducedCapacity    *int      `json:"reduced_capacity,omitempty" db:"reduced_capacity"` // 百分比
	AlternateStartTime *string   `json:"alternate_start_time,omitempty" db:"alternate_start_time"`
	AlternateEndTime   *string   `json:"alternate_end_time,omitempty" db:"alternate_end_time"`
	Reason             string    `json:"reason,omitempty" db:"reason"`
}

// CalendarShiftOverride 日历中针对某班次的调整
type CalendarShiftOverride struct {
	ShiftID     uuid.UUID `json:"shift_id"`
	MinWorkers  *int      `json:"min_workers,omitempty"`
	MaxWorkers  *int      `json:"max_workers,omitempty"`
	IsCancelled bool      `json:"is_cancelled"`
}

// ProductionCalendar 生产日历（每天一条）
type ProductionCalendar struct {
	TenantID           uuid.UUID               `json:"tenant_id" db:"tenant_id"`
	Date               string                  `json:"date" db:"date"`
	IsWorkingDay       bool                    `json:"is_working_day" db:"is_working_day"`
	IsHoliday          bool                    `json:"is_holiday" db:"is_holiday"`
	CapacityPercentage int                     `json:"capacity_percentage" db:"capacity_percentage"`
	ShiftOverrides     []CalendarShiftOverride `json:"shift_overrides,omitempty" db:"shift_overrides"`
	Notes              string                  `json:"notes,omitempty" db:"notes"`
}

// DefaultCalendarDay 没有日历记录时的默认值：工作日、满负荷、无调整
func DefaultCalendarDay(tenantID uuid.UUID, date string) *ProductionCalendar {
	return &ProductionCalendar{
		TenantID:           tenantID,
		Date:               date,
		IsWorkingDay:       true,
		CapacityPercentage: 100,
	}
}

// OverrideFor 返回某班次的调整
func (c *ProductionCalendar) OverrideFor(shiftID uuid.UUID) *CalendarShiftOverride {
	for i := range c.ShiftOverrides {
		if c.ShiftOverrides[i].ShiftID == shiftID {
			return &c.ShiftOverrides[i]
		}
	}
	return nil
}

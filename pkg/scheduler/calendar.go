// Package scheduler 实现排班生成、轮班模式应用和状态更新
package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// CalendarResolver 查询生产日历与班次例外
type CalendarResolver struct {
	calendar   store.CalendarStore
	exceptions store.ExceptionStore
}

// NewCalendarResolver 创建日历解析器
func NewCalendarResolver(calendar store.CalendarStore, exceptions store.ExceptionStore) *CalendarResolver {
	return &CalendarResolver{calendar: calendar, exceptions: exceptions}
}

// Resolve 返回某天的日历，没有记录时按满负荷工作日处理
func (r *CalendarResolver) Resolve(ctx context.Context, tenantID uuid.UUID, date string) (*model.ProductionCalendar, error) {
	day, err := r.calendar.GetDay(ctx, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("查询生产日历 %s 失败: %w", date, err)
	}
	if day == nil {
		return model.DefaultCalendarDay(tenantID, date), nil
	}
	if day.CapacityPercentage < 0 {
		day.CapacityPercentage = 0
	} else if day.CapacityPercentage > 100 {
		day.CapacityPercentage = 100
	}
	return day, nil
}

// SkipDate 非工作日且没有任何班次调整时跳过
func (r *CalendarResolver) SkipDate(day *model.ProductionCalendar) bool {
	return !day.IsWorkingDay && len(day.ShiftOverrides) == 0
}

// Exception 返回班次在某天的例外，没有则返回 nil
func (r *CalendarResolver) Exception(ctx context.Context, tenantID, shiftID uuid.UUID, date string) (*model.ShiftException, error) {
	exc, err := r.exceptions.Get(ctx, tenantID, shiftID, date)
	if err != nil {
		return nil, fmt.Errorf("查询班次例外 %s/%s 失败: %w", shiftID, date, err)
	}
	return exc, nil
}

// Package model 定义排班核心的数据模型
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout 日期格式（YYYY-MM-DD）
const DateLayout = "2006-01-02"

// ClockLayout 时刻格式（HH:MM）
const ClockLayout = "15:04"

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel(tenantID uuid.UUID) BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		TenantID:  tenantID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DateRange 日期范围（闭区间）
type DateRange struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// Validate 检查日期格式与先后顺序
func (r DateRange) Validate() error {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return err
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("结束日期 %s 早于开始日期 %s", r.EndDate, r.StartDate)
	}
	return nil
}

// Dates 返回范围内的所有日期
func (r DateRange) Dates() []string {
	start, err1 := ParseDate(r.StartDate)
	end, err2 := ParseDate(r.EndDate)
	if err1 != nil || err2 != nil {
		return nil
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, FormatDate(d))
	}
	return dates
}

// Contains 检查日期是否在范围内
func (r DateRange) Contains(date string) bool {
	return date >= r.StartDate && date <= r.EndDate
}

// ParseDate 解析 YYYY-MM-DD 日期（UTC 零点）
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("无效日期 '%s': %w", s, err)
	}
	return t, nil
}

// FormatDate 格式化日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays 日期加减天数
func AddDays(date string, days int) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return FormatDate(t.AddDate(0, 0, days))
}

// DaysBetween 返回 to - from 的天数
func DaysBetween(from, to string) int {
	f, err1 := ParseDate(from)
	t, err2 := ParseDate(to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(t.Sub(f).Hours() / 24)
}

// ISOWeekBounds 返回包含该日期的 ISO 周（周一至周日）
func ISOWeekBounds(date string) (monday, sunday string) {
	t, err := ParseDate(date)
	if err != nil {
		return date, date
	}
	offset := (int(t.Weekday()) + 6) % 7 // 周一=0
	start := t.AddDate(0, 0, -offset)
	return FormatDate(start), FormatDate(start.AddDate(0, 0, 6))
}

// ISOWeekKey 返回 ISO 周标识，如 2025-W03
func ISOWeekKey(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return ""
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ParseClock 解析 HH:MM 为当天零点起的偏移量
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("无效时刻 '%s': %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// At 组合日期与时刻
func At(date, clock string) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	offset, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(offset), nil
}

// Package model 定义排班核心的数据模型
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShiftType 班次类型
type ShiftType string

const (
	ShiftMorning   ShiftType = "morning"
	ShiftAfternoon ShiftType = "afternoon"
	ShiftEvening   ShiftType = "evening"
	ShiftNight     ShiftType = "night"
	ShiftRotating  ShiftType = "rotating"
	ShiftSplit     ShiftType = "split" // 两头班
	ShiftFlexible  ShiftType = "flexible"
	ShiftWeekend   ShiftType = "weekend"
)

// Valid 检查班次类型是否合法
func (t ShiftType) Valid() bool {
	switch t {
	case ShiftMorning, ShiftAfternoon, ShiftEvening, ShiftNight,
		ShiftRotating, ShiftSplit, ShiftFlexible, ShiftWeekend:
		return true
	}
	return false
}

// WorkDay 工作日标签
type WorkDay string

const (
	Monday    WorkDay = "mon"
	Tuesday   WorkDay = "tue"
	Wednesday WorkDay = "wed"
	Thursday  WorkDay = "thu"
	Friday    WorkDay = "fri"
	Saturday  WorkDay = "sat"
	Sunday    WorkDay = "sun"
)

var weekdayTags = map[time.Weekday]WorkDay{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// WorkDayOf 返回日期对应的工作日标签
func WorkDayOf(date string) (WorkDay, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return weekdayTags[t.Weekday()], nil
}

// Weekdays 周一至周五
func Weekdays() []WorkDay {
	return []WorkDay{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// SkillRequirement 技能要求
type SkillRequirement struct {
	Skill    string `json:"skill" validate:"required"`
	MinCount int    `json:"min_count" validate:"gte=0"`
	Level    *int   `json:"level,omitempty"`
}

// Shift 班次定义
type Shift struct {
	BaseModel
	Code              string             `json:"code" db:"code"`
	Name              string             `json:"name" db:"name"`
	Type              ShiftType          `json:"type" db:"shift_type"`
	StartTime         string             `json:"start_time" db:"start_time"` // HH:MM
	EndTime           string             `json:"end_time" db:"end_time"`     // HH:MM
	IsOvernight       bool               `json:"is_overnight" db:"is_overnight"`
	BreakMinutes      int                `json:"break_minutes" db:"break_minutes"`
	WorkDays          []WorkDay          `json:"work_days" db:"work_days"`
	MinWorkers        int                `json:"min_workers" db:"min_workers"`
	TargetWorkers     int                `json:"target_workers" db:"target_workers"`
	MaxWorkers        int                `json:"max_workers" db:"max_workers"`
	SkillRequirements []SkillRequirement `json:"skill_requirements,omitempty" db:"skill_requirements"`
	DepartmentID      *uuid.UUID         `json:"department_id,omitempty" db:"department_id"`
	WorkCenterID      *uuid.UUID         `json:"work_center_id,omitempty" db:"work_center_id"`
	IsActive          bool               `json:"is_active" db:"is_active"`
	Priority          int                `json:"priority" db:"priority"`
}

// Validate 检查班次定义
func (s *Shift) Validate() error {
	if s.MinWorkers < 0 || s.TargetWorkers < 0 || s.MaxWorkers < 0 {
		return fmt.Errorf("班次 %s 人数不能为负数", s.Code)
	}
	if s.MinWorkers > s.TargetWorkers || s.TargetWorkers > s.MaxWorkers {
		return fmt.Errorf("班次 %s 人数须满足 min ≤ target ≤ max (%d/%d/%d)",
			s.Code, s.MinWorkers, s.TargetWorkers, s.MaxWorkers)
	}
	if _, err := ParseClock(s.StartTime); err != nil {
		return err
	}
	if _, err := ParseClock(s.EndTime); err != nil {
		return err
	}
	return nil
}

// IsActiveOn 检查班次在该日期（按星期）是否生效
func (s *Shift) IsActiveOn(date string) bool {
	day, err := WorkDayOf(date)
	if err != nil {
		return false
	}
	for _, d := range s.WorkDays {
		if WorkDay(strings.ToLower(string(d))) == day {
			return true
		}
	}
	return false
}

// Window 返回班次在某日期的起止时间，跨夜班的结束时间顺延至次日
func (s *Shift) Window(date string) (start, end time.Time, err error) {
	start, err = At(date, s.StartTime)
	if err != nil {
		return
	}
	end, err = At(date, s.EndTime)
	if err != nil {
		return
	}
	if s.IsOvernight || !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return
}

// DurationHours 返回班次跨度（小时，不扣休息）
func (s *Shift) DurationHours() float64 {
	start, err1 := ParseClock(s.StartTime)
	end, err2 := ParseClock(s.EndTime)
	if err1 != nil || err2 != nil {
		return 0
	}
	if s.IsOvernight || end <= start {
		end += 24 * time.Hour
	}
	return (end - start).Hours()
}

// WorkingHours 返回工作时长（小时，扣除休息时间）
func (s *Shift) WorkingHours() float64 {
	h := s.DurationHours() - float64(s.BreakMinutes)/60.0
	if h < 0 {
		return 0
	}
	return h
}

// IsNightShift 检查是否为夜班
func (s *Shift) IsNightShift() bool {
	return s.Type == ShiftNight
}

// MatchesFilter 检查班次是否满足筛选条件
func (s *Shift) MatchesFilter(f ShiftFilter) bool {
	if len(f.ShiftIDs) > 0 {
		found := false
		for _, id := range f.ShiftIDs {
			if id == s.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DepartmentID != nil && (s.DepartmentID == nil || *s.DepartmentID != *f.DepartmentID) {
		return false
	}
	if f.WorkCenterID != nil && (s.WorkCenterID == nil || *s.WorkCenterID != *f.WorkCenterID) {
		return false
	}
	return true
}

// ShiftFilter 班次筛选条件
type ShiftFilter struct {
	ShiftIDs     []uuid.UUID `json:"shift_ids,omitempty"`
	DepartmentID *uuid.UUID  `json:"department_id,omitempty"`
	WorkCenterID *uuid.UUID  `json:"work_center_id,omitempty"`
}

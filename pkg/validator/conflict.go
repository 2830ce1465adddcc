// Package validator 提供排班冲突检测
package validator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictDoubleBooking ConflictType = "double_booking"     // 同一天多个排班
	ConflictRestPeriod    ConflictType = "rest_period"        // 休息时间不足
	ConflictOvertime      ConflictType = "overtime_violation" // 周工时超限
)

// 严重程度
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Conflict 冲突信息
type Conflict struct {
	WorkerID    uuid.UUID    `json:"worker_id"`
	Date        string       `json:"date"`
	Type        ConflictType `json:"conflict_type"`
	Severity    string       `json:"severity"`
	Details     string       `json:"details"`
	Assignments []uuid.UUID  `json:"assignments,omitempty"` // 相关的排班ID
}

// DetectorConfig 检测器配置
type DetectorConfig struct {
	MinRestHours    float64 // 两个班次之间最小休息时间（小时）
	MaxHoursPerWeek float64 // ISO 周最大工时
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		MinRestHours:    8,
		MaxHoursPerWeek: 40,
	}
}

// ConflictDetector 冲突检测器（只读）
type ConflictDetector struct {
	config  *DetectorConfig
	shifts  store.ShiftStore
	assigns store.AssignmentReader
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(shifts store.ShiftStore, assigns store.AssignmentReader, config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{config: config, shifts: shifts, assigns: assigns}
}

// Detect 检测员工在日期范围内的冲突。
// 为计算整周工时和跨范围起点的休息时间，会额外加载范围所在的完整 ISO 周及前一天，
// 但只返回范围内日期的冲突。
func (d *ConflictDetector) Detect(ctx context.Context, tenantID, workerID uuid.UUID, r model.DateRange) ([]Conflict, error) {
	const op = "detect_conflicts"
	if err := r.Validate(); err != nil {
		return nil, apperrors.InvalidInput("date_range", err.Error()).WithOperation(op)
	}

	load := loadWindow(r)
	assignments, err := d.assigns.List(ctx, tenantID, store.AssignmentQuery{
		DateRange: load,
		WorkerIDs: []uuid.UUID{workerID},
	})
	if err != nil {
		return nil, apperrors.Database(err, op).WithField("worker_id", workerID.String())
	}

	ids := make([]uuid.UUID, 0, len(assignments))
	seen := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		if !seen[a.ShiftID] {
			seen[a.ShiftID] = true
			ids = append(ids, a.ShiftID)
		}
	}
	shifts, err := d.shifts.GetByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, apperrors.Database(err, op)
	}

	return d.Analyze(workerID, assignments, shifts, r), nil
}

// Analyze 对已加载的分配执行检测，只返回 r 内日期的冲突
func (d *ConflictDetector) Analyze(workerID uuid.UUID, assignments []*model.ShiftAssignment,
	shifts map[uuid.UUID]*model.Shift, r model.DateRange) []Conflict {
	slots := buildSlots(workerID, assignments, shifts)

	var conflicts []Conflict
	conflicts = append(conflicts, d.detectDoubleBooking(workerID, slots)...)
	conflicts = append(conflicts, d.detectRestPeriod(workerID, slots)...)
	conflicts = append(conflicts, d.detectOvertime(workerID, slots, r)...)

	out := conflicts[:0]
	for _, c := range conflicts {
		if r.Contains(c.Date) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// slot 带时间窗口的分配
type slot struct {
	assignment *model.ShiftAssignment
	shift      *model.Shift // 班次已删除时为 nil
	start      time.Time
	end        time.Time
}

func buildSlots(workerID uuid.UUID, assignments []*model.ShiftAssignment, shifts map[uuid.UUID]*model.Shift) []slot {
	slots := make([]slot, 0, len(assignments))
	for _, a := range assignments {
		if !a.IsActive() || !a.BelongsTo(workerID) {
			continue
		}
		s := slot{assignment: a, shift: shifts[a.ShiftID]}
		if s.shift != nil {
			if start, end, err := s.shift.Window(a.Date); err == nil {
				s.start, s.end = start, end
			} else {
				s.shift = nil
			}
		}
		slots = append(slots, s)
	}
	sort.SliceStable(slots, func(i, j int) bool {
		ai, aj := slots[i].assignment, slots[j].assignment
		if ai.Date != aj.Date {
			return ai.Date < aj.Date
		}
		return slots[i].start.Before(slots[j].start)
	})
	return slots
}

// detectDoubleBooking 同一天多于一个排班，每天报告一次
func (d *ConflictDetector) detectDoubleBooking(workerID uuid.UUID, slots []slot) []Conflict {
	byDate := make(map[string][]uuid.UUID)
	var dates []string
	for _, s := range slots {
		date := s.assignment.Date
		if _, ok := byDate[date]; !ok {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], s.assignment.ID)
	}

	var conflicts []Conflict
	for _, date := range dates {
		ids := byDate[date]
		if len(ids) < 2 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WorkerID:    workerID,
			Date:        date,
			Type:        ConflictDoubleBooking,
			Severity:    SeverityError,
			Details:     fmt.Sprintf("同一天有 %d 个排班", len(ids)),
			Assignments: ids,
		})
	}
	return conflicts
}

// detectRestPeriod 相邻两天的排班之间休息时间不足，冲突记在后一个排班的日期上。
// 同一天的多个排班由 double_booking 报告。
func (d *ConflictDetector) detectRestPeriod(workerID uuid.UUID, slots []slot) []Conflict {
	var conflicts []Conflict
	var prev *slot
	for i := range slots {
		cur := &slots[i]
		if cur.shift == nil {
			continue
		}
		if prev != nil && prev.assignment.Date != cur.assignment.Date {
			rest := cur.start.Sub(prev.end).Hours()
			if rest < d.config.MinRestHours {
				conflicts = append(conflicts, Conflict{
					WorkerID: workerID,
					Date:     cur.assignment.Date,
					Type:     ConflictRestPeriod,
					Severity: SeverityError,
					Details: fmt.Sprintf("%s 班次结束到 %s 班次开始仅休息 %.1f 小时，少于 %.0f 小时",
						prev.shift.Code, cur.shift.Code, rest, d.config.MinRestHours),
					Assignments: []uuid.UUID{prev.assignment.ID, cur.assignment.ID},
				})
			}
		}
		prev = cur
	}
	return conflicts
}

// detectOvertime 按 ISO 周累计工时，首次超过上限的排班日期记一次冲突。
// 超限发生在查询范围之前时，记在该周范围内的第一个排班日期上。
func (d *ConflictDetector) detectOvertime(workerID uuid.UUID, slots []slot, r model.DateRange) []Conflict {
	type weekState struct {
		hours    float64
		crossing *slot
		ids      []uuid.UUID
	}
	weeks := make(map[string]*weekState)
	var order []string

	for i := range slots {
		s := &slots[i]
		if s.shift == nil {
			continue
		}
		key := model.ISOWeekKey(s.assignment.Date)
		w, ok := weeks[key]
		if !ok {
			w = &weekState{}
			weeks[key] = w
			order = append(order, key)
		}
		w.hours += s.shift.WorkingHours()
		w.ids = append(w.ids, s.assignment.ID)
		if w.crossing == nil && w.hours > d.config.MaxHoursPerWeek {
			w.crossing = s
		}
	}

	var conflicts []Conflict
	for _, key := range order {
		w := weeks[key]
		if w.crossing == nil {
			continue
		}
		date := w.crossing.assignment.Date
		if date < r.StartDate {
			date = firstDateInRange(slots, key, r)
			if date == "" {
				continue
			}
		}
		conflicts = append(conflicts, Conflict{
			WorkerID:    workerID,
			Date:        date,
			Type:        ConflictOvertime,
			Severity:    SeverityWarning,
			Details:     fmt.Sprintf("%s 周工时 %.1f 小时，超过 %.0f 小时", key, w.hours, d.config.MaxHoursPerWeek),
			Assignments: w.ids,
		})
	}
	return conflicts
}

func firstDateInRange(slots []slot, weekKey string, r model.DateRange) string {
	for _, s := range slots {
		d := s.assignment.Date
		if r.Contains(d) && model.ISOWeekKey(d) == weekKey {
			return d
		}
	}
	return ""
}

// loadWindow 扩展到完整 ISO 周，并至少包含范围起点前一天
func loadWindow(r model.DateRange) model.DateRange {
	monday, _ := model.ISOWeekBounds(r.StartDate)
	_, sunday := model.ISOWeekBounds(r.EndDate)
	if dayBefore := model.AddDays(r.StartDate, -1); dayBefore < monday {
		monday = dayBefore
	}
	return model.DateRange{StartDate: monday, EndDate: sunday}
}

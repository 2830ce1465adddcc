// Package model 定义排班核心的数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkerStatus 员工状态
type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "available"
	WorkerWorking   WorkerStatus = "working"
	WorkerOnLeave   WorkerStatus = "on_leave"
	WorkerInactive  WorkerStatus = "inactive"
)

// SchedulableStatuses 可参与自动排班的员工状态
func SchedulableStatuses() []WorkerStatus {
	return []WorkerStatus{WorkerAvailable, WorkerWorking}
}

// WorkerSkill 员工技能
type WorkerSkill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// AvailabilityWindow 每周可用时段
type AvailabilityWindow struct {
	Day       WorkDay `json:"day"`
	StartTime string  `json:"start_time"` // HH:MM
	EndTime   string  `json:"end_time"`   // HH:MM，早于开始时间表示跨夜
}

// Covers 检查时段是否覆盖 [start, end)（当天零点起的偏移）
func (w AvailabilityWindow) Covers(start, end time.Duration) bool {
	ws, err1 := ParseClock(w.StartTime)
	we, err2 := ParseClock(w.EndTime)
	if err1 != nil || err2 != nil {
		return false
	}
	if we <= ws {
		we += 24 * time.Hour
	}
	return ws <= start && end <= we
}

// Worker 员工（由外部人事系统维护，排班核心只读）
type Worker struct {
	BaseModel
	Name         string               `json:"name" db:"name"`
	Code         string               `json:"code" db:"code"`
	Status       WorkerStatus         `json:"status" db:"status"`
	DepartmentID *uuid.UUID           `json:"department_id,omitempty" db:"department_id"`
	Skills       []WorkerSkill        `json:"skills" db:"skills"`
	Availability []AvailabilityWindow `json:"availability" db:"availability"`
}

// IsSchedulable 检查员工是否可排班
func (w *Worker) IsSchedulable() bool {
	for _, s := range SchedulableStatuses() {
		if w.Status == s {
			return true
		}
	}
	return false
}

// SkillLevel 返回技能等级，未掌握返回 -1
func (w *Worker) SkillLevel(skill string) int {
	for _, s := range w.Skills {
		if s.Name == skill {
			return s.Level
		}
	}
	return -1
}

// HasSkill 检查员工是否具备某技能（可指定最低等级）
func (w *Worker) HasSkill(skill string, minLevel *int) bool {
	level := w.SkillLevel(skill)
	if level < 0 {
		return false
	}
	return minLevel == nil || level >= *minLevel
}

// InDepartment 检查员工是否属于部门；未指定部门时视为匹配
func (w *Worker) InDepartment(departmentID *uuid.UUID) bool {
	if departmentID == nil {
		return true
	}
	return w.DepartmentID != nil && *w.DepartmentID == *departmentID
}

// Package model 定义排班核心的数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus 排班分配状态
type AssignmentStatus string

const (
	StatusScheduled  AssignmentStatus = "scheduled"
	StatusConfirmed  AssignmentStatus = "confirmed"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusCompleted  AssignmentStatus = "completed"
	StatusAbsent     AssignmentStatus = "absent"
	StatusCancelled  AssignmentStatus = "cancelled"
)

// 状态流转表：scheduled → confirmed → in_progress → completed；
// scheduled|confirmed → cancelled；scheduled → absent
var statusTransitions = map[AssignmentStatus][]AssignmentStatus{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusAbsent},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// Valid 检查状态值是否合法
func (s AssignmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusAbsent, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s AssignmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusAbsent
}

// CanTransitionTo 检查状态流转是否合法
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ShiftAssignment 排班分配（WorkerID 为空表示待填补的占位）
type ShiftAssignment struct {
	BaseModel
	ShiftID        uuid.UUID        `json:"shift_id" db:"shift_id"`
	Date           string           `json:"date" db:"date"` // YYYY-MM-DD
	WorkerID       *uuid.UUID       `json:"worker_id,omitempty" db:"worker_id"`
	WorkCenterID   *uuid.UUID       `json:"work_center_id,omitempty" db:"work_center_id"`
	Status         AssignmentStatus `json:"status" db:"status"`
	IsOvertime     bool             `json:"is_overtime" db:"is_overtime"`
	IsTemporary    bool             `json:"is_temporary" db:"is_temporary"`
	ReplacementFor *uuid.UUID       `json:"replacement_for,omitempty" db:"replacement_for"`
	ApprovedBy     string           `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt     *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	Notes          string           `json:"notes,omitempty" db:"notes"`
}

// NewAssignment 创建状态为 scheduled 的分配
func NewAssignment(tenantID uuid.UUID, shift *Shift, date string, workerID *uuid.UUID) *ShiftAssignment {
	return &ShiftAssignment{
		BaseModel:    NewBaseModel(tenantID),
		ShiftID:      shift.ID,
		Date:         date,
		WorkerID:     workerID,
		WorkCenterID: shift.WorkCenterID,
		Status:       StatusScheduled,
	}
}

// IsActive 非取消状态的分配视为占用
func (a *ShiftAssignment) IsActive() bool {
	return a.Status != StatusCancelled
}

// HasWorker 是否已指派员工
func (a *ShiftAssignment) HasWorker() bool {
	return a.WorkerID != nil && *a.WorkerID != uuid.Nil
}

// BelongsTo 检查分配是否属于某员工
func (a *ShiftAssignment) BelongsTo(workerID uuid.UUID) bool {
	return a.HasWorker() && *a.WorkerID == workerID
}

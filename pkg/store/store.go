// Package store 定义排班核心依赖的数据访问接口
//
// 查询单条记录时未找到返回 (nil, nil)，由调用方决定是否视为 NotFound。
// 所有方法都显式接收租户ID。
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
)

var (
	// ErrDuplicate 同一员工同一天已存在非取消的分配
	ErrDuplicate = errors.New("store: worker already booked on date")
	// ErrStatusChanged 条件更新时记录状态已被其他请求修改
	ErrStatusChanged = errors.New("store: assignment status changed concurrently")
)

// ShiftStore 班次定义（只读）
type ShiftStore interface {
	ListActive(ctx context.Context, tenantID uuid.UUID, filter model.ShiftFilter) ([]*model.Shift, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Shift, error)
	GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*model.Shift, error)
	GetByCodes(ctx context.Context, tenantID uuid.UUID, codes []string) (map[string]*model.Shift, error)
}

// ExceptionStore 班次例外（只读）
type ExceptionStore interface {
	Get(ctx context.Context, tenantID, shiftID uuid.UUID, date string) (*model.ShiftException, error)
}

// CalendarStore 生产日历（只读）
type CalendarStore interface {
	GetDay(ctx context.Context, tenantID uuid.UUID, date string) (*model.ProductionCalendar, error)
}

// WorkerDirectory 外部员工目录（只读）
type WorkerDirectory interface {
	ListWorkers(ctx context.Context, tenantID uuid.UUID, departmentID *uuid.UUID, statuses []model.WorkerStatus) ([]*model.Worker, error)
	GetWorker(ctx context.Context, tenantID, id uuid.UUID) (*model.Worker, error)
}

// AssignmentQuery 分配查询条件
type AssignmentQuery struct {
	DateRange        model.DateRange
	ShiftIDs         []uuid.UUID
	WorkerIDs        []uuid.UUID
	IncludeCancelled bool
}

// AssignmentReader 分配查询
type AssignmentReader interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.ShiftAssignment, error)
	// List 按日期升序返回
	List(ctx context.Context, tenantID uuid.UUID, q AssignmentQuery) ([]*model.ShiftAssignment, error)
	// CountByWorkers 统计范围内各员工非取消分配数
	CountByWorkers(ctx context.Context, tenantID uuid.UUID, workerIDs []uuid.UUID, r model.DateRange) (map[uuid.UUID]int, error)
}

// AssignmentWriter 分配写入
type AssignmentWriter interface {
	// InsertBatch 批量插入，跳过违反唯一约束的记录，返回实际插入的分配
	InsertBatch(ctx context.Context, assignments []*model.ShiftAssignment) ([]*model.ShiftAssignment, error)
	// Insert 单条插入，违反唯一约束时返回 ErrDuplicate
	Insert(ctx context.Context, a *model.ShiftAssignment) error
	// UpdateStatus 仅当当前状态为 from 时更新，否则返回 ErrStatusChanged
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.AssignmentStatus, note string) error
}

// AssignmentStore 分配读写
type AssignmentStore interface {
	AssignmentReader
	AssignmentWriter
}

// Tx 事务内可用的存储
type Tx interface {
	Assignments() AssignmentStore
}

// Transactor 显式事务边界：fn 返回错误时全部回滚
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// BookedWorkers 返回某天已有非取消分配的员工
func BookedWorkers(ctx context.Context, r AssignmentReader, tenantID uuid.UUID, date string) (map[uuid.UUID]bool, error) {
	list, err := r.List(ctx, tenantID, AssignmentQuery{
		DateRange: model.DateRange{StartDate: date, EndDate: date},
	})
	if err != nil {
		return nil, err
	}
	booked := make(map[uuid.UUID]bool, len(list))
	for _, a := range list {
		if a.HasWorker() {
			booked[*a.WorkerID] = true
		}
	}
	return booked, nil
}

// IsBooked 检查员工某天是否已有非取消分配（可排除一条分配）
func IsBooked(ctx context.Context, r AssignmentReader, tenantID, workerID uuid.UUID, date string, exclude uuid.UUID) (bool, error) {
	list, err := r.List(ctx, tenantID, AssignmentQuery{
		DateRange: model.DateRange{StartDate: date, EndDate: date},
		WorkerIDs: []uuid.UUID{workerID},
	})
	if err != nil {
		return false, err
	}
	for _, a := range list {
		if a.ID != exclude {
			return true, nil
		}
	}
	return false, nil
}

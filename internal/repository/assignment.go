package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/database"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

const assignmentColumns = `
	id, tenant_id, shift_id, date, worker_id, work_center_id, status,
	is_overtime, is_temporary, replacement_for, approved_by, approved_at, notes,
	created_at, updated_at`

// insertAssignment 冲突目标与 uq_assignments_worker_date 部分唯一索引一致
const insertAssignment = `
	INSERT INTO shift_assignments (` + assignmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const onConflictSkip = `
	ON CONFLICT (tenant_id, worker_id, date) WHERE worker_id IS NOT NULL AND status <> 'cancelled'
	DO NOTHING
	RETURNING id`

// AssignmentRepository 排班分配仓储
type AssignmentRepository struct {
	db DB
}

// NewAssignmentRepository 创建排班分配仓储
func NewAssignmentRepository(db DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// GetByID 实现 store.AssignmentReader
func (r *AssignmentRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.ShiftAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM shift_assignments WHERE tenant_id = $1 AND id = $2`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询排班分配失败: %w", err)
	}
	return a, nil
}

// List 实现 store.AssignmentReader
func (r *AssignmentRepository) List(ctx context.Context, tenantID uuid.UUID, q store.AssignmentQuery) ([]*model.ShiftAssignment, error) {
	query, args := listAssignmentsQuery(tenantID, q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询排班分配失败: %w", err)
	}
	defer rows.Close()

	var out []*model.ShiftAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描排班分配失败: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func listAssignmentsQuery(tenantID uuid.UUID, q store.AssignmentQuery) (string, []interface{}) {
	w := &where{}
	w.add("tenant_id = $%d", tenantID)
	w.add("date >= $%d", q.DateRange.StartDate)
	w.add("date <= $%d", q.DateRange.EndDate)
	if !q.IncludeCancelled {
		w.raw("status <> 'cancelled'")
	}
	if len(q.ShiftIDs) > 0 {
		w.add("shift_id = ANY($%d::uuid[])", uuidArray(q.ShiftIDs))
	}
	if len(q.WorkerIDs) > 0 {
		w.add("worker_id = ANY($%d::uuid[])", uuidArray(q.WorkerIDs))
	}
	query := fmt.Sprintf(`SELECT %s FROM shift_assignments WHERE %s ORDER BY date ASC, created_at ASC`,
		assignmentColumns, w)
	return query, w.args
}

// CountByWorkers 实现 store.AssignmentReader
func (r *AssignmentRepository) CountByWorkers(ctx context.Context, tenantID uuid.UUID, workerIDs []uuid.UUID,
	dr model.DateRange) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(workerIDs))
	if len(workerIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT worker_id, COUNT(*)
		FROM shift_assignments
		WHERE tenant_id = $1 AND worker_id = ANY($2::uuid[])
			AND date >= $3 AND date <= $4 AND status <> 'cancelled'
		GROUP BY worker_id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, uuidArray(workerIDs), dr.StartDate, dr.EndDate)
	if err != nil {
		return nil, fmt.Errorf("统计员工排班数失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("扫描行失败: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// InsertBatch 实现 store.AssignmentWriter，逐条 ON CONFLICT DO NOTHING
func (r *AssignmentRepository) InsertBatch(ctx context.Context, assignments []*model.ShiftAssignment) ([]*model.ShiftAssignment, error) {
	inserted := make([]*model.ShiftAssignment, 0, len(assignments))
	for _, a := range assignments {
		var id uuid.UUID
		err := r.db.QueryRowContext(ctx, insertAssignment+onConflictSkip, insertArgs(a)...).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("批量创建排班分配失败: %w", err)
		}
		inserted = append(inserted, a)
	}
	return inserted, nil
}

// Insert 实现 store.AssignmentWriter
func (r *AssignmentRepository) Insert(ctx context.Context, a *model.ShiftAssignment) error {
	if _, err := r.db.ExecContext(ctx, insertAssignment, insertArgs(a)...); err != nil {
		if database.IsUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("创建排班分配失败: %w", err)
	}
	return nil
}

// UpdateStatus 实现 store.AssignmentWriter，以 status = from 作为乐观锁条件
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID,
	from, to model.AssignmentStatus, note string) error {
	query := `
		UPDATE shift_assignments SET
			status = $4,
			notes = CASE WHEN $5::text = '' THEN notes ELSE $5::text END,
			updated_at = $6
		WHERE tenant_id = $1 AND id = $2 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, tenantID, id, from, to, note, time.Now())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("更新排班状态失败: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新排班状态失败: %w", err)
	}
	if rows == 0 {
		return store.ErrStatusChanged
	}
	return nil
}

func insertArgs(a *model.ShiftAssignment) []interface{} {
	return []interface{}{
		a.ID, a.TenantID, a.ShiftID, a.Date, a.WorkerID, a.WorkCenterID, a.Status,
		a.IsOvertime, a.IsTemporary, a.ReplacementFor, a.ApprovedBy, a.ApprovedAt, a.Notes,
		a.CreatedAt, a.UpdatedAt,
	}
}

func scanAssignment(row Scanner) (*model.ShiftAssignment, error) {
	a := &model.ShiftAssignment{}
	var date time.Time
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ShiftID, &date, &a.WorkerID, &a.WorkCenterID, &a.Status,
		&a.IsOvertime, &a.IsTemporary, &a.ReplacementFor, &a.ApprovedBy, &a.ApprovedAt, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Date = scanDate(date)
	return a, nil
}

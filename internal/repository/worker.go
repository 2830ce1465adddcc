package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paiban/shiftplan/pkg/model"
)

const workerColumns = `id, tenant_id, code, name, status, department_id, skills, availability, created_at, updated_at`

// WorkerRepository 员工目录（人事系统同步的只读视图）
type WorkerRepository struct {
	db DB
}

// NewWorkerRepository 创建员工仓储
func NewWorkerRepository(db DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// ListWorkers 实现 store.WorkerDirectory
func (r *WorkerRepository) ListWorkers(ctx context.Context, tenantID uuid.UUID, departmentID *uuid.UUID,
	statuses []model.WorkerStatus) ([]*model.Worker, error) {
	w := &where{}
	w.add("tenant_id = $%d", tenantID)
	w.raw("deleted_at IS NULL")
	if departmentID != nil {
		w.add("department_id = $%d", *departmentID)
	}
	if len(statuses) > 0 {
		s := make([]string, len(statuses))
		for i, st := range statuses {
			s[i] = string(st)
		}
		w.add("status = ANY($%d)", pq.Array(s))
	}

	query := fmt.Sprintf(`SELECT %s FROM workers WHERE %s ORDER BY code ASC`, workerColumns, w)
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("查询员工列表失败: %w", err)
	}
	defer rows.Close()

	var workers []*model.Worker
	for rows.Next() {
		wk, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描员工失败: %w", err)
		}
		workers = append(workers, wk)
	}
	return workers, rows.Err()
}

// GetWorker 实现 store.WorkerDirectory
func (r *WorkerRepository) GetWorker(ctx context.Context, tenantID, id uuid.UUID) (*model.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	w, err := scanWorker(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}
	return w, nil
}

func scanWorker(row Scanner) (*model.Worker, error) {
	w := &model.Worker{}
	var skillsJSON, availabilityJSON []byte
	err := row.Scan(
		&w.ID, &w.TenantID, &w.Code, &w.Name, &w.Status, &w.DepartmentID,
		&skillsJSON, &availabilityJSON, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(skillsJSON) > 0 {
		if err := json.Unmarshal(skillsJSON, &w.Skills); err != nil {
			return nil, fmt.Errorf("解析员工技能失败: %w", err)
		}
	}
	if len(availabilityJSON) > 0 {
		if err := json.Unmarshal(availabilityJSON, &w.Availability); err != nil {
			return nil, fmt.Errorf("解析可用时段失败: %w", err)
		}
	}
	return w, nil
}

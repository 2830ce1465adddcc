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

const shiftColumns = `
	id, tenant_id, code, name, shift_type, start_time, end_time, is_overnight,
	break_minutes, work_days, min_workers, target_workers, max_workers,
	skill_requirements, department_id, work_center_id, is_active, priority,
	created_at, updated_at`

// ShiftRepository 班次仓储
type ShiftRepository struct {
	db DB
}

// NewShiftRepository 创建班次仓储
func NewShiftRepository(db DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// Create 创建班次
func (r *ShiftRepository) Create(ctx context.Context, s *model.Shift) error {
	if err := s.Validate(); err != nil {
		return err
	}
	skillsJSON, err := json.Marshal(s.SkillRequirements)
	if err != nil {
		return fmt.Errorf("序列化技能要求失败: %w", err)
	}
	days := make([]string, len(s.WorkDays))
	for i, d := range s.WorkDays {
		days[i] = string(d)
	}

	query := `
		INSERT INTO shifts (` + shiftColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.TenantID, s.Code, s.Name, s.Type, s.StartTime, s.EndTime, s.IsOvernight,
		s.BreakMinutes, pq.Array(days), s.MinWorkers, s.TargetWorkers, s.MaxWorkers,
		skillsJSON, s.DepartmentID, s.WorkCenterID, s.IsActive, s.Priority,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建班次失败: %w", err)
	}
	return nil
}

// ListActive 实现 store.ShiftStore，按优先级降序、代码升序
func (r *ShiftRepository) ListActive(ctx context.Context, tenantID uuid.UUID, filter model.ShiftFilter) ([]*model.Shift, error) {
	w := &where{}
	w.add("tenant_id = $%d", tenantID)
	w.raw("is_active")
	w.raw("deleted_at IS NULL")
	if len(filter.ShiftIDs) > 0 {
		w.add("id = ANY($%d::uuid[])", uuidArray(filter.ShiftIDs))
	}
	if filter.DepartmentID != nil {
		w.add("department_id = $%d", *filter.DepartmentID)
	}
	if filter.WorkCenterID != nil {
		w.add("work_center_id = $%d", *filter.WorkCenterID)
	}

	query := fmt.Sprintf(`SELECT %s FROM shifts WHERE %s ORDER BY priority DESC, code ASC`, shiftColumns, w)
	return r.query(ctx, query, w.args...)
}

// GetByID 实现 store.ShiftStore
func (r *ShiftRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	s, err := scanShift(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询班次失败: %w", err)
	}
	return s, nil
}

// GetByIDs 实现 store.ShiftStore
func (r *ShiftRepository) GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*model.Shift, error) {
	out := make(map[uuid.UUID]*model.Shift, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + shiftColumns + ` FROM shifts
		WHERE tenant_id = $1 AND id = ANY($2::uuid[]) AND deleted_at IS NULL`
	shifts, err := r.query(ctx, query, tenantID, uuidArray(ids))
	if err != nil {
		return nil, err
	}
	for _, s := range shifts {
		out[s.ID] = s
	}
	return out, nil
}

// GetByCodes 实现 store.ShiftStore，只返回启用的班次
func (r *ShiftRepository) GetByCodes(ctx context.Context, tenantID uuid.UUID, codes []string) (map[string]*model.Shift, error) {
	out := make(map[string]*model.Shift, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	query := `SELECT ` + shiftColumns + ` FROM shifts
		WHERE tenant_id = $1 AND code = ANY($2) AND is_active AND deleted_at IS NULL`
	shifts, err := r.query(ctx, query, tenantID, pq.Array(codes))
	if err != nil {
		return nil, err
	}
	for _, s := range shifts {
		out[s.Code] = s
	}
	return out, nil
}

func (r *ShiftRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.Shift, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询班次失败: %w", err)
	}
	defer rows.Close()

	var shifts []*model.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描班次失败: %w", err)
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}

func scanShift(row Scanner) (*model.Shift, error) {
	s := &model.Shift{}
	var days pq.StringArray
	var skillsJSON []byte
	err := row.Scan(
		&s.ID, &s.TenantID, &s.Code, &s.Name, &s.Type, &s.StartTime, &s.EndTime, &s.IsOvernight,
		&s.BreakMinutes, &days, &s.MinWorkers, &s.TargetWorkers, &s.MaxWorkers,
		&skillsJSON, &s.DepartmentID, &s.WorkCenterID, &s.IsActive, &s.Priority,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.WorkDays = make([]model.WorkDay, len(days))
	for i, d := range days {
		s.WorkDays[i] = model.WorkDay(d)
	}
	if len(skillsJSON) > 0 {
		if err := json.Unmarshal(skillsJSON, &s.SkillRequirements); err != nil {
			return nil, fmt.Errorf("解析技能要求失败: %w", err)
		}
	}
	return s, nil
}

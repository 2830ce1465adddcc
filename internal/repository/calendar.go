package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
)

// ExceptionRepository 班次例外仓储
type ExceptionRepository struct {
	db DB
}

// NewExceptionRepository 创建班次例外仓储
func NewExceptionRepository(db DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Get 实现 store.ExceptionStore
func (r *ExceptionRepository) Get(ctx context.Context, tenantID, shiftID uuid.UUID, date string) (*model.ShiftException, error) {
	query := `
		SELECT id, tenant_id, shift_id, date, is_cancelled, reduced_capacity,
			alternate_start_time, alternate_end_time, reason, created_at, updated_at
		FROM shift_exceptions
		WHERE tenant_id = $1 AND shift_id = $2 AND date = $3
	`
	e := &model.ShiftException{}
	var d time.Time
	err := r.db.QueryRowContext(ctx, query, tenantID, shiftID, date).Scan(
		&e.ID, &e.TenantID, &e.ShiftID, &d, &e.IsCancelled, &e.ReducedCapacity,
		&e.AlternateStartTime, &e.AlternateEndTime, &e.Reason, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询班次例外失败: %w", err)
	}
	e.Date = scanDate(d)
	return e, nil
}

// CalendarRepository 生产日历仓储
type CalendarRepository struct {
	db DB
}

// NewCalendarRepository 创建生产日历仓储
func NewCalendarRepository(db DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// GetDay 实现 store.CalendarStore
func (r *CalendarRepository) GetDay(ctx context.Context, tenantID uuid.UUID, date string) (*model.ProductionCalendar, error) {
	query := `
		SELECT tenant_id, date, is_working_day, is_holiday, capacity_percentage, shift_overrides, notes
		FROM production_calendar
		WHERE tenant_id = $1 AND date = $2
	`
	c := &model.ProductionCalendar{}
	var d time.Time
	var overridesJSON []byte
	err := r.db.QueryRowContext(ctx, query, tenantID, date).Scan(
		&c.TenantID, &d, &c.IsWorkingDay, &c.IsHoliday, &c.CapacityPercentage, &overridesJSON, &c.Notes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询生产日历失败: %w", err)
	}
	c.Date = scanDate(d)
	if len(overridesJSON) > 0 {
		if err := json.Unmarshal(overridesJSON, &c.ShiftOverrides); err != nil {
			return nil, fmt.Errorf("解析班次调整失败: %w", err)
		}
	}
	return c, nil
}

// Upsert 写入某天的日历
func (r *CalendarRepository) Upsert(ctx context.Context, c *model.ProductionCalendar) error {
	overridesJSON, err := json.Marshal(c.ShiftOverrides)
	if err != nil {
		return fmt.Errorf("序列化班次调整失败: %w", err)
	}
	query := `
		INSERT INTO production_calendar (
			tenant_id, date, is_working_day, is_holiday, capacity_percentage, shift_overrides, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, date) DO UPDATE SET
			is_working_day = EXCLUDED.is_working_day,
			is_holiday = EXCLUDED.is_holiday,
			capacity_percentage = EXCLUDED.capacity_percentage,
			shift_overrides = EXCLUDED.shift_overrides,
			notes = EXCLUDED.notes
	`
	_, err = r.db.ExecContext(ctx, query,
		c.TenantID, c.Date, c.IsWorkingDay, c.IsHoliday, c.CapacityPercentage, overridesJSON, c.Notes)
	if err != nil {
		return fmt.Errorf("写入生产日历失败: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
)

// Memory 内存存储，用于测试和单机演示。
// 写事务串行执行，在副本上修改，成功后整体替换。
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	shifts      map[uuid.UUID]*model.Shift
	exceptions  map[exceptionKey]*model.ShiftException
	calendar    map[calendarKey]*model.ProductionCalendar
	workers     map[uuid.UUID]*model.Worker
	assignments assignmentRows
}

type exceptionKey struct {
	tenantID uuid.UUID
	shiftID  uuid.UUID
	date     string
}

type calendarKey struct {
	tenantID uuid.UUID
	date     string
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{
		shifts:      make(map[uuid.UUID]*model.Shift),
		exceptions:  make(map[exceptionKey]*model.ShiftException),
		calendar:    make(map[calendarKey]*model.ProductionCalendar),
		workers:     make(map[uuid.UUID]*model.Worker),
		assignments: make(assignmentRows),
	}
}

var (
	_ ShiftStore      = (*Memory)(nil)
	_ ExceptionStore  = (*Memory)(nil)
	_ CalendarStore   = (*Memory)(nil)
	_ WorkerDirectory = (*Memory)(nil)
	_ Transactor      = (*Memory)(nil)
)

// PutShift 写入班次
func (m *Memory) PutShift(s *model.Shift) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shifts[s.ID] = &cp
}

// PutException 写入班次例外
func (m *Memory) PutException(e *model.ShiftException) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.exceptions[exceptionKey{e.TenantID, e.ShiftID, e.Date}] = &cp
}

// PutCalendarDay 写入日历
func (m *Memory) PutCalendarDay(c *model.ProductionCalendar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.calendar[calendarKey{c.TenantID, c.Date}] = &cp
}

// PutWorker 写入员工
func (m *Memory) PutWorker(w *model.Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.workers[w.ID] = &cp
}

// ListActive 实现 ShiftStore，按优先级降序、代码升序
func (m *Memory) ListActive(_ context.Context, tenantID uuid.UUID, filter model.ShiftFilter) ([]*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Shift
	for _, s := range m.shifts {
		if s.TenantID != tenantID || !s.IsActive || !s.MatchesFilter(filter) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// GetByID 实现 ShiftStore
func (m *Memory) GetByID(_ context.Context, tenantID, id uuid.UUID) (*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shifts[id]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// GetByIDs 实现 ShiftStore
func (m *Memory) GetByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]*model.Shift, len(ids))
	for _, id := range ids {
		if s, ok := m.shifts[id]; ok && s.TenantID == tenantID {
			cp := *s
			out[id] = &cp
		}
	}
	return out, nil
}

// GetByCodes 实现 ShiftStore，只返回启用的班次
func (m *Memory) GetByCodes(_ context.Context, tenantID uuid.UUID, codes []string) (map[string]*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	out := make(map[string]*model.Shift)
	for _, s := range m.shifts {
		if s.TenantID == tenantID && s.IsActive && want[s.Code] {
			cp := *s
			out[s.Code] = &cp
		}
	}
	return out, nil
}

// Get 实现 ExceptionStore
func (m *Memory) Get(_ context.Context, tenantID, shiftID uuid.UUID, date string) (*model.ShiftException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exceptions[exceptionKey{tenantID, shiftID, date}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// GetDay 实现 CalendarStore
func (m *Memory) GetDay(_ context.Context, tenantID uuid.UUID, date string) (*model.ProductionCalendar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calendar[calendarKey{tenantID, date}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// ListWorkers 实现 WorkerDirectory，按代码排序
func (m *Memory) ListWorkers(_ context.Context, tenantID uuid.UUID, departmentID *uuid.UUID, statuses []model.WorkerStatus) ([]*model.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	allowed := make(map[model.WorkerStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []*model.Worker
	for _, w := range m.workers {
		if w.TenantID != tenantID || !w.InDepartment(departmentID) {
			continue
		}
		if len(allowed) > 0 && !allowed[w.Status] {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// GetWorker 实现 WorkerDirectory
func (m *Memory) GetWorker(_ context.Context, tenantID, id uuid.UUID) (*model.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok || w.TenantID != tenantID {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// Assignments 返回事务外的分配存储，写操作各自在独立事务中执行
func (m *Memory) Assignments() AssignmentStore {
	return assignmentView{m: m}
}

// WithinTx 实现 Transactor
func (m *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	staged := m.assignments.clone()
	m.mu.RUnlock()

	if err := fn(memTx{view: assignmentView{m: m, rows: staged}}); err != nil {
		return err
	}

	m.mu.Lock()
	m.assignments = staged
	m.mu.Unlock()
	return nil
}

type memTx struct {
	view assignmentView
}

func (t memTx) Assignments() AssignmentStore { return t.view }

// assignmentView rows 非空时表示事务内视图
type assignmentView struct {
	m    *Memory
	rows assignmentRows
}

func (v assignmentView) read(fn func(rows assignmentRows)) {
	if v.rows != nil {
		fn(v.rows)
		return
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	fn(v.m.assignments)
}

func (v assignmentView) write(ctx context.Context, fn func(rows assignmentRows) error) error {
	if v.rows != nil {
		return fn(v.rows)
	}
	return v.m.WithinTx(ctx, func(tx Tx) error {
		return fn(tx.(memTx).view.rows)
	})
}

func (v assignmentView) GetByID(_ context.Context, tenantID, id uuid.UUID) (*model.ShiftAssignment, error) {
	var out *model.ShiftAssignment
	v.read(func(rows assignmentRows) {
		if a, ok := rows[id]; ok && a.TenantID == tenantID {
			cp := a
			out = &cp
		}
	})
	return out, nil
}

func (v assignmentView) List(_ context.Context, tenantID uuid.UUID, q AssignmentQuery) ([]*model.ShiftAssignment, error) {
	shifts := idSet(q.ShiftIDs)
	workers := idSet(q.WorkerIDs)

	var out []*model.ShiftAssignment
	v.read(func(rows assignmentRows) {
		for _, a := range rows {
			if a.TenantID != tenantID || !q.DateRange.Contains(a.Date) {
				continue
			}
			if !q.IncludeCancelled && !a.IsActive() {
				continue
			}
			if shifts != nil && !shifts[a.ShiftID] {
				continue
			}
			if workers != nil && (!a.HasWorker() || !workers[*a.WorkerID]) {
				continue
			}
			cp := a
			out = append(out, &cp)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (v assignmentView) CountByWorkers(_ context.Context, tenantID uuid.UUID, workerIDs []uuid.UUID, r model.DateRange) (map[uuid.UUID]int, error) {
	workers := idSet(workerIDs)
	counts := make(map[uuid.UUID]int, len(workerIDs))
	v.read(func(rows assignmentRows) {
		for _, a := range rows {
			if a.TenantID != tenantID || !a.IsActive() || !a.HasWorker() || !r.Contains(a.Date) {
				continue
			}
			if workers[*a.WorkerID] {
				counts[*a.WorkerID]++
			}
		}
	})
	return counts, nil
}

func (v assignmentView) InsertBatch(ctx context.Context, assignments []*model.ShiftAssignment) ([]*model.ShiftAssignment, error) {
	var inserted []*model.ShiftAssignment
	err := v.write(ctx, func(rows assignmentRows) error {
		inserted = inserted[:0]
		for _, a := range assignments {
			if rows.booked(a) {
				continue
			}
			rows[a.ID] = *a
			inserted = append(inserted, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (v assignmentView) Insert(ctx context.Context, a *model.ShiftAssignment) error {
	return v.write(ctx, func(rows assignmentRows) error {
		if rows.booked(a) {
			return ErrDuplicate
		}
		rows[a.ID] = *a
		return nil
	})
}

func (v assignmentView) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.AssignmentStatus, note string) error {
	return v.write(ctx, func(rows assignmentRows) error {
		a, ok := rows[id]
		if !ok || a.TenantID != tenantID || a.Status != from {
			return ErrStatusChanged
		}
		a.Status = to
		if note != "" {
			a.Notes = note
		}
		a.UpdatedAt = time.Now()
		rows[id] = a
		return nil
	})
}

type assignmentRows map[uuid.UUID]model.ShiftAssignment

func (r assignmentRows) clone() assignmentRows {
	cp := make(assignmentRows, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// booked 唯一约束：(租户, 员工, 日期) 至多一条非取消分配
func (r assignmentRows) booked(a *model.ShiftAssignment) bool {
	if _, exists := r[a.ID]; exists {
		return true
	}
	if !a.HasWorker() || !a.IsActive() {
		return false
	}
	for _, existing := range r {
		if existing.TenantID == a.TenantID && existing.Date == a.Date &&
			existing.IsActive() && existing.BelongsTo(*a.WorkerID) {
			return true
		}
	}
	return false
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

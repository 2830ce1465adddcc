package rolling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/pkg/availability"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/scheduler"
	"github.com/paiban/shiftplan/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	tenant uuid.UUID
	req    scheduler.GenerateRequest
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []call
	fail  map[uuid.UUID]error
}

func (f *fakeGenerator) Generate(_ context.Context, tenantID uuid.UUID, req scheduler.GenerateRequest) (*scheduler.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{tenant: tenantID, req: req})
	if err := f.fail[tenantID]; err != nil {
		return nil, err
	}
	return &scheduler.GenerateResult{StartDate: req.StartDate, EndDate: req.EndDate}, nil
}

func schedulerConfig(tenants ...uuid.UUID) config.SchedulerConfig {
	cfg := config.Default().Scheduler
	cfg.RollingHorizonDays = 7
	for _, t := range tenants {
		cfg.RollingTenants = append(cfg.RollingTenants, t.String())
	}
	return cfg
}

func TestNewJob_InvalidTenant(t *testing.T) {
	cfg := config.Default().Scheduler
	cfg.RollingTenants = []string{"not-a-uuid"}
	_, err := NewJob(&fakeGenerator{}, cfg)
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	gen := &fakeGenerator{fail: map[uuid.UUID]error{a: errors.New("db down")}}
	job, err := NewJob(gen, schedulerConfig(a, b))
	require.NoError(t, err)
	job.now = func() time.Time { return time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC) }

	assert.Equal(t, "2025-03-08", job.TargetDate())

	err = job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), a.String())

	require.Len(t, gen.calls, 2, "失败的租户不影响后续租户")
	for _, c := range gen.calls {
		assert.Equal(t, "2025-03-08", c.req.StartDate)
		assert.Equal(t, "2025-03-08", c.req.EndDate)
		assert.True(t, c.req.AutoAssign)
		assert.True(t, c.req.BalanceWorkload)
	}
	assert.Equal(t, b, gen.calls[1].tenant)
}

func TestRunOnce_Cancelled(t *testing.T) {
	gen := &fakeGenerator{}
	job, err := NewJob(gen, schedulerConfig(uuid.New(), uuid.New()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.RunOnce(ctx), context.Canceled)
	assert.Empty(t, gen.calls)
}

func TestRunOnce_WithGenerator(t *testing.T) {
	tenant := uuid.New()
	mem := store.NewMemory()
	mem.PutShift(&model.Shift{
		BaseModel: model.NewBaseModel(tenant), Code: "M", Name: "早班",
		StartTime: "08:00", EndTime: "16:00", WorkDays: model.Weekdays(),
		MinWorkers: 1, TargetWorkers: 2, MaxWorkers: 3, IsActive: true,
	})
	for _, code := range []string{"W1", "W2", "W3"} {
		mem.PutWorker(&model.Worker{BaseModel: model.NewBaseModel(tenant), Code: code, Name: code, Status: model.WorkerAvailable})
	}
	gen := scheduler.NewGenerator(
		scheduler.NewShiftCatalog(mem),
		scheduler.NewCalendarResolver(mem, mem),
		scheduler.NewAutoAssigner(mem, availability.NewDirectoryGate(mem)),
		mem,
		scheduler.WithLogger(logger.NopSchedulerLogger()),
	)

	job, err := NewJob(gen, schedulerConfig(tenant))
	require.NoError(t, err)
	// 2025-02-24 + 7 = 2025-03-03（周一）
	job.now = func() time.Time { return time.Date(2025, 2, 24, 2, 0, 0, 0, time.UTC) }
	require.NoError(t, job.RunOnce(context.Background()))

	list, err := mem.Assignments().List(context.Background(), tenant, store.AssignmentQuery{
		DateRange: model.DateRange{StartDate: "2025-03-03", EndDate: "2025-03-03"},
	})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, a := range list {
		assert.NotNil(t, a.WorkerID)
	}
}

func TestStart(t *testing.T) {
	job, err := NewJob(&fakeGenerator{}, schedulerConfig())
	require.NoError(t, err)

	require.NoError(t, job.Start(context.Background(), ""))
	assert.Error(t, job.Start(context.Background(), "not a cron"))

	require.NoError(t, job.Start(context.Background(), "0 2 * * *"))
	assert.Error(t, job.Start(context.Background(), "@daily"), "重复启动")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
	job.Stop(ctx)
}

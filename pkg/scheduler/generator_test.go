package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_PlaceholdersForWeek(t *testing.T) {
	f := newFixture()
	f.shift("MORNING", "08:00", "16:00", 5, 10, 15)

	res, err := f.generator(nil).Generate(context.Background(), f.tenant, GenerateRequest{DateRange: week()})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Count())
	assert.Equal(t, 5, res.Slots)

	perDay := map[string]int{}
	for _, a := range f.all(week()) {
		assert.Nil(t, a.WorkerID)
		assert.Equal(t, model.StatusScheduled, a.Status)
		perDay[a.Date]++
	}
	for _, d := range week().Dates() {
		assert.Equal(t, 10, perDay[d], d)
	}

	evts := f.sink.OfType(events.ScheduleGenerated)
	require.Len(t, evts, 1)
	assert.Equal(t, 50, evts[0].Payload["assignmentCount"])
	assert.Equal(t, "2025-03-03", evts[0].Payload["startDate"])
	assert.Equal(t, f.tenant, evts[0].TenantID)
}

func TestGenerate_RerunFillsOnlyTheGap(t *testing.T) {
	f := newFixture()
	f.shift("MORNING", "08:00", "16:00", 5, 10, 15)
	gen := f.generator(nil)

	_, err := gen.Generate(context.Background(), f.tenant, GenerateRequest{DateRange: week()})
	require.NoError(t, err)
	res, err := gen.Generate(context.Background(), f.tenant, GenerateRequest{DateRange: week()})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Count())
	assert.Len(t, f.all(week()), 50)
}

func TestGenerate_NoMatchingShifts(t *testing.T) {
	f := newFixture()
	f.shift("MORNING", "08:00", "16:00", 1, 1, 1)

	_, err := f.generator(nil).Generate(context.Background(), f.tenant, GenerateRequest{
		DateRange: week(),
		ShiftIDs:  []uuid.UUID{uuid.New()},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	assert.Empty(t, f.sink.Events())
}

func TestGenerate_InvalidRange(t *testing.T) {
	f := newFixture()
	f.shift("MORNING", "08:00", "16:00", 1, 1, 1)

	_, err := f.generator(nil).Generate(context.Background(), f.tenant, GenerateRequest{
		DateRange: model.DateRange{StartDate: "2025-03-07", EndDate: "2025-03-03"},
	})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestGenerate_CalendarAndExceptions(t *testing.T) {
	f := newFixture()
	morning := f.shift("MORNING", "08:00", "16:00", 1, 4, 6)
	weekend := f.shift("WEEKEND", "09:00", "17:00", 1, 2, 3)
	weekend.WorkDays = []model.WorkDay{model.Saturday, model.Sunday}
	f.mem.PutShift(weekend)

	// 周一：节假日，无调整 → 跳过
	f.mem.PutCalendarDay(&model.ProductionCalendar{TenantID: f.tenant, Date: "2025-03-03", IsHoliday: true})
	// 周二：产能 50%
	f.mem.PutCalendarDay(&model.ProductionCalendar{TenantID: f.tenant, Date: "2025-03-04", IsWorkingDay: true, CapacityPercentage: 50})
	// 周三：例外取消早班
	f.mem.PutException(&model.ShiftException{BaseModel: model.NewBaseModel(f.tenant), ShiftID: morning.ID, Date: "2025-03-05", IsCancelled: true})
	// 周四：日历调整取消早班
	f.mem.PutCalendarDay(&model.ProductionCalendar{TenantID: f.tenant, Date: "2025-03-06", IsWorkingDay: true, CapacityPercentage: 100,
		ShiftOverrides: []model.CalendarShiftOverride{{ShiftID: morning.ID, IsCancelled: true}}})
	// 周六：非工作日，但周末班有调整
	f.mem.PutCalendarDay(&model.ProductionCalendar{TenantID: f.tenant, Date: "2025-03-08", CapacityPercentage: 100,
		ShiftOverrides: []model.CalendarShiftOverride{{ShiftID: weekend.ID, MinWorkers: intPtr(3)}}})

	r := model.DateRange{StartDate: "2025-03-03", EndDate: "2025-03-09"}
	_, err := f.generator(nil).Generate(context.Background(), f.tenant, GenerateRequest{DateRange: r})
	require.NoError(t, err)

	perDay := map[string]int{}
	for _, a := range f.all(r) {
		perDay[a.Date]++
	}
	assert.Equal(t, map[string]int{
		"2025-03-04": 2, // 4 × 50%
		"2025-03-07": 4,
		"2025-03-08": 3, // 调整后的周末班
		"2025-03-09": 2, // 无日历记录的周日按默认工作日
	}, perDay)
}

func TestGenerate_AutoAssignRanking(t *testing.T) {
	f := newFixture()
	dept := uuid.New()
	shift := f.shift("PACK", "08:00", "16:00", 1, 1, 2)
	shift.DepartmentID = &dept
	shift.SkillRequirements = []model.SkillRequirement{{Skill: "forklift", MinCount: 1}}
	f.mem.PutShift(shift)
	other := f.shift("OTHER", "08:00", "16:00", 0, 0, 1)

	a := f.worker("A", &dept, model.WorkerSkill{Name: "forklift", Level: 1})
	b := f.worker("B", &dept, model.WorkerSkill{Name: "forklift", Level: 1})
	f.worker("C", &dept)
	onLeave := f.worker("D", &dept, model.WorkerSkill{Name: "forklift", Level: 1})
	onLeave.Status = model.WorkerOnLeave
	f.mem.PutWorker(onLeave)
	f.worker("E", nil, model.WorkerSkill{Name: "forklift", Level: 1})

	// A 本周已有一个班
	aID := a.ID
	require.NoError(t, f.mem.Assignments().Insert(context.Background(), model.NewAssignment(f.tenant, other, "2025-03-04", &aID)))

	day := model.DateRange{StartDate: "2025-03-05", EndDate: "2025-03-05"}
	req := GenerateRequest{
		DateRange:     day,
		ShiftIDs:      []uuid.UUID{shift.ID},
		AutoAssign:    true,
		AssignOptions: AssignOptions{RespectSkillRequirements: true, BalanceWorkload: true},
	}
	res, err := f.generator(nil).Generate(context.Background(), f.tenant, req)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.Equal(t, b.ID, *res.Assignments[0].WorkerID, "工作量少的优先")

	// 不均衡时按目录顺序
	require.NoError(t, f.mem.Assignments().UpdateStatus(context.Background(), f.tenant, res.Assignments[0].ID,
		model.StatusScheduled, model.StatusCancelled, ""))
	req.BalanceWorkload = false
	res, err = f.generator(nil).Generate(context.Background(), f.tenant, req)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.Equal(t, a.ID, *res.Assignments[0].WorkerID)
}

func TestGenerate_AutoAssignNeverDoubleBooks(t *testing.T) {
	f := newFixture()
	early := f.shift("EARLY", "06:00", "14:00", 1, 2, 3)
	early.Priority = 10
	f.mem.PutShift(early)
	f.shift("LATE", "14:00", "22:00", 1, 2, 3)
	for _, code := range []string{"W1", "W2", "W3"} {
		f.worker(code, nil)
	}

	res, err := f.generator(nil).Generate(context.Background(), f.tenant, GenerateRequest{
		DateRange:  week(),
		AutoAssign: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Count())
	assert.Equal(t, 5, res.Understaffed)

	seen := map[string]bool{}
	for _, a := range f.all(week()) {
		require.True(t, a.HasWorker())
		key := a.WorkerID.String() + a.Date
		assert.False(t, seen[key], "同一员工同一天重复排班")
		seen[key] = true
	}
}

// cancellingCalendar 在查询指定日期时取消上下文
type cancellingCalendar struct {
	store.CalendarStore
	at     string
	cancel context.CancelFunc
}

func (c cancellingCalendar) GetDay(ctx context.Context, tenantID uuid.UUID, date string) (*model.ProductionCalendar, error) {
	if date == c.at {
		c.cancel()
	}
	return c.CalendarStore.GetDay(ctx, tenantID, date)
}

func TestGenerate_CancellationKeepsCommittedSlots(t *testing.T) {
	f := newFixture()
	f.shift("MORNING", "08:00", "16:00", 5, 10, 15)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := f.generator(cancellingCalendar{CalendarStore: f.mem, at: "2025-03-04", cancel: cancel})

	res, err := gen.Generate(ctx, f.tenant, GenerateRequest{DateRange: week()})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCancelled, apperrors.GetCode(err))
	require.NotNil(t, res)
	assert.Equal(t, 10, res.Count())

	list := f.all(week())
	assert.Len(t, list, 10)
	for _, a := range list {
		assert.Equal(t, "2025-03-03", a.Date)
	}
	assert.Empty(t, f.sink.OfType(events.ScheduleGenerated))
}

package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/availability"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	tenant uuid.UUID
	mem    *store.Memory
	sink   *events.MemorySink
}

func newFixture() *fixture {
	return &fixture{tenant: uuid.New(), mem: store.NewMemory(), sink: events.NewMemorySink()}
}

func (f *fixture) options() []Option {
	return []Option{
		WithLogger(logger.NopSchedulerLogger()),
		WithSink(f.sink),
		WithClock(func() time.Time { return fixedNow }),
	}
}

func (f *fixture) generator(calendar store.CalendarStore) *Generator {
	if calendar == nil {
		calendar = f.mem
	}
	return NewGenerator(
		NewShiftCatalog(f.mem),
		NewCalendarResolver(calendar, f.mem),
		NewAutoAssigner(f.mem, availability.NewDirectoryGate(f.mem)),
		f.mem,
		f.options()...,
	)
}

func (f *fixture) shift(code, start, end string, min, target, max int) *model.Shift {
	s := &model.Shift{
		BaseModel:     model.NewBaseModel(f.tenant),
		Code:          code,
		Name:          code,
		Type:          model.ShiftMorning,
		StartTime:     start,
		EndTime:       end,
		WorkDays:      model.Weekdays(),
		MinWorkers:    min,
		TargetWorkers: target,
		MaxWorkers:    max,
		IsActive:      true,
	}
	f.mem.PutShift(s)
	return s
}

func (f *fixture) worker(code string, dept *uuid.UUID, skills ...model.WorkerSkill) *model.Worker {
	w := &model.Worker{
		BaseModel:    model.NewBaseModel(f.tenant),
		Code:         code,
		Name:         code,
		Status:       model.WorkerAvailable,
		DepartmentID: dept,
		Skills:       skills,
	}
	f.mem.PutWorker(w)
	return w
}

func (f *fixture) all(r model.DateRange) []*model.ShiftAssignment {
	list, _ := f.mem.Assignments().List(context.Background(), f.tenant, store.AssignmentQuery{DateRange: r})
	return list
}

func intPtr(v int) *int { return &v }

func week() model.DateRange {
	// 2025-03-03 周一 至 2025-03-07 周五
	return model.DateRange{StartDate: "2025-03-03", EndDate: "2025-03-07"}
}

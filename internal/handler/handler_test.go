package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/pkg/availability"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/scheduler"
	"github.com/paiban/shiftplan/pkg/stats"
	"github.com/paiban/shiftplan/pkg/store"
	"github.com/paiban/shiftplan/pkg/swap"
	rules "github.com/paiban/shiftplan/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	} `json:"error"`
}

type testServer struct {
	t      *testing.T
	tenant uuid.UUID
	mem    *store.Memory
	sink   *events.MemorySink
	h      *Handler
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	mem := store.NewMemory()
	sink := events.NewMemorySink()
	opts := []scheduler.Option{
		scheduler.WithLogger(logger.NopSchedulerLogger()),
		scheduler.WithSink(sink),
	}
	gate := availability.NewDirectoryGate(mem)

	h, err := NewHandler(cfg, Services{
		Generator: scheduler.NewGenerator(
			scheduler.NewShiftCatalog(mem),
			scheduler.NewCalendarResolver(mem, mem),
			scheduler.NewAutoAssigner(mem, gate),
			mem, opts...),
		Patterns: scheduler.NewPatternApplier(mem, mem, opts...),
		Status:   scheduler.NewStatusUpdater(mem, opts...),
		Swaps: swap.NewManager(mem, mem.Assignments(), mem, gate,
			swap.WithLogger(logger.NopSchedulerLogger()), swap.WithSink(sink)),
		Coverage: stats.NewCoverageAnalyzer(mem, mem.Assignments()),
		Fairness: stats.NewFairnessAnalyzer(mem, mem.Assignments(), cfg.Scheduler.MaxHoursPerWeek),
		Conflicts: rules.NewConflictDetector(mem, mem.Assignments(), &rules.DetectorConfig{
			MinRestHours:    cfg.Scheduler.MinRestHours,
			MaxHoursPerWeek: cfg.Scheduler.MaxHoursPerWeek,
		}),
	})
	require.NoError(t, err)
	h.RegisterRoutes()

	return &testServer{t: t, tenant: uuid.New(), mem: mem, sink: sink, h: h}
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.h.Mux.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) api(path string) string {
	return "/api/v1/tenants/" + s.tenant.String() + path
}

func (s *testServer) shift(code, start, end string, target int) *model.Shift {
	sh := &model.Shift{
		BaseModel: model.NewBaseModel(s.tenant), Code: code, Name: code,
		StartTime: start, EndTime: end, IsOvernight: end < start, WorkDays: model.Weekdays(),
		MinWorkers: target / 2, TargetWorkers: target, MaxWorkers: target * 2, IsActive: true,
	}
	s.mem.PutShift(sh)
	return sh
}

func (s *testServer) worker(code string) *model.Worker {
	w := &model.Worker{BaseModel: model.NewBaseModel(s.tenant), Code: code, Name: code, Status: model.WorkerAvailable}
	s.mem.PutWorker(w)
	return w
}

func (s *testServer) assign(sh *model.Shift, date string, w *model.Worker) *model.ShiftAssignment {
	id := w.ID
	a := model.NewAssignment(s.tenant, sh, date, &id)
	require.NoError(s.t, s.mem.Assignments().Insert(context.Background(), a))
	return a
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	s.h.services.Health = func(context.Context) error { return errors.New("db down") }
	rec, env = s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(http.MethodGet, "/health", nil)

	rec := httptest.NewRecorder()
	s.h.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/health"`)
}

func TestGenerateSchedule_Placeholders(t *testing.T) {
	s := newTestServer(t, nil)
	s.shift("MORNING", "08:00", "16:00", 10)

	rec, env := s.do(http.MethodPost, s.api("/schedule/generate"), map[string]any{
		"start_date":  "2025-03-03",
		"end_date":    "2025-03-07",
		"auto_assign": false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result scheduler.GenerateResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Assignments, 50)
	for _, a := range result.Assignments {
		assert.Nil(t, a.WorkerID)
		assert.Equal(t, model.StatusScheduled, a.Status)
	}
	assert.Len(t, s.sink.OfType(events.ScheduleGenerated), 1)
}

func TestGenerateSchedule_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := s.do(http.MethodPost, s.api("/schedule/generate"), map[string]any{"start_date": "2025-03-03"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "EndDate")

	rec, env = s.do(http.MethodPost, s.api("/schedule/generate"), map[string]any{
		"start_date": "2025-03-07", "end_date": "2025-03-03",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, s.api("/schedule/generate"), strings.NewReader("{"))
	raw := httptest.NewRecorder()
	s.h.Mux.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestInvalidTenant(t *testing.T) {
	s := newTestServer(t, nil)
	rec, env := s.do(http.MethodGet, "/api/v1/tenants/abc/coverage?start_date=2025-03-03&end_date=2025-03-03", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.API.RateLimit = 1
		cfg.API.RateBurst = 1
	})
	path := s.api("/coverage?start_date=2025-03-03&end_date=2025-03-03")

	rec, _ := s.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := s.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
}

func TestUpdateAssignmentStatus(t *testing.T) {
	s := newTestServer(t, nil)
	sh := s.shift("M", "08:00", "16:00", 2)
	a := s.assign(sh, "2025-03-03", s.worker("W1"))
	path := s.api("/assignments/" + a.ID.String() + "/status")

	rec, env := s.do(http.MethodPatch, path, map[string]string{"status": "confirmed", "note": "已确认"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.ShiftAssignment
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, model.StatusConfirmed, updated.Status)

	rec, env = s.do(http.MethodPatch, path, map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	rec, env = s.do(http.MethodPatch, path, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", env.Error.Code)

	rec, env = s.do(http.MethodPatch, s.api("/assignments/"+uuid.NewString()+"/status"), map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	rec, _ = s.do(http.MethodPatch, s.api("/assignments/xyz/status"), map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwapShift(t *testing.T) {
	s := newTestServer(t, nil)
	sh := s.shift("M", "08:00", "16:00", 2)
	alice, bob := s.worker("A001"), s.worker("B001")
	a := s.assign(sh, "2025-03-03", alice)

	rec, env := s.do(http.MethodPost, s.api("/swaps"), swap.Request{
		AssignmentID: a.ID, FromWorkerID: alice.ID, ToWorkerID: bob.ID, Reason: "家中有事",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result swap.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, model.StatusCancelled, result.Original.Status)
	require.NotNil(t, result.Replacement.WorkerID)
	assert.Equal(t, bob.ID, *result.Replacement.WorkerID)

	// 原分配已取消，再次换班不被允许
	rec, env = s.do(http.MethodPost, s.api("/swaps"), swap.Request{
		AssignmentID: a.ID, FromWorkerID: alice.ID, ToWorkerID: bob.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	rec, env = s.do(http.MethodPost, s.api("/swaps"), map[string]string{"assignment_id": a.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestSwapShift_TargetBooked(t *testing.T) {
	s := newTestServer(t, nil)
	sh := s.shift("M", "08:00", "16:00", 2)
	alice, bob := s.worker("A001"), s.worker("B001")
	a := s.assign(sh, "2025-03-03", alice)
	s.assign(sh, "2025-03-03", bob)

	rec, env := s.do(http.MethodPost, s.api("/swaps"), swap.Request{
		AssignmentID: a.ID, FromWorkerID: alice.ID, ToWorkerID: bob.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SCHEDULE_CONFLICT", env.Error.Code)
}

func TestApplyPatternAndWorkload(t *testing.T) {
	s := newTestServer(t, nil)
	s.shift("M", "08:00", "16:00", 2)
	w := s.worker("W1")

	rec, env := s.do(http.MethodPost, s.api("/patterns/apply"), map[string]any{
		"start_date": "2025-03-03",
		"end_date":   "2025-03-06",
		"pattern":    map[string]any{"name": "做一休一", "shift_codes": []string{"M", "OFF"}},
		"worker_ids": []string{w.ID.String()},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result scheduler.PatternResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "2025-03-03", result.Assignments[0].Date)
	assert.Equal(t, "2025-03-05", result.Assignments[1].Date)

	rec, env = s.do(http.MethodGet, s.api("/workload?start_date=2025-03-03&end_date=2025-03-09"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fairness stats.FairnessMetrics
	require.NoError(t, json.Unmarshal(env.Data, &fairness))
	require.Len(t, fairness.WorkerStats, 1)
	assert.Equal(t, 2, fairness.WorkerStats[0].ShiftCount)

	rec, env = s.do(http.MethodPost, s.api("/patterns/apply"), map[string]any{
		"start_date": "2025-03-03",
		"end_date":   "2025-03-06",
		"pattern":    map[string]any{"name": "空"},
		"worker_ids": []string{w.ID.String()},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestGetCoverage(t *testing.T) {
	s := newTestServer(t, nil)
	sh := s.shift("M", "08:00", "16:00", 4)
	s.assign(sh, "2025-03-03", s.worker("W1"))

	rec, env := s.do(http.MethodGet, s.api("/coverage?start_date=2025-03-03&end_date=2025-03-04"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report stats.CoverageReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Len(t, report.Items, 2)
	assert.Equal(t, 25.0, report.Items[0].CoveragePercentage)
	assert.Equal(t, 8, report.Summary.TotalRequired)
	assert.Equal(t, 1, report.Summary.TotalAssigned)

	rec, _ = s.do(http.MethodGet, s.api("/coverage?start_date=2025-03-03&end_date=2025-03-04&format=text"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2025-03-03 M: 1/4")

	rec, env = s.do(http.MethodGet, s.api("/coverage?start_date=2025-03-03"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	rec, _ = s.do(http.MethodGet, s.api("/coverage?start_date=2025-03-03&end_date=2025-03-04&shift_ids=nope"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkerConflicts(t *testing.T) {
	s := newTestServer(t, nil)
	night := s.shift("N", "22:00", "06:00", 1)
	morning := s.shift("M", "08:00", "16:00", 1)
	w := s.worker("W1")
	s.assign(night, "2025-03-03", w)
	s.assign(morning, "2025-03-04", w)

	rec, env := s.do(http.MethodGet,
		s.api("/workers/"+w.ID.String()+"/conflicts?start_date=2025-03-03&end_date=2025-03-09"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ConflictsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, rules.ConflictRestPeriod, resp.Conflicts[0].Type)
	assert.Equal(t, "2025-03-04", resp.Conflicts[0].Date)

	other := s.worker("W2")
	rec, env = s.do(http.MethodGet,
		s.api("/workers/"+other.ID.String()+"/conflicts?start_date=2025-03-03&end_date=2025-03-09"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Conflicts)
}

func TestTimeoutMiddleware(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.API.Timeout = time.Nanosecond })
	s.shift("M", "08:00", "16:00", 1)

	rec, env := s.do(http.MethodPost, s.api("/schedule/generate"), map[string]any{
		"start_date": "2025-03-03", "end_date": "2025-03-07",
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "TIMEOUT", env.Error.Code)
}

package stats

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// FairnessMetrics 工作量公平性指标
type FairnessMetrics struct {
	WorkloadGini         float64      `json:"workload_gini"` // 0=完全公平, 1=完全不公平
	WorkloadStdDev       float64      `json:"workload_std_dev"`
	AvgHoursPerWorker    float64      `json:"avg_hours_per_worker"`
	MaxHours             float64      `json:"max_hours"`
	MinHours             float64      `json:"min_hours"`
	NightShiftGini       float64      `json:"night_shift_gini"`
	WeekendShiftGini     float64      `json:"weekend_shift_gini"`
	WorkerStats          []WorkerStat `json:"worker_stats"`
	OverallFairnessScore float64      `json:"overall_fairness_score"` // 0-100
}

// WorkerStat 员工统计
type WorkerStat struct {
	WorkerID      uuid.UUID `json:"worker_id"`
	TotalHours    float64   `json:"total_hours"`
	ShiftCount    int       `json:"shift_count"`
	NightShifts   int       `json:"night_shifts"`
	WeekendShifts int       `json:"weekend_shifts"`
	OvertimeHours float64   `json:"overtime_hours"` // 各 ISO 周超出标准工时之和
	Deviation     float64   `json:"deviation"`      // 与平均值的偏差百分比
}

// FairnessAnalyzer 公平性分析器
type FairnessAnalyzer struct {
	standardWeeklyHours float64
	shifts              store.ShiftStore
	assigns             store.AssignmentReader
}

// NewFairnessAnalyzer 创建公平性分析器，weeklyHours<=0 时取 40
func NewFairnessAnalyzer(shifts store.ShiftStore, assigns store.AssignmentReader, weeklyHours float64) *FairnessAnalyzer {
	if weeklyHours <= 0 {
		weeklyHours = 40
	}
	return &FairnessAnalyzer{standardWeeklyHours: weeklyHours, shifts: shifts, assigns: assigns}
}

// Analyze 分析范围内已指派员工的工作量分布
func (f *FairnessAnalyzer) Analyze(ctx context.Context, tenantID uuid.UUID, r model.DateRange) (*FairnessMetrics, error) {
	const op = "analyze_fairness"
	if err := r.Validate(); err != nil {
		return nil, apperrors.InvalidInput("date_range", err.Error()).WithOperation(op)
	}
	assignments, err := f.assigns.List(ctx, tenantID, store.AssignmentQuery{DateRange: r})
	if err != nil {
		return nil, apperrors.Database(err, op)
	}
	shifts, err := f.shifts.ListActive(ctx, tenantID, model.ShiftFilter{})
	if err != nil {
		return nil, apperrors.Database(err, op)
	}
	byID := make(map[uuid.UUID]*model.Shift, len(shifts))
	for _, s := range shifts {
		byID[s.ID] = s
	}
	return f.Compute(assignments, byID), nil
}

// Compute 计算公平性指标
func (f *FairnessAnalyzer) Compute(assignments []*model.ShiftAssignment, shifts map[uuid.UUID]*model.Shift) *FairnessMetrics {
	stats := f.workerStats(assignments, shifts)
	if len(stats) == 0 {
		return &FairnessMetrics{WorkerStats: []WorkerStat{}, OverallFairnessScore: 100}
	}

	hours := make([]float64, len(stats))
	nights := make([]float64, len(stats))
	weekends := make([]float64, len(stats))
	for i, s := range stats {
		hours[i] = s.TotalHours
		nights[i] = float64(s.NightShifts)
		weekends[i] = float64(s.WeekendShifts)
	}

	avg := mean(hours)
	stdDev := math.Sqrt(variance(hours, avg))
	maxHours, minHours := valueRange(hours)
	for i := range stats {
		if avg > 0 {
			stats[i].Deviation = (stats[i].TotalHours - avg) / avg * 100
		}
	}

	m := &FairnessMetrics{
		WorkloadGini:      gini(hours),
		WorkloadStdDev:    stdDev,
		AvgHoursPerWorker: avg,
		MaxHours:          maxHours,
		MinHours:          minHours,
		NightShiftGini:    gini(nights),
		WeekendShiftGini:  gini(weekends),
		WorkerStats:       stats,
	}
	m.OverallFairnessScore = overallScore(m)
	return m
}

func (f *FairnessAnalyzer) workerStats(assignments []*model.ShiftAssignment, shifts map[uuid.UUID]*model.Shift) []WorkerStat {
	byWorker := make(map[uuid.UUID]*WorkerStat)
	weekly := make(map[uuid.UUID]map[string]float64)

	for _, a := range assignments {
		if !a.IsActive() || !a.HasWorker() {
			continue
		}
		s := shifts[a.ShiftID]
		if s == nil {
			continue
		}
		id := *a.WorkerID
		st, ok := byWorker[id]
		if !ok {
			st = &WorkerStat{WorkerID: id}
			byWorker[id] = st
			weekly[id] = make(map[string]float64)
		}
		h := s.WorkingHours()
		st.TotalHours += h
		st.ShiftCount++
		if s.IsNightShift() || s.IsOvernight {
			st.NightShifts++
		}
		if day, err := model.WorkDayOf(a.Date); err == nil && (day == model.Saturday || day == model.Sunday) {
			st.WeekendShifts++
		}
		weekly[id][model.ISOWeekKey(a.Date)] += h
	}

	out := make([]WorkerStat, 0, len(byWorker))
	for id, st := range byWorker {
		for _, h := range weekly[id] {
			if h > f.standardWeeklyHours {
				st.OvertimeHours += h - f.standardWeeklyHours
			}
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalHours != out[j].TotalHours {
			return out[i].TotalHours > out[j].TotalHours
		}
		return out[i].WorkerID.String() < out[j].WorkerID.String()
	})
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += (v - avg) * (v - avg)
	}
	return sum / float64(len(values))
}

func valueRange(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

// gini 基尼系数
func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	g := 0.0
	for i, v := range sorted {
		g += (2*float64(i+1) - float64(n) - 1) * v
	}
	g = g / (float64(n) * sum)
	return math.Max(0, math.Min(1, g))
}

// overallScore 加权：工时 0.4，夜班 0.25，周末 0.25，变异系数 0.1
func overallScore(m *FairnessMetrics) float64 {
	cvScore := 100.0
	if m.AvgHoursPerWorker > 0 {
		cv := m.WorkloadStdDev / m.AvgHoursPerWorker
		cvScore = math.Max(0, 100-cv*200)
	}
	score := 0.4*(1-m.WorkloadGini)*100 +
		0.25*(1-m.NightShiftGini)*100 +
		0.25*(1-m.WeekendShiftGini)*100 +
		0.1*cvScore
	return math.Max(0, math.Min(100, score))
}

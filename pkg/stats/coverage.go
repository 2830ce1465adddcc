// Package stats 提供排班统计分析功能
package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/paiban/shiftplan/pkg/errors"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// CoverageRequest 覆盖率查询
type CoverageRequest struct {
	model.DateRange
	ShiftIDs []uuid.UUID `json:"shift_ids,omitempty"`
}

// ShiftCoverage 班次某天的覆盖情况
type ShiftCoverage struct {
	ShiftID            uuid.UUID `json:"shift_id"`
	ShiftCode          string    `json:"shift_code"`
	Date               string    `json:"date"`
	RequiredWorkers    int       `json:"required_workers"`
	AssignedWorkers    int       `json:"assigned_workers"`
	CoveragePercentage float64   `json:"coverage_percentage"`
	Understaffed       bool      `json:"understaffed"` // assigned < min
	Overstaffed        bool      `json:"overstaffed"`  // assigned > max
}

// CoverageSummary 汇总
type CoverageSummary struct {
	TotalRequired     int     `json:"total_required"`
	TotalAssigned     int     `json:"total_assigned"`
	OverallCoverage   float64 `json:"overall_coverage"`
	UnderstaffedCount int     `json:"understaffed_count"`
	OverstaffedCount  int     `json:"overstaffed_count"`
}

// CoverageReport 覆盖率报告
type CoverageReport struct {
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Items     []ShiftCoverage `json:"items"`
	Summary   CoverageSummary `json:"summary"`
}

// CoverageAnalyzer 覆盖率分析器，需求人数取班次的静态配置
type CoverageAnalyzer struct {
	shifts  store.ShiftStore
	assigns store.AssignmentReader
}

// NewCoverageAnalyzer 创建覆盖率分析器
func NewCoverageAnalyzer(shifts store.ShiftStore, assigns store.AssignmentReader) *CoverageAnalyzer {
	return &CoverageAnalyzer{shifts: shifts, assigns: assigns}
}

// Analyze 统计范围内每个 班次×日期 的覆盖情况
func (c *CoverageAnalyzer) Analyze(ctx context.Context, tenantID uuid.UUID, req CoverageRequest) (*CoverageReport, error) {
	const op = "analyze_coverage"
	if err := req.DateRange.Validate(); err != nil {
		return nil, apperrors.InvalidInput("date_range", err.Error()).WithOperation(op)
	}

	shifts, err := c.shifts.ListActive(ctx, tenantID, model.ShiftFilter{ShiftIDs: req.ShiftIDs})
	if err != nil {
		return nil, apperrors.Database(err, op)
	}
	assignments, err := c.assigns.List(ctx, tenantID, store.AssignmentQuery{
		DateRange: req.DateRange,
		ShiftIDs:  req.ShiftIDs,
	})
	if err != nil {
		return nil, apperrors.Database(err, op)
	}

	return Coverage(shifts, assignments, req.DateRange), nil
}

// Coverage 根据班次和分配计算覆盖率。只统计已指派员工的非取消分配。
func Coverage(shifts []*model.Shift, assignments []*model.ShiftAssignment, r model.DateRange) *CoverageReport {
	assigned := make(map[string]int)
	for _, a := range assignments {
		if a.IsActive() && a.HasWorker() {
			assigned[slotKey(a.ShiftID, a.Date)]++
		}
	}

	report := &CoverageReport{StartDate: r.StartDate, EndDate: r.EndDate, Items: []ShiftCoverage{}}
	for _, date := range r.Dates() {
		for _, s := range shifts {
			if !s.IsActiveOn(date) {
				continue
			}
			item := ShiftCoverage{
				ShiftID:         s.ID,
				ShiftCode:       s.Code,
				Date:            date,
				RequiredWorkers: s.TargetWorkers,
				AssignedWorkers: assigned[slotKey(s.ID, date)],
			}
			item.CoveragePercentage = percentage(item.AssignedWorkers, item.RequiredWorkers)
			item.Understaffed = item.AssignedWorkers < s.MinWorkers
			item.Overstaffed = item.AssignedWorkers > s.MaxWorkers

			report.Items = append(report.Items, item)
			report.Summary.TotalRequired += item.RequiredWorkers
			report.Summary.TotalAssigned += item.AssignedWorkers
			if item.Understaffed {
				report.Summary.UnderstaffedCount++
			}
			if item.Overstaffed {
				report.Summary.OverstaffedCount++
			}
		}
	}
	report.Summary.OverallCoverage = percentage(report.Summary.TotalAssigned, report.Summary.TotalRequired)
	return report
}

// percentage 需求为 0 时返回 0
func percentage(assigned, required int) float64 {
	if required <= 0 {
		return 0
	}
	return float64(assigned) / float64(required) * 100
}

func slotKey(shiftID uuid.UUID, date string) string {
	return shiftID.String() + "|" + date
}

// GenerateCoverageReport 生成文本报告
func GenerateCoverageReport(report *CoverageReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("覆盖率报告 %s ~ %s\n", report.StartDate, report.EndDate))
	b.WriteString(fmt.Sprintf("整体覆盖率: %.1f%% (%d/%d)\n",
		report.Summary.OverallCoverage, report.Summary.TotalAssigned, report.Summary.TotalRequired))
	b.WriteString(fmt.Sprintf("人手不足: %d  超编: %d\n", report.Summary.UnderstaffedCount, report.Summary.OverstaffedCount))
	for _, item := range report.Items {
		if !item.Understaffed && !item.Overstaffed {
			continue
		}
		flag := "不足"
		if item.Overstaffed {
			flag = "超编"
		}
		b.WriteString(fmt.Sprintf("  %s %s: %d/%d (%s)\n", item.Date, item.ShiftCode,
			item.AssignedWorkers, item.RequiredWorkers, flag))
	}
	return b.String()
}

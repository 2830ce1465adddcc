// Package availability 封装员工可用性与技能查询
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// Result 可用性检查结果
type Result struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// SkillMatch 技能匹配结果
type SkillMatch struct {
	Worker        *model.Worker `json:"worker"`
	MatchScore    float64       `json:"match_score"` // 0-100
	MatchedSkills []string      `json:"matched_skills"`
	MissingSkills []string      `json:"missing_skills"`
}

// Gate 员工可用性网关
type Gate interface {
	// CheckAvailability 检查员工在 date 的 [startTime, endTime) 是否可用。
	// startTime/endTime 为空时只要求当天有不少于 hoursNeeded 小时的可用时段。
	CheckAvailability(ctx context.Context, tenantID, workerID uuid.UUID, date, startTime, endTime string, hoursNeeded float64) (Result, error)
	// FindWorkersWithSkills 返回可排班员工的技能匹配结果，按匹配度降序
	FindWorkersWithSkills(ctx context.Context, tenantID uuid.UUID, requirements []model.SkillRequirement) ([]SkillMatch, error)
}

// DirectoryGate 基于员工目录的实现
type DirectoryGate struct {
	workers store.WorkerDirectory
}

// NewDirectoryGate 创建可用性网关
func NewDirectoryGate(workers store.WorkerDirectory) *DirectoryGate {
	return &DirectoryGate{workers: workers}
}

// CheckAvailability 实现 Gate
func (g *DirectoryGate) CheckAvailability(ctx context.Context, tenantID, workerID uuid.UUID, date, startTime, endTime string, hoursNeeded float64) (Result, error) {
	w, err := g.workers.GetWorker(ctx, tenantID, workerID)
	if err != nil {
		return Result{}, fmt.Errorf("查询员工失败: %w", err)
	}
	if w == nil {
		return Result{Reason: "员工不存在"}, nil
	}
	if !w.IsSchedulable() {
		return Result{Reason: fmt.Sprintf("员工状态为 %s", w.Status)}, nil
	}
	// 未声明可用时段视为不受限
	if len(w.Availability) == 0 {
		return Result{Available: true}, nil
	}

	day, err := model.WorkDayOf(date)
	if err != nil {
		return Result{}, err
	}

	if startTime == "" || endTime == "" {
		need := time.Duration(hoursNeeded * float64(time.Hour))
		for _, win := range w.Availability {
			if win.Day == day && windowLength(win) >= need {
				return Result{Available: true}, nil
			}
		}
		return Result{Reason: fmt.Sprintf("%s 无 %.1f 小时可用时段", day, hoursNeeded)}, nil
	}

	start, err := model.ParseClock(startTime)
	if err != nil {
		return Result{}, err
	}
	end, err := model.ParseClock(endTime)
	if err != nil {
		return Result{}, err
	}
	if end <= start {
		end += 24 * time.Hour
	}

	for _, win := range w.Availability {
		if win.Day == day && win.Covers(start, end) {
			return Result{Available: true}, nil
		}
	}
	return Result{Reason: fmt.Sprintf("%s %s-%s 不在可用时段内", day, startTime, endTime)}, nil
}

// FindWorkersWithSkills 实现 Gate
func (g *DirectoryGate) FindWorkersWithSkills(ctx context.Context, tenantID uuid.UUID, requirements []model.SkillRequirement) ([]SkillMatch, error) {
	workers, err := g.workers.ListWorkers(ctx, tenantID, nil, model.SchedulableStatuses())
	if err != nil {
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}

	matches := make([]SkillMatch, 0, len(workers))
	for _, w := range workers {
		matches = append(matches, MatchSkills(w, requirements))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches, nil
}

// MatchSkills 计算单个员工对技能要求的匹配情况
func MatchSkills(w *model.Worker, requirements []model.SkillRequirement) SkillMatch {
	m := SkillMatch{Worker: w, MatchedSkills: []string{}, MissingSkills: []string{}}
	if len(requirements) == 0 {
		m.MatchScore = 100
		return m
	}
	for _, req := range requirements {
		if w.HasSkill(req.Skill, req.Level) {
			m.MatchedSkills = append(m.MatchedSkills, req.Skill)
		} else {
			m.MissingSkills = append(m.MissingSkills, req.Skill)
		}
	}
	m.MatchScore = float64(len(m.MatchedSkills)) / float64(len(requirements)) * 100
	return m
}

func windowLength(w model.AvailabilityWindow) time.Duration {
	start, err1 := model.ParseClock(w.StartTime)
	end, err2 := model.ParseClock(w.EndTime)
	if err1 != nil || err2 != nil {
		return 0
	}
	if end <= start {
		end += 24 * time.Hour
	}
	return end - start
}

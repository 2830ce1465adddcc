package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/availability"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/store"
)

// AssignOptions 自动分配选项
type AssignOptions struct {
	RespectSkillRequirements bool `json:"respect_skill_requirements"`
	BalanceWorkload          bool `json:"balance_workload"`
}

// AutoAssigner 自动分配员工
type AutoAssigner struct {
	workers store.WorkerDirectory
	gate    availability.Gate
}

// NewAutoAssigner 创建自动分配器
func NewAutoAssigner(workers store.WorkerDirectory, gate availability.Gate) *AutoAssigner {
	return &AutoAssigner{workers: workers, gate: gate}
}

// Assign 为班次某天挑选至多 target 名员工，返回未持久化的分配。
// 候选不足时返回的数量少于 target，不视为错误。
func (a *AutoAssigner) Assign(ctx context.Context, reader store.AssignmentReader, tenantID uuid.UUID,
	shift *model.Shift, date string, target int, opts AssignOptions) ([]*model.ShiftAssignment, error) {
	if target <= 0 {
		return nil, nil
	}

	// 1. 部门内可排班员工
	workers, err := a.workers.ListWorkers(ctx, tenantID, shift.DepartmentID, model.SchedulableStatuses())
	if err != nil {
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}

	// 2. 排除当天已排班的员工
	booked, err := store.BookedWorkers(ctx, reader, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("查询当天排班失败: %w", err)
	}

	// 3. 可用时段
	hours := shift.WorkingHours()
	candidates := make([]*model.Worker, 0, len(workers))
	for _, w := range workers {
		if booked[w.ID] {
			continue
		}
		res, err := a.gate.CheckAvailability(ctx, tenantID, w.ID, date, shift.StartTime, shift.EndTime, hours)
		if err != nil {
			return nil, fmt.Errorf("检查员工 %s 可用性失败: %w", w.ID, err)
		}
		if res.Available {
			candidates = append(candidates, w)
		}
	}

	// 4. 技能要求
	if opts.RespectSkillRequirements && len(shift.SkillRequirements) > 0 {
		candidates, err = a.filterBySkills(ctx, tenantID, shift.SkillRequirements, candidates)
		if err != nil {
			return nil, err
		}
	}

	// 5. 本周工作量少的优先
	if opts.BalanceWorkload && len(candidates) > 1 {
		if err := a.sortByWeeklyLoad(ctx, reader, tenantID, date, candidates); err != nil {
			return nil, err
		}
	}

	// 6. 取前 target 名
	if len(candidates) > target {
		candidates = candidates[:target]
	}
	out := make([]*model.ShiftAssignment, 0, len(candidates))
	for _, w := range candidates {
		id := w.ID
		out = append(out, model.NewAssignment(tenantID, shift, date, &id))
	}
	return out, nil
}

func (a *AutoAssigner) filterBySkills(ctx context.Context, tenantID uuid.UUID, reqs []model.SkillRequirement, candidates []*model.Worker) ([]*model.Worker, error) {
	matches, err := a.gate.FindWorkersWithSkills(ctx, tenantID, reqs)
	if err != nil {
		return nil, fmt.Errorf("查询技能匹配失败: %w", err)
	}
	qualified := make(map[uuid.UUID]bool, len(matches))
	for _, m := range matches {
		if len(m.MissingSkills) == 0 {
			qualified[m.Worker.ID] = true
		}
	}
	out := candidates[:0]
	for _, w := range candidates {
		if qualified[w.ID] {
			out = append(out, w)
		}
	}
	return out, nil
}

func (a *AutoAssigner) sortByWeeklyLoad(ctx context.Context, reader store.AssignmentReader, tenantID uuid.UUID, date string, candidates []*model.Worker) error {
	ids := make([]uuid.UUID, len(candidates))
	for i, w := range candidates {
		ids[i] = w.ID
	}
	monday, sunday := model.ISOWeekBounds(date)
	counts, err := reader.CountByWorkers(ctx, tenantID, ids, model.DateRange{StartDate: monday, EndDate: sunday})
	if err != nil {
		return fmt.Errorf("统计周工作量失败: %w", err)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return counts[candidates[i].ID] < counts[candidates[j].ID]
	})
	return nil
}

// Package rolling 按 cron 为配置的租户滚动生成排班
package rolling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/internal/metrics"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/model"
	"github.com/paiban/shiftplan/pkg/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Generator 排班生成
type Generator interface {
	Generate(ctx context.Context, tenantID uuid.UUID, req scheduler.GenerateRequest) (*scheduler.GenerateResult, error)
}

// Job 滚动排班任务
//
// 每次运行只生成刚进入排班窗口的那一天（今天 + horizon），
// 窗口内更早的日期由上一轮或手动生成负责，同一天内应只运行一次。
type Job struct {
	gen     Generator
	tenants []uuid.UUID
	horizon int
	timeout time.Duration
	opts    scheduler.AssignOptions
	now     func() time.Time
	log     zerolog.Logger

	mu     sync.Mutex
	parser cron.Parser
	c      *cron.Cron
}

// NewJob 根据调度配置创建任务
func NewJob(gen Generator, cfg config.SchedulerConfig) (*Job, error) {
	tenants := make([]uuid.UUID, 0, len(cfg.RollingTenants))
	for _, raw := range cfg.RollingTenants {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("无效的滚动排班租户 %q: %w", raw, err)
		}
		tenants = append(tenants, id)
	}
	horizon := cfg.RollingHorizonDays
	if horizon <= 0 {
		horizon = 14
	}
	return &Job{
		gen:     gen,
		tenants: tenants,
		horizon: horizon,
		timeout: cfg.RollingTimeout,
		opts: scheduler.AssignOptions{
			RespectSkillRequirements: cfg.RespectSkillRequirements,
			BalanceWorkload:          cfg.BalanceWorkload,
		},
		now:    time.Now,
		log:    logger.Get().With().Str("component", "rolling").Logger(),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}, nil
}

// TargetDate 本轮要生成的日期
func (j *Job) TargetDate() string {
	return model.AddDays(model.FormatDate(j.now()), j.horizon)
}

// RunOnce 为每个租户生成目标日期，单个租户失败不影响其他租户
func (j *Job) RunOnce(ctx context.Context) error {
	date := j.TargetDate()
	var errs []error
	for _, tenantID := range j.tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.runTenant(ctx, tenantID, date); err != nil {
			j.log.Error().Err(err).Str("tenant_id", tenantID.String()).Str("date", date).Msg("滚动排班失败")
			errs = append(errs, fmt.Errorf("租户 %s: %w", tenantID, err))
		}
	}
	return errors.Join(errs...)
}

func (j *Job) runTenant(ctx context.Context, tenantID uuid.UUID, date string) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := j.gen.Generate(ctx, tenantID, scheduler.GenerateRequest{
		DateRange:     model.DateRange{StartDate: date, EndDate: date},
		AutoAssign:    true,
		AssignOptions: j.opts,
	})
	if result == nil {
		metrics.RecordScheduleGeneration(false, time.Since(start), 0, 0)
		return err
	}
	metrics.RecordScheduleGeneration(err == nil, result.Duration, result.Count(), result.Understaffed)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("date", date).
		Int("assignments", result.Count()).
		Int("understaffed", result.Understaffed).
		Msg("滚动排班完成")
	return nil
}

// Start 按 cron 表达式启动，表达式为空时不启动
func (j *Job) Start(ctx context.Context, expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := j.parser.Parse(expr); err != nil {
		return fmt.Errorf("无效的 cron 表达式 %q: %w", expr, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c != nil {
		return errors.New("滚动排班已启动")
	}
	j.c = cron.New(cron.WithParser(j.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := j.c.AddFunc(expr, func() { _ = j.RunOnce(ctx) }); err != nil {
		j.c = nil
		return err
	}
	j.c.Start()
	j.log.Info().Str("cron", expr).Int("tenants", len(j.tenants)).Int("horizon_days", j.horizon).Msg("滚动排班已启动")
	return nil
}

// Stop 停止调度并等待正在运行的任务结束
func (j *Job) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.c
	j.c = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// 排班核心服务
// 主程序入口

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paiban/shiftplan/internal/cache"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/internal/database"
	"github.com/paiban/shiftplan/internal/handler"
	"github.com/paiban/shiftplan/internal/metrics"
	"github.com/paiban/shiftplan/internal/publisher"
	"github.com/paiban/shiftplan/internal/repository"
	"github.com/paiban/shiftplan/internal/rolling"
	"github.com/paiban/shiftplan/pkg/availability"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/paiban/shiftplan/pkg/scheduler"
	"github.com/paiban/shiftplan/pkg/stats"
	"github.com/paiban/shiftplan/pkg/store"
	"github.com/paiban/shiftplan/pkg/swap"
	rules "github.com/paiban/shiftplan/pkg/validator"
	"github.com/redis/go-redis/v9"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error().Err(err).Msg("服务异常退出")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger.Init(logger.Config{
		Level:      cfg.App.LogLevel,
		Format:     cfg.App.LogFormat,
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("env", cfg.App.Env).
		Msg("排班核心服务启动中")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 数据库
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	shifts := repository.NewShiftRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	workers := repository.NewWorkerRepository(db)
	exceptions := repository.NewExceptionRepository(db)
	tx := repository.NewTransactor(db)

	// 生产日历可选 Redis 缓存
	var calendar store.CalendarStore = repository.NewCalendarRepository(db)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr()).Msg("Redis 不可用，缓存将回源数据库")
		}
		calendar = cache.NewCalendarCache(calendar, rdb, cfg.Redis.CacheTTL)
	}

	// 事件发布
	sink, closeSink, err := publisher.Open(cfg.Events)
	if err != nil {
		return err
	}
	defer closeSink()
	sink = metrics.ObserveEvents(sink)

	// 排班组件
	opts := []scheduler.Option{
		scheduler.WithLogger(logger.NewSchedulerLogger()),
		scheduler.WithSink(sink),
	}
	gate := availability.NewDirectoryGate(workers)
	generator := scheduler.NewGenerator(
		scheduler.NewShiftCatalog(shifts),
		scheduler.NewCalendarResolver(calendar, exceptions),
		scheduler.NewAutoAssigner(workers, gate),
		tx,
		opts...,
	)

	h, err := handler.NewHandler(cfg, handler.Services{
		Generator: generator,
		Patterns:  scheduler.NewPatternApplier(shifts, tx, opts...),
		Status:    scheduler.NewStatusUpdater(tx, opts...),
		Swaps:     swap.NewManager(tx, assignments, shifts, gate, swap.WithSink(sink)),
		Coverage:  stats.NewCoverageAnalyzer(shifts, assignments),
		Fairness:  stats.NewFairnessAnalyzer(shifts, assignments, cfg.Scheduler.MaxHoursPerWeek),
		Conflicts: rules.NewConflictDetector(shifts, assignments, &rules.DetectorConfig{
			MinRestHours:    cfg.Scheduler.MinRestHours,
			MaxHoursPerWeek: cfg.Scheduler.MaxHoursPerWeek,
		}),
		Health: db.Health,
	})
	if err != nil {
		return err
	}
	h.RegisterRoutes()

	// 滚动排班
	job, err := rolling.NewJob(generator, cfg.Scheduler)
	if err != nil {
		return err
	}
	if err := job.Start(ctx, cfg.Scheduler.RollingCron); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      h.Mux,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.App.Port).Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 优雅关闭
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务器启动失败: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	job.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	logger.Info().Msg("服务器已关闭")
	return nil
}

// Package logger 提供统一的日志框架
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Level 日志级别
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json/console
	Output     string `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		level := parseLevel(cfg.Level)
		zerolog.SetGlobalLevel(level)

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			if cfg.FilePath != "" {
				f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err == nil {
					output = f
				} else {
					output = os.Stdout
				}
			} else {
				output = os.Stdout
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
func Get() *zerolog.Logger {
	Init(DefaultConfig()) // 已初始化时不生效
	return &logger
}

// WithTenant 创建带租户标识的日志器
func WithTenant(tenantID string) *zerolog.Logger {
	l := Get().With().Str("tenant_id", tenantID).Logger()
	return &l
}

// WithRequestID 创建带请求ID的日志器
func WithRequestID(l *zerolog.Logger, requestID string) *zerolog.Logger {
	out := l.With().Str("request_id", requestID).Logger()
	return &out
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// WithError 添加错误信息
func WithError(err error) *zerolog.Event {
	return Get().Error().Err(err)
}

// WithField 添加字段
func WithField(key string, value interface{}) *zerolog.Logger {
	l := Get().With().Interface(key, value).Logger()
	return &l
}

// WithFields 添加多个字段
func WithFields(fields map[string]interface{}) *zerolog.Logger {
	ctx := Get().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	l := ctx.Logger()
	return &l
}

// SchedulerLogger 排班核心专用日志器
type SchedulerLogger struct {
	base *zerolog.Logger
}

// NewSchedulerLogger 创建排班核心日志器
func NewSchedulerLogger() *SchedulerLogger {
	l := Get().With().Str("component", "scheduler").Logger()
	return &SchedulerLogger{base: &l}
}

// NewSchedulerLoggerFrom 基于已有日志器创建
func NewSchedulerLoggerFrom(l zerolog.Logger) *SchedulerLogger {
	out := l.With().Str("component", "scheduler").Logger()
	return &SchedulerLogger{base: &out}
}

// NopSchedulerLogger 不输出任何内容（测试用）
func NopSchedulerLogger() *SchedulerLogger {
	l := zerolog.Nop()
	return &SchedulerLogger{base: &l}
}

// Logger 返回底层日志器
func (l *SchedulerLogger) Logger() *zerolog.Logger {
	return l.base
}

// StartGeneration 记录排班生成开始
func (l *SchedulerLogger) StartGeneration(tenantID, startDate, endDate string, shifts int, autoAssign bool) {
	l.base.Info().
		Str("tenant_id", tenantID).
		Str("start_date", startDate).
		Str("end_date", endDate).
		Int("shifts", shifts).
		Bool("auto_assign", autoAssign).
		Msg("开始生成排班")
}

// GenerationComplete 记录排班生成完成
func (l *SchedulerLogger) GenerationComplete(tenantID string, assignments int, duration time.Duration) {
	l.base.Info().
		Str("tenant_id", tenantID).
		Int("assignments", assignments).
		Dur("duration", duration).
		Msg("排班生成完成")
}

// Understaffed 记录人手不足的班次
func (l *SchedulerLogger) Understaffed(shiftCode, date string, required, assigned int) {
	l.base.Warn().
		Str("shift", shiftCode).
		Str("date", date).
		Int("required", required).
		Int("assigned", assigned).
		Msg("班次人手不足")
}

// SkippedDuplicates 记录因唯一约束被跳过的分配
func (l *SchedulerLogger) SkippedDuplicates(operation string, skipped int) {
	if skipped == 0 {
		return
	}
	l.base.Warn().
		Str("operation", operation).
		Int("skipped", skipped).
		Msg("员工当日已有排班，跳过重复分配")
}

// SwapPerformed 记录换班
func (l *SchedulerLogger) SwapPerformed(assignmentID, fromWorker, toWorker, date string) {
	l.base.Info().
		Str("assignment_id", assignmentID).
		Str("from_worker", fromWorker).
		Str("to_worker", toWorker).
		Str("date", date).
		Msg("换班完成")
}

// PatternApplied 记录轮班模式应用
func (l *SchedulerLogger) PatternApplied(pattern string, workers, assignments int) {
	l.base.Info().
		Str("pattern", pattern).
		Int("workers", workers).
		Int("assignments", assignments).
		Msg("轮班模式已应用")
}

// EventFailed 记录事件发送失败
func (l *SchedulerLogger) EventFailed(eventType string, err error) {
	l.base.Error().
		Err(err).
		Str("event", eventType).
		Msg("事件发送失败")
}

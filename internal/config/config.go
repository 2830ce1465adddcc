// Package config 提供配置管理
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv 指定 YAML 配置文件路径的环境变量
const ConfigPathEnv = "PAIBAN_CONFIG"

// Config 应用配置
type Config struct {
	App       AppConfig       `yaml:"app" envPrefix:"APP_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DB_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"EVENTS_"`
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name            string        `yaml:"name" env:"NAME"`
	Env             string        `yaml:"env" env:"ENV"`
	Port            int           `yaml:"port" env:"PORT"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"LOG_FORMAT"` // json | console
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	Name            string        `yaml:"name" env:"NAME"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	SlowQuery       time.Duration `yaml:"slow_query" env:"SLOW_QUERY"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig Redis配置，Host 为空时不启用日历缓存
type RedisConfig struct {
	Host     string        `yaml:"host" env:"HOST"`
	Port     int           `yaml:"port" env:"PORT"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	PoolSize int           `yaml:"pool_size" env:"POOL_SIZE"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// Enabled 是否配置了 Redis
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr 返回Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// 事件发布驱动
const (
	EventsDriverLog  = "log"
	EventsDriverAMQP = "amqp"
	EventsDriverNATS = "nats"
)

// EventsConfig 领域事件发布配置
type EventsConfig struct {
	Driver         string        `yaml:"driver" env:"DRIVER"`
	URL            string        `yaml:"url" env:"URL"`
	Exchange       string        `yaml:"exchange" env:"EXCHANGE"`             // amqp
	SubjectPrefix  string        `yaml:"subject_prefix" env:"SUBJECT_PREFIX"` // nats
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
}

// APIConfig API配置
type APIConfig struct {
	RateLimit    float64       `yaml:"rate_limit" env:"RATE_LIMIT"` // 每租户每秒请求数，<=0 不限流
	RateBurst    int           `yaml:"rate_burst" env:"RATE_BURST"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// SchedulerConfig 排班引擎配置
type SchedulerConfig struct {
	MinRestHours    float64 `yaml:"min_rest_hours" env:"MIN_REST_HOURS"`
	MaxHoursPerWeek float64 `yaml:"max_hours_per_week" env:"MAX_HOURS_PER_WEEK"`

	RespectSkillRequirements bool `yaml:"respect_skill_requirements" env:"RESPECT_SKILL_REQUIREMENTS"`
	BalanceWorkload          bool `yaml:"balance_workload" env:"BALANCE_WORKLOAD"`

	// 滚动排班：为 RollingTenants 按 cron 生成未来 RollingHorizonDays 天
	RollingCron        string        `yaml:"rolling_cron" env:"ROLLING_CRON"`
	RollingHorizonDays int           `yaml:"rolling_horizon_days" env:"ROLLING_HORIZON_DAYS"`
	RollingTenants     []string      `yaml:"rolling_tenants" env:"ROLLING_TENANTS" envSeparator:","`
	RollingTimeout     time.Duration `yaml:"rolling_timeout" env:"ROLLING_TIMEOUT"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "shiftplan",
			Env:             "development",
			Port:            7012,
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "paiban",
			User:            "paiban",
			Password:        "paiban123",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			SlowQuery:       100 * time.Millisecond,
		},
		Redis: RedisConfig{
			Port:     6379,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Events: EventsConfig{
			Driver:         EventsDriverLog,
			Exchange:       "shiftplan.events",
			SubjectPrefix:  "shiftplan",
			PublishTimeout: 5 * time.Second,
		},
		API: APIConfig{
			RateLimit:    100,
			RateBurst:    200,
			Timeout:      30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Scheduler: SchedulerConfig{
			MinRestHours:             8,
			MaxHoursPerWeek:          40,
			RespectSkillRequirements: true,
			BalanceWorkload:          true,
			RollingHorizonDays:       14,
			RollingTimeout:           5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load 加载配置：默认值 <- YAML 文件 <- 环境变量（含 .env）
//
// path 为空时读取 PAIBAN_CONFIG，仍为空则跳过 YAML。
func Load(path string) (*Config, error) {
	// .env 不存在不是错误
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置，返回第一个无效字段
func (c *Config) Validate() error {
	switch {
	case c.App.Port <= 0 || c.App.Port > 65535:
		return fmt.Errorf("app.port 无效: %d", c.App.Port)
	case c.Database.Host == "":
		return errors.New("database.host 不能为空")
	case c.Database.MaxOpenConns < 0:
		return fmt.Errorf("database.max_open_conns 无效: %d", c.Database.MaxOpenConns)
	case c.Scheduler.MinRestHours < 0:
		return fmt.Errorf("scheduler.min_rest_hours 无效: %v", c.Scheduler.MinRestHours)
	case c.Scheduler.MaxHoursPerWeek <= 0:
		return fmt.Errorf("scheduler.max_hours_per_week 无效: %v", c.Scheduler.MaxHoursPerWeek)
	case c.Scheduler.RollingCron != "" && c.Scheduler.RollingHorizonDays <= 0:
		return fmt.Errorf("scheduler.rolling_horizon_days 无效: %d", c.Scheduler.RollingHorizonDays)
	}

	switch c.Events.Driver {
	case EventsDriverLog:
	case EventsDriverAMQP, EventsDriverNATS:
		if c.Events.URL == "" {
			return fmt.Errorf("events.url 不能为空 (driver=%s)", c.Events.Driver)
		}
	default:
		return fmt.Errorf("events.driver 无效: %s", c.Events.Driver)
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

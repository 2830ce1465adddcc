// Package metrics 提供Prometheus监控指标
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/paiban/shiftplan/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 进程内指标注册表
var Registry = prometheus.NewRegistry()

var (
	factory = promauto.With(Registry)

	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplan_http_requests_total",
		Help: "HTTP请求总数",
	}, []string{"method", "route", "status"})

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiftplan_http_request_duration_seconds",
		Help:    "HTTP请求延迟",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "route"})

	generations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplan_schedule_generation_total",
		Help: "排班生成次数",
	}, []string{"status"})

	generationDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "shiftplan_schedule_generation_duration_seconds",
		Help:    "排班生成耗时",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	assignmentsCreated = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplan_assignments_created_total",
		Help: "创建的排班分配数",
	}, []string{"source"})

	understaffed = factory.NewCounter(prometheus.CounterOpts{
		Name: "shiftplan_understaffed_slots_total",
		Help: "自动分配后仍人手不足的 班次×日期 数",
	})

	swaps = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplan_swaps_total",
		Help: "换班请求数",
	}, []string{"result"})

	conflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplan_conflicts_detected_total",
		Help: "检测到的排班冲突数",
	}, []string{"type"})

	coverageRate = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shiftplan_coverage_rate",
		Help: "最近一次查询的整体覆盖率(%)",
	}, []string{"tenant"})

	fairnessGini = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shiftplan_fairness_gini",
		Help: "最近一次查询的基尼系数",
	}, []string{"tenant", "metric"})

	eventsPublished = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplan_events_published_total",
		Help: "领域事件发布数",
	}, []string{"type", "result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRequestMetrics 记录请求指标，route 使用路由模板避免标签爆炸
func RecordRequestMetrics(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordScheduleGeneration 记录排班生成指标
func RecordScheduleGeneration(success bool, duration time.Duration, created, understaffedSlots int) {
	status := "success"
	if !success {
		status = "failure"
	}
	generations.WithLabelValues(status).Inc()
	generationDuration.Observe(duration.Seconds())
	assignmentsCreated.WithLabelValues("generate").Add(float64(created))
	understaffed.Add(float64(understaffedSlots))
}

// RecordPatternApplied 记录轮班模式创建的分配
func RecordPatternApplied(created int) {
	assignmentsCreated.WithLabelValues("pattern").Add(float64(created))
}

// RecordSwap 记录换班结果
func RecordSwap(success bool) {
	if success {
		swaps.WithLabelValues("success").Inc()
		assignmentsCreated.WithLabelValues("swap").Inc()
		return
	}
	swaps.WithLabelValues("rejected").Inc()
}

// RecordConflict 记录冲突
func RecordConflict(conflictType string) {
	conflicts.WithLabelValues(conflictType).Inc()
}

// SetCoverageRate 设置覆盖率
func SetCoverageRate(tenantID string, rate float64) {
	coverageRate.WithLabelValues(tenantID).Set(rate)
}

// SetFairnessGini 设置公平性基尼系数
func SetFairnessGini(tenantID, metric string, gini float64) {
	fairnessGini.WithLabelValues(tenantID, metric).Set(gini)
}

// ObserveEvents 包装事件接收端，统计发布结果
func ObserveEvents(next events.Sink) events.Sink {
	return events.SinkFunc(func(ctx context.Context, event events.Event) error {
		err := next.Publish(ctx, event)
		result := "ok"
		if err != nil {
			result = "error"
		}
		eventsPublished.WithLabelValues(string(event.Type), result).Inc()
		return err
	})
}

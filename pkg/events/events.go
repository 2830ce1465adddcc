// Package events 定义排班核心对外发布的事件
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/pkg/logger"
	"github.com/rs/zerolog"
)

// Type 事件类型
type Type string

const (
	ScheduleGenerated       Type = "schedule.generated"
	ShiftSwapped            Type = "shift.swapped"
	PatternApplied          Type = "pattern.applied"
	AssignmentStatusUpdated Type = "assignment.status.updated"
)

// Event 事件
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      Type                   `json:"type"`
	TenantID  uuid.UUID              `json:"tenant_id"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// New 创建事件
func New(t Type, tenantID uuid.UUID, at time.Time, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		TenantID:  tenantID,
		Timestamp: at,
		Payload:   payload,
	}
}

// Marshal 序列化为 JSON
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink 事件接收端，由调用方在构造组件时注入
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc 函数适配器
type SinkFunc func(ctx context.Context, event Event) error

// Publish 实现 Sink
func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Emit 发布事件，失败只记录日志，不影响已提交的操作
func Emit(ctx context.Context, sink Sink, log *logger.SchedulerLogger, event Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, event); err != nil && log != nil {
		log.EventFailed(string(event.Type), err)
	}
}

// NopSink 丢弃所有事件
type NopSink struct{}

// Publish 实现 Sink
func (NopSink) Publish(context.Context, Event) error { return nil }

// LogSink 将事件写入日志
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink 创建日志事件接收端
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l.With().Str("component", "events").Logger()}
}

// Publish 实现 Sink
func (s *LogSink) Publish(_ context.Context, event Event) error {
	s.log.Info().
		Str("event", string(event.Type)).
		Str("tenant_id", event.TenantID.String()).
		Interface("payload", event.Payload).
		Msg("发布事件")
	return nil
}

// MultiSink 依次发布到多个接收端，返回第一个错误
type MultiSink []Sink

// Publish 实现 Sink
func (m MultiSink) Publish(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MemorySink 在内存中记录事件
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink 创建内存事件接收端
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish 实现 Sink
func (m *MemorySink) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events 返回已记录事件的副本
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType 返回某类型的事件
func (m *MemorySink) OfType(t Type) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Package publisher 将领域事件发布到消息中间件（RabbitMQ / NATS）
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel 用到的 amqp 通道方法
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink 发布到 topic 交换机，路由键为事件类型
type AMQPSink struct {
	ch       AMQPChannel
	exchange string
	timeout  time.Duration
}

// NewAMQPSink 创建 AMQP 事件发布器
func NewAMQPSink(ch AMQPChannel, exchange string, timeout time.Duration) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange, timeout: timeout}
}

// Publish 实现 events.Sink
func (s *AMQPSink) Publish(ctx context.Context, event events.Event) error {
	body, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.ch.PublishWithContext(ctx, s.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		Headers:      amqp.Table{"tenant_id": event.TenantID.String()},
		Body:         body,
	})
}

// NATSConn 用到的 nats 连接方法
type NATSConn interface {
	Publish(subject string, data []byte) error
}

// NATSSink 发布到 <prefix>.<tenant>.<事件类型>
type NATSSink struct {
	nc     NATSConn
	prefix string
}

// NewNATSSink 创建 NATS 事件发布器
func NewNATSSink(nc NATSConn, prefix string) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix}
}

// Publish 实现 events.Sink
func (s *NATSSink) Publish(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return s.nc.Publish(Subject(s.prefix, event), body)
}

// Subject 返回事件的 NATS 主题
func Subject(prefix string, event events.Event) string {
	subject := fmt.Sprintf("%s.%s", event.TenantID, event.Type)
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

// Open 按配置创建事件发布器，返回的 close 用于释放连接
//
// log 驱动不需要外部连接，事件写入日志。
func Open(cfg config.EventsConfig) (events.Sink, func(), error) {
	logSink := events.NewLogSink(*logger.Get())
	switch cfg.Driver {
	case config.EventsDriverAMQP:
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("无法连接到 rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("无法建立通道: %w", err)
		}
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("无法声明交换机: %w", err)
		}
		closeFn := func() {
			ch.Close()
			conn.Close()
		}
		return events.MultiSink{logSink, NewAMQPSink(ch, cfg.Exchange, cfg.PublishTimeout)}, closeFn, nil

	case config.EventsDriverNATS:
		nc, err := nats.Connect(cfg.URL,
			nats.Name("shiftplan"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("无法连接到 nats: %w", err)
		}
		closeFn := func() {
			if err := nc.Drain(); err != nil {
				nc.Close()
			}
		}
		return events.MultiSink{logSink, NewNATSSink(nc, cfg.SubjectPrefix)}, closeFn, nil

	default:
		return logSink, func() {}, nil
	}
}

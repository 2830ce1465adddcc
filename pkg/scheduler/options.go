package scheduler

import (
	"time"

	"github.com/paiban/shiftplan/pkg/events"
	"github.com/paiban/shiftplan/pkg/logger"
)

// Option 组件选项
type Option func(*options)

type options struct {
	log  *logger.SchedulerLogger
	sink events.Sink
	now  func() time.Time
}

func buildOptions(opts []Option) options {
	o := options{
		log:  logger.NewSchedulerLogger(),
		sink: events.NopSink{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger 设置日志
func WithLogger(l *logger.SchedulerLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSink 设置事件接收端
func WithSink(s events.Sink) Option {
	return func(o *options) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/pkg/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
	deadline bool
}

type fakeChannel struct {
	published []recordedPublish
	err       error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	_, ok := ctx.Deadline()
	f.published = append(f.published, recordedPublish{exchange: exchange, key: key, msg: msg, deadline: ok})
	return f.err
}

type fakeNATS struct {
	subjects []string
	data     [][]byte
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func sampleEvent() events.Event {
	return events.New(events.ShiftSwapped, uuid.New(), time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC),
		map[string]interface{}{"date": "2025-03-03"})
}

func TestAMQPSink_Publish(t *testing.T) {
	ch := &fakeChannel{}
	sink := NewAMQPSink(ch, "shiftplan.events", time.Second)
	ev := sampleEvent()

	require.NoError(t, sink.Publish(context.Background(), ev))
	require.Len(t, ch.published, 1)

	p := ch.published[0]
	assert.Equal(t, "shiftplan.events", p.exchange)
	assert.Equal(t, "shift.swapped", p.key)
	assert.True(t, p.deadline)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, ev.ID.String(), p.msg.MessageId)
	assert.Equal(t, ev.TenantID.String(), p.msg.Headers["tenant_id"])

	var decoded events.Event
	require.NoError(t, json.Unmarshal(p.msg.Body, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, "2025-03-03", decoded.Payload["date"])
}

func TestAMQPSink_Error(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	err := NewAMQPSink(ch, "x", 0).Publish(context.Background(), sampleEvent())
	assert.Error(t, err)
	assert.False(t, ch.published[0].deadline)
}

func TestNATSSink_Publish(t *testing.T) {
	nc := &fakeNATS{}
	ev := sampleEvent()

	require.NoError(t, NewNATSSink(nc, "shiftplan").Publish(context.Background(), ev))
	require.Len(t, nc.subjects, 1)
	assert.Equal(t, "shiftplan."+ev.TenantID.String()+".shift.swapped", nc.subjects[0])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewNATSSink(nc, "").Publish(ctx, ev))
	assert.Len(t, nc.subjects, 1)
}

func TestSubject(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, ev.TenantID.String()+".shift.swapped", Subject("", ev))
}

func TestOpen_LogDriver(t *testing.T) {
	sink, closeFn, err := Open(config.EventsConfig{Driver: config.EventsDriverLog})
	require.NoError(t, err)
	defer closeFn()
	assert.NoError(t, sink.Publish(context.Background(), sampleEvent()))
}

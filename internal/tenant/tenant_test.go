package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	got, ok := FromContext(WithID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	l := NewLimiter(1, 2)
	l.now = func() time.Time { return now }

	a, b := uuid.New(), uuid.New()
	assert.True(t, l.Allow(a))
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a), "突发额度用完")
	assert.True(t, l.Allow(b), "其他租户不受影响")

	now = now.Add(time.Second)
	assert.True(t, l.Allow(a), "按速率补充令牌")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	id := uuid.New()
	for i := 0; i < 1000; i++ {
		if !l.Allow(id) {
			t.Fatalf("第 %d 次请求被限流", i)
		}
	}
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	l := NewLimiter(10, 10)
	l.now = func() time.Time { return now }

	l.Allow(uuid.New())
	l.Allow(uuid.New())
	assert.Equal(t, 2, l.Len())

	now = now.Add(DefaultIdleTTL + time.Second)
	active := uuid.New()
	l.Allow(active)
	assert.Equal(t, 1, l.Len())
}

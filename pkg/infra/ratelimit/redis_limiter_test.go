package ratelimit_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/EdgeWard/WardGate/pkg/infra/breaker"
	"github.com/EdgeWard/WardGate/pkg/infra/ratelimit"
)

const (
	testKey      = "ward:burst:1.2.3.4"
	testWindowMs = int64(1000)
	testMax      = int64(3)
)

var fixedUUID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func newTestBreaker() breaker.CircuitBreaker {
	return breaker.NewCircuitBreaker("ratelimit-test", time.Minute, 100)
}

func expectCount(mock redismock.ClientMock, key string, nowMs, windowMs, card int64, oldest []redis.Z) {
	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore(key, "0", "("+strconv.FormatInt(nowMs-windowMs, 10)).SetVal(0)
	mock.ExpectZCard(key).SetVal(card)
	mock.ExpectZRangeWithScores(key, 0, 0).SetVal(oldest)
	mock.ExpectTxPipelineExec()
}

func expectRecord(mock redismock.ClientMock, key string, nowMs, windowMs int64) {
	mock.ExpectTxPipeline()
	mock.ExpectZAdd(key, &redis.Z{
		Score:  float64(nowMs),
		Member: fmt.Sprintf("%d:%s", nowMs, fixedUUID.String()),
	}).SetVal(1)
	mock.ExpectExpire(key, time.Duration((windowMs+999)/1000)*time.Second).SetVal(true)
	mock.ExpectTxPipelineExec()
}

func oldestAt(ms int64) []redis.Z {
	return []redis.Z{{Score: float64(ms), Member: "member"}}
}

func TestRedisLimiter_AllowsFirstEvent(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	nowMs := int64(1740730536000)

	expectCount(mock, testKey, nowMs, testWindowMs, 0, nil)
	expectRecord(mock, testKey, nowMs, testWindowMs)

	limiter := ratelimit.NewRedisLimiter(redisMock, newTestBreaker(), logrus.New(), 2*time.Second, &ratelimit.LimiterOpts{
		TimeProvider: func() time.Time { return time.UnixMilli(nowMs) },
		UuidProvider: func() uuid.UUID { return fixedUUID },
	})

	res, err := limiter.Check(context.Background(), testKey, testWindowMs, testMax)

	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.Remaining)
	assert.Equal(t, testWindowMs, res.ResetInMs)
	assert.Equal(t, int64(0), res.CurrentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_DeniesWhenWindowFull(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	nowMs := int64(1740730536000)
	oldestMs := nowMs - 300

	// No record pipeline is expected: the full window must not be extended.
	expectCount(mock, testKey, nowMs, testWindowMs, 3, oldestAt(oldestMs))

	limiter := ratelimit.NewRedisLimiter(redisMock, newTestBreaker(), logrus.New(), 2*time.Second, &ratelimit.LimiterOpts{
		TimeProvider: func() time.Time { return time.UnixMilli(nowMs) },
		UuidProvider: func() uuid.UUID { return fixedUUID },
	})

	res, err := limiter.Check(context.Background(), testKey, testWindowMs, testMax)

	assert.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, int64(3), res.CurrentCount)
	assert.Equal(t, int64(700), res.ResetInMs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Burst window end to end: three events fill a 1s/3 window, the fourth is
// denied without being recorded, and once the first event ages out the next
// call passes again.
func TestRedisLimiter_BurstWindowRoundTrip(t *testing.T) {
	redisMock, mock := redismock.NewClientMock()
	base := int64(1740730536000)
	current := base

	steps := []struct {
		offsetMs  int64
		card      int64
		oldest    []redis.Z
		allowed   bool
		remaining int64
		count     int64
	}{
		{0, 0, nil, true, 2, 0},
		{100, 1, oldestAt(base), true, 1, 1},
		{200, 2, oldestAt(base), true, 0, 2},
		{300, 3, oldestAt(base), false, 0, 3},
		// The denied call at 300ms left no event behind, so only {100, 200}
		// survive once the event at 0ms ages out.
		{1050, 2, oldestAt(base + 100), true, 0, 2},
		{1350, 1, oldestAt(base + 1050), true, 1, 1},
	}

	for _, s := range steps {
		expectCount(mock, testKey, base+s.offsetMs, testWindowMs, s.card, s.oldest)
		if s.allowed {
			expectRecord(mock, testKey, base+s.offsetMs, testWindowMs)
		}
	}

	limiter := ratelimit.NewRedisLimiter(redisMock, newTestBreaker(), logrus.New(), 2*time.Second, &ratelimit.LimiterOpts{
		TimeProvider: func() time.Time { return time.UnixMilli(current) },
		UuidProvider: func() uuid.UUID { return fixedUUID },
	})

	for i, s := range steps {
		current = base + s.offsetMs
		res, err := limiter.Check(context.Background(), testKey, testWindowMs, testMax)

		assert.NoError(t, err, "step %d", i)
		assert.Equal(t, s.allowed, res.Allowed, "step %d allowed", i)
		assert.Equal(t, s.remaining, res.Remaining, "step %d remaining", i)
		assert.Equal(t, s.count, res.CurrentCount, "step %d count", i)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_FailsOpenWhenStoreUnreachable(t *testing.T) {
	// No expectations registered: every pipeline command errors out.
	redisMock, _ := redismock.NewClientMock()

	limiter := ratelimit.NewRedisLimiter(redisMock, newTestBreaker(), logrus.New(), 2*time.Second, &ratelimit.LimiterOpts{
		UuidProvider: func() uuid.UUID { return fixedUUID },
	})

	res, err := limiter.Check(context.Background(), testKey, testWindowMs, testMax)

	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(0), res.CurrentCount)
}

func TestRedisLimiter_InvalidInput(t *testing.T) {
	redisMock, _ := redismock.NewClientMock()
	limiter := ratelimit.NewRedisLimiter(redisMock, newTestBreaker(), logrus.New(), 2*time.Second, nil)

	_, err := limiter.Check(context.Background(), "", testWindowMs, testMax)
	assert.Error(t, err)

	_, err = limiter.Check(context.Background(), testKey, 0, testMax)
	assert.Error(t, err)

	_, err = limiter.Check(context.Background(), testKey, testWindowMs, 0)
	assert.Error(t, err)
}

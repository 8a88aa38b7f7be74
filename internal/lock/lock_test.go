package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLockerContract(t *testing.T, l Locker, key string) {
	t.Helper()
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok, "first acquire should succeed")

	_, ok, err = l.TryAcquire(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire should fail while held")

	otherRelease, ok, err := l.TryAcquire(ctx, key+"-other")
	require.NoError(t, err)
	assert.True(t, ok, "different keys are independent")
	otherRelease()

	release()
	release() // idempotent

	again, ok, err := l.TryAcquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "acquire after release should succeed")
	again()
}

func TestMemory_Contract(t *testing.T) {
	m := NewMemory()
	runLockerContract(t, m, "vs_000000000001")
	assert.Equal(t, 0, m.Len(), "entries should be removed when unreferenced")
}

func TestMemory_ConcurrentSingleWinner(t *testing.T) {
	const n = 20
	m := NewMemory()
	start := make(chan struct{})
	var winners atomic.Int32
	var tried, wg sync.WaitGroup
	tried.Add(n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, ok, _ := m.TryAcquire(context.Background(), "k")
			tried.Done()
			if ok {
				winners.Add(1)
				tried.Wait()
				release()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 0, m.Len())
}

func TestRedis_Contract(t *testing.T) {
	addr := os.Getenv("VISTA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VISTA_TEST_REDIS_ADDR not set")
	}
	client, err := DialRedis(context.Background(), addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	key := "test-" + time.Now().Format("150405.000000")
	runLockerContract(t, NewRedis(client, "vista:lock:", time.Minute), key)
}

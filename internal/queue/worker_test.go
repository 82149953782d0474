// -----------------------------------------------------------------------
// Worker Pool tests - polling, dispatch and acknowledgement
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/veridoc/rescribo/internal/interfaces"
)

func TestWorkerPool_RequiresHandler(t *testing.T) {
	db := newTestDB(t)
	mgr, err := NewManager(db, "jobs", time.Minute, 3)
	require.NoError(t, err)

	pool := NewWorkerPool(mgr, 1, 20*time.Millisecond, arbor.NewLogger())
	assert.Error(t, pool.Start())
}

func TestWorkerPool_ProcessesAndAcksMessages(t *testing.T) {
	db := newTestDB(t)
	mgr, err := NewManager(db, "jobs", time.Minute, 3)
	require.NoError(t, err)
	ctx := context.Background()

	var mu sync.Mutex
	var handled []string
	done := make(chan struct{}, 2)

	pool := NewWorkerPool(mgr, 2, 20*time.Millisecond, arbor.NewLogger())
	pool.SetHandler(func(ctx context.Context, msg *interfaces.JobMessage) error {
		mu.Lock()
		handled = append(handled, msg.JobID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	require.NoError(t, mgr.Enqueue(ctx, &interfaces.JobMessage{JobID: "job_a"}))
	require.NoError(t, mgr.Enqueue(ctx, &interfaces.JobMessage{JobID: "job_b"}))

	require.NoError(t, pool.Start())
	defer pool.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for workers to process messages")
		}
	}

	// successful handling acks the messages
	assert.Eventually(t, func() bool {
		depth, err := mgr.Depth()
		return err == nil && depth == 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []string{"job_a", "job_b"}, handled)
	mu.Unlock()
}

func TestWorkerPool_FailedHandlerLeavesMessageForRedelivery(t *testing.T) {
	db := newTestDB(t)
	mgr, err := NewManager(db, "jobs", 100*time.Millisecond, 5)
	require.NoError(t, err)
	ctx := context.Background()

	var mu sync.Mutex
	attempts := 0

	pool := NewWorkerPool(mgr, 1, 20*time.Millisecond, arbor.NewLogger())
	pool.SetHandler(func(ctx context.Context, msg *interfaces.JobMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	require.NoError(t, mgr.Enqueue(ctx, &interfaces.JobMessage{JobID: "job_retry"}))

	require.NoError(t, pool.Start())
	defer pool.Stop()

	// the first attempt fails, the message reappears after the visibility
	// timeout and succeeds on redelivery
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		depth, err := mgr.Depth()
		return err == nil && depth == 0
	}, 2*time.Second, 20*time.Millisecond)
}

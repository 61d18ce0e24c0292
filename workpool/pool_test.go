package workpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		workers  int
		capacity int
		wantErr  bool
	}{
		{"valid", 2, 8, false},
		{"zero workers", 0, 8, true},
		{"capacity below workers", 4, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.workers, tt.capacity)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.workers, p.Workers())
		})
	}
}

func TestSubmitRunsAllTasks(t *testing.T) {
	p, err := New(4, 64)
	require.NoError(t, err)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(DefaultPriority, func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(50), count.Load())
}

func TestSubmitRejectsNilAndClosed(t *testing.T) {
	p, err := New(1, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Submit(0, nil), ErrNilTask)

	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit(0, func() {}), ErrPoolClosed)
}

func TestSubmitBoundedCapacity(t *testing.T) {
	p, err := New(1, 2)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(0, func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(0, func() {}))

	assert.ErrorIs(t, p.Submit(0, func() {}), ErrPoolFull)

	close(release)
	p.Close()
}

func TestPriorityOrdering(t *testing.T) {
	p, err := New(1, 16)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(0, func() {
		close(started)
		<-release
	}))
	<-started

	var mu sync.Mutex
	var order []int
	record := func(v int) func() {
		return func() {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
		}
	}
	require.NoError(t, p.Submit(1, record(1)))
	require.NoError(t, p.Submit(10, record(10)))
	require.NoError(t, p.Submit(5, record(5)))
	require.NoError(t, p.Submit(10, record(11)))
	assert.Equal(t, 4, p.Pending())

	close(release)
	p.Close()

	assert.Equal(t, []int{10, 11, 5, 1}, order)
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p, err := New(1, 4)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(0, func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(0, func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

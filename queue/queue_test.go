package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		q, err := New[int](capacity)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
		assert.Nil(t, q)
	}
}

func TestBoundedFIFOOrder(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)

	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.True(t, q.Push(3))
	assert.False(t, q.Push(4), "push beyond capacity must fail")
	assert.Equal(t, 3, q.Len())

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, head)

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok = q.TryPop()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestBoundedWrapAround(t *testing.T) {
	q, err := New[int](2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, q.Push(i))
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 2, q.Cap())
}

func TestBoundedPopIf(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)
	q.Push(5)
	q.Push(7)

	_, ok := q.PopIf(func(v int) bool { return v > 5 })
	assert.False(t, ok, "head does not satisfy predicate")
	assert.Equal(t, 2, q.Len())

	v, ok := q.PopIf(func(v int) bool { return v == 5 })
	assert.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, q.Len())
}

func TestBoundedClear(t *testing.T) {
	q, err := New[string](4)
	require.NoError(t, err)
	q.Push("a")
	q.Push("b")
	q.TryPop()
	q.Push("c")

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Push("d"))
	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "d", v)
}

func TestBoundedConcurrentProducers(t *testing.T) {
	q, err := New[int](1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(base*100 + i)
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
	seen := make(map[int]bool)
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		seen[v] = true
	}
	assert.Len(t, seen, 1000)
}

package bufferpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidSizes(t *testing.T) {
	_, err := New(1<<20, 100) // below MinBufferSize
	require.Error(t, err)

	_, err = New(1<<20, 5<<30) // above ceiling
	require.Error(t, err)

	_, err = New(100, 1<<20) // total smaller than single buffer
	require.Error(t, err)
}

func TestAcquireAllocatesWithinBudget(t *testing.T) {
	p, err := New(1<<20, 64<<10)
	require.NoError(t, err)

	b := p.Acquire(32 << 10)
	require.NotNil(t, b)
	assert.LessOrEqual(t, b.Cap(), int64(64<<10))
	assert.Equal(t, len(b.Bytes()), int(b.Cap()))
	assert.Equal(t, b.Cap(), p.CurrentBytes())
}

func TestReleaseIsReusedByNearestFit(t *testing.T) {
	p, err := New(10<<20, 1<<20)
	require.NoError(t, err)

	b1 := p.Acquire(1 << 20)
	size1 := b1.Cap()
	p.Release(b1)

	before := p.CurrentBytes()
	b2 := p.Acquire(1 << 20)
	assert.Equal(t, size1, b2.Cap())
	// reusing a pooled buffer must not grow the budget counter
	assert.Equal(t, before, p.CurrentBytes())
}

func TestReleaseDropsOversizeBuffer(t *testing.T) {
	p, err := New(10<<20, 1<<20)
	require.NoError(t, err)

	oversized := &Buffer{data: make([]byte, 2<<20)}
	p.currentTotal = oversized.Cap() // simulate it having been budgeted in
	p.Release(oversized)

	assert.Equal(t, int64(0), p.CurrentBytes())
	assert.Empty(t, p.sizes)
}

func TestAcquireBlocksUntilBudgetFreed(t *testing.T) {
	p, err := New(1<<20, 1<<20)
	require.NoError(t, err)

	held := p.Acquire(1 << 20) // exhausts the whole budget

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan *Buffer, 1)
	go func() {
		defer wg.Done()
		acquired <- p.Acquire(1 << 20)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should have blocked while budget was exhausted")
	case <-time.After(50 * time.Millisecond):
		// expected: still blocked
	}

	p.Release(held)
	wg.Wait()

	select {
	case b := <-acquired:
		require.NotNil(t, b)
	case <-time.After(time.Second):
		t.Fatal("acquire never unblocked after release")
	}
}

func TestBufferPoolBudgetInvariant(t *testing.T) {
	p, err := New(4<<20, 256<<10)
	require.NoError(t, err)

	var bufs []*Buffer
	for i := 0; i < 10; i++ {
		bufs = append(bufs, p.Acquire(100<<10))
	}
	for _, b := range bufs {
		p.Release(b)
	}

	p.mu.Lock()
	var pooled int64
	for size, bucket := range p.bySize {
		pooled += size * int64(len(bucket))
	}
	total := p.currentTotal
	p.mu.Unlock()

	assert.Equal(t, total, pooled, "sum of pooled capacities must equal current_total_bytes once all buffers are returned")
	assert.LessOrEqual(t, total, int64(4<<20))
}

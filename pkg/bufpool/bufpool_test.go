package bufpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu        sync.Mutex
	written   []*Buffer
	failTable int32
}

func (w *fakeWriter) WriteBack(_ context.Context, b *Buffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, b)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func newTestPool(t *testing.T, capacity int) (*Pool, *fakeWriter) {
	t.Helper()
	w := &fakeWriter{}
	p := NewPool(capacity, w)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() {
		p.Stop()
		cancel()
	})
	return p, w
}

func TestAddToFreeSlotFillsEmptySlots(t *testing.T) {
	p, _ := newTestPool(t, 2)

	assert.True(t, p.AddToFreeSlot(NewDataBuffer(1, 0, []byte("a"), false)))
	assert.False(t, p.IsFull())
	assert.True(t, p.AddToFreeSlot(NewDataBuffer(1, 1, []byte("b"), false)))
	assert.True(t, p.IsFull())
	assert.False(t, p.AddToFreeSlot(NewDataBuffer(1, 2, []byte("c"), false)))
}

func TestPickVictimPrefersLowestUseCount(t *testing.T) {
	p, w := newTestPool(t, 2)

	low := NewDataBuffer(1, 0, []byte("low"), false)
	low.UseCount = 1
	high := NewDataBuffer(1, 1, []byte("high"), false)
	high.UseCount = 5

	require.True(t, p.AddToFreeSlot(low))
	require.True(t, p.AddToFreeSlot(high))

	p.CacheHint(NewDataBuffer(1, 2, []byte("new"), false))
	require.True(t, p.waitForIdle(time.Second))

	snap := p.Snapshot()
	found := false
	for _, s := range snap {
		if s != nil && s.BlockNumber == 2 {
			found = true
		}
		assert.NotEqual(t, int32(0), s.BlockNumber, "low use-count victim should have been replaced")
	}
	assert.True(t, found)
	assert.Equal(t, 0, w.count(), "victim was clean, no write-back expected")
}

func TestPickVictimTieBreaksTowardClean(t *testing.T) {
	p, w := newTestPool(t, 2)

	dirty := NewDataBuffer(1, 0, []byte("dirty"), true)
	dirty.UseCount = 3
	clean := NewDataBuffer(1, 1, []byte("clean"), false)
	clean.UseCount = 3

	require.True(t, p.AddToFreeSlot(dirty))
	require.True(t, p.AddToFreeSlot(clean))

	p.CacheHint(NewDataBuffer(1, 2, []byte("new"), false))
	require.True(t, p.waitForIdle(time.Second))

	snap := p.Snapshot()
	var survivors []int32
	for _, s := range snap {
		require.NotNil(t, s)
		survivors = append(survivors, s.BlockNumber)
	}
	assert.Contains(t, survivors, int32(0), "dirty buffer at equal count must survive over clean")
	assert.Equal(t, 0, w.count(), "evicting the clean buffer must not trigger a write-back")
}

func TestPickVictimAllEqualEvictsLeftmost(t *testing.T) {
	p, _ := newTestPool(t, 3)

	for i := int32(0); i < 3; i++ {
		b := NewDataBuffer(1, i, []byte{byte(i)}, true)
		b.UseCount = 7
		require.True(t, p.AddToFreeSlot(b))
	}

	p.CacheHint(NewDataBuffer(1, 99, []byte("new"), false))
	require.True(t, p.waitForIdle(time.Second))

	snap := p.Snapshot()
	assert.Equal(t, int32(99), snap[0].BlockNumber, "leftmost slot (index 0) must be the one replaced")
}

func TestCacheHintConcurrentAdmissionsNoLoss(t *testing.T) {
	p, _ := newTestPool(t, 20)

	var wg sync.WaitGroup
	for g := int32(0); g < 5; g++ {
		wg.Add(1)
		go func(g int32) {
			defer wg.Done()
			for i := int32(0); i < 10; i++ {
				p.CacheHint(NewDataBuffer(g, i, []byte{byte(i)}, false))
			}
		}(g)
	}
	wg.Wait()
	require.True(t, p.waitForIdle(2*time.Second))

	snap := p.Snapshot()
	assert.Len(t, snap, 20)
	for _, s := range snap {
		assert.NotNil(t, s, "every slot must be occupied, no slot left nil or double-freed")
	}
}

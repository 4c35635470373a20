package workers

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWorker(t *testing.T) {
	work := make(chan *WorkRequest)
	StartWorker(work)
	var wg sync.WaitGroup
	var n int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		work <- &WorkRequest{Work: func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		}}
	}
	wg.Wait()
	close(work)
	assert.Equal(t, int64(10), n)
}

func TestPool(t *testing.T) {
	p := NewPool(4)
	defer p.Close()
	require.Equal(t, 4, p.Size())

	results := make([]int, 100)
	for i := range results {
		i := i
		p.Submit(func() {
			results[i] = i * i
		})
	}
	p.Wait()
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
}

func TestPoolDefaultSize(t *testing.T) {
	p := NewPool(0)
	assert.Greater(t, p.Size(), 0)
	p.Close()
	// second close is a no-op
	p.Close()
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(1)
	p.Close()
	assert.Panics(t, func() { p.Submit(func() {}) })
}

package workers

import (
	"runtime"
	"sync"

	. "github.com/stevegt/goadapt"
)

// WorkRequest is a struct that contains the work to be done
type WorkRequest struct {
	Work func()
}

// StartWorker starts a worker. The work channel is used to send work
// to the worker.  The worker will quit when the work channel is
// closed.
func StartWorker(work chan *WorkRequest) {
	go func() {
		for {
			workRequest, ok := <-work
			if !ok {
				// Channel closed
				return
			}
			workRequest.Work()
		}
	}()
}

// Pool is a fixed set of workers reading from one work channel.
type Pool struct {
	work   chan *WorkRequest
	wg     sync.WaitGroup
	size   int
	closed bool
	lock   sync.Mutex
}

// NewPool starts size workers.  A size of 0 or less starts one worker
// per CPU.
func NewPool(size int) (p *Pool) {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p = &Pool{
		work: make(chan *WorkRequest, size*2),
		size: size,
	}
	for i := 0; i < size; i++ {
		StartWorker(p.work)
	}
	return
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues fn to run on the next free worker.  It blocks while
// the queue is full.
func (p *Pool) Submit(fn func()) {
	p.lock.Lock()
	defer p.lock.Unlock()
	Assert(!p.closed, "submit on closed pool")
	p.wg.Add(1)
	p.work <- &WorkRequest{Work: func() {
		defer p.wg.Done()
		fn()
	}}
}

// Wait blocks until every submitted function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close waits for queued work and stops the workers.
func (p *Pool) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.wg.Wait()
	close(p.work)
}

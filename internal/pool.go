package internal

import "sync"

// WorkerPool runs queued functions on N goroutines. With N=1 functions run one at a time
// in the order they were queued.
type WorkerPool struct {
	N  int
	ch chan func()
	wg *sync.WaitGroup
}

// Create a new worker pool of size N. Queue blocks once N functions are running and N
// more are waiting, which applies backpressure to whoever is producing work.
func NewWorkerPool(n int) *WorkerPool {
	return &WorkerPool{
		N:  n,
		ch: make(chan func(), n),
		wg: &sync.WaitGroup{},
	}
}

// Start the workers. Only call this once.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.N; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop the worker pool and wait for queued work to finish. Only call this once, and never
// call Queue afterwards.
func (wp *WorkerPool) Stop() {
	close(wp.ch)
	wp.wg.Wait()
}

// Queue some work on the pool. May or may not block until some work is processed.
func (wp *WorkerPool) Queue(fn func()) {
	wp.ch <- fn
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for fn := range wp.ch {
		fn()
	}
}

package sim

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum particle count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 256

// chunkFunc processes particles [i0, i1) and returns a count to be summed
// across chunks (overflow, contacts), or 0.
type chunkFunc func(i0, i1 int) int

// workChunk represents a range of particles for a worker to process.
type workChunk struct {
	start, end int
	fn         chunkFunc
}

// workerPool runs one pass at a time across persistent workers. run returns
// only after every chunk is done, which is the barrier between passes.
type workerPool struct {
	numWorkers int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan int       // workers report chunk results
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &workerPool{numWorkers: numWorkers}
}

// start launches persistent worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan int, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *workerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.doneChan <- chunk.fn(chunk.start, chunk.end)
		}
	}
}

// run applies fn over [0, n) and returns the sum of the chunk results.
func (p *workerPool) run(n int, fn chunkFunc) int {
	if n == 0 {
		return 0
	}
	if n < parallelThreshold || p.numWorkers == 1 {
		return fn(0, n)
	}

	// Ensure workers are running
	if !p.running {
		p.start()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	// Dispatch chunks to workers
	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		p.workChan <- workChunk{start: start, end: end, fn: fn}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	total := 0
	for i := 0; i < chunksDispatched; i++ {
		total += <-p.doneChan
	}
	return total
}

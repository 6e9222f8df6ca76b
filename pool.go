package dashmask

import (
	"sync"

	"gocv.io/x/gocv"
)

// MatPool is a simple pool of Mats reused by the capture loop so the hardware
// rate producer does not allocate a new frame buffer for every read
type MatPool struct {
	// pool of idle Mats
	mats chan gocv.Mat
	// size of pool
	size   int
	mu     sync.Mutex
	closed bool
}

// NewMatPool creates a pool keeping at most size idle Mats
func NewMatPool(size int) *MatPool {

	if size < 1 {
		size = 1
	}

	return &MatPool{
		mats: make(chan gocv.Mat, size),
		size: size,
	}
}

// Get a Mat from the pool, allocating a new one if the pool is empty
func (p *MatPool) Get() gocv.Mat {

	select {
	case m := <-p.mats:
		return m
	default:
		return gocv.NewMat()
	}
}

// Put returns a Mat to the pool.  The Mat is closed if the pool is full or
// closed
func (p *MatPool) Put(m gocv.Mat) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		m.Close()
		return
	}

	select {
	case p.mats <- m:
	default:
		// pool is full
		m.Close()
	}
}

// Idle returns the number of Mats waiting in the pool
func (p *MatPool) Idle() int {
	return len(p.mats)
}

// Close the pool and all idle Mats in it
func (p *MatPool) Close() {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	for {
		select {
		case m := <-p.mats:
			m.Close()
		default:
			return
		}
	}
}

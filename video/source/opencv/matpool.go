package opencv

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultMaxMats is the number of outstanding Mats above which a pool warns
// about a likely leak.
const DefaultMaxMats = 500

// MatPool recycles Mats so captures do not allocate a new C buffer per frame.
// Mats still outstanding when the pool is closed are freed when released.
type MatPool struct {
	new   chan chan gocv.Mat
	free  chan gocv.Mat
	close chan bool
	done  chan struct{}
	once  sync.Once

	max       int
	allocated atomic.Int32
	available []gocv.Mat
}

func NewMatPool(max int) *MatPool {
	if max <= 0 {
		max = DefaultMaxMats
	}
	p := &MatPool{
		new:   make(chan chan gocv.Mat),
		free:  make(chan gocv.Mat),
		close: make(chan bool),
		done:  make(chan struct{}),
		max:   max,
	}
	go p.run()
	return p
}

func (p *MatPool) run() {
	defer close(p.done)
	closed := false
	warned := false
	for !closed || p.allocated.Load() > 0 {
		select {
		case <-p.close:
			closed = true
			for _, m := range p.available {
				m.Close()
				p.allocated.Add(-1)
			}
			p.available = nil
		case m := <-p.free:
			if closed {
				m.Close()
				p.allocated.Add(-1)
			} else {
				p.available = append(p.available, m)
			}
		case r := <-p.new:
			var m gocv.Mat
			if len(p.available) > 0 {
				m, p.available = p.available[0], p.available[1:]
			} else {
				m = gocv.NewMat()
				n := p.allocated.Add(1)
				if int(n) > p.max && !warned {
					log.Warnf("MatPool holds %d Mats. Perhaps a frame isn't being released?", n)
					warned = true
				}
			}
			r <- m
		}
	}
}

// NewMat returns a Mat from the pool, allocating one if none is free.
func (p *MatPool) NewMat() gocv.Mat {
	r := make(chan gocv.Mat)
	select {
	case p.new <- r:
		return <-r
	case <-p.done:
		return gocv.NewMat()
	}
}

// ReleaseMat hands m back to the pool.
func (p *MatPool) ReleaseMat(m gocv.Mat) {
	select {
	case p.free <- m:
	case <-p.done:
		m.Close()
	}
}

// Allocated is the number of Mats owned by the pool, free or not.
func (p *MatPool) Allocated() int {
	return int(p.allocated.Load())
}

// Close frees the idle Mats. It is safe to call more than once.
func (p *MatPool) Close() {
	p.once.Do(func() {
		select {
		case p.close <- true:
		case <-p.done:
		}
	})
}

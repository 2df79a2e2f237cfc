package acquisition

import "sync"

// queue is an unbounded producer to consumer channel. The producer never blocks; samples pile up
// in memory until the consumer drains them.
type queue struct {
	mx       sync.Mutex
	cond     *sync.Cond
	items    []Sample
	closed   bool
	detached bool
	gone     chan struct{}
	out      chan Sample
}

func newQueue() *queue {
	q := &queue{
		gone: make(chan struct{}),
		out:  make(chan Sample),
	}
	q.cond = sync.NewCond(&q.mx)
	go q.forward()
	return q
}

// push appends samples and reports false once the consumer has detached.
func (q *queue) push(samples ...Sample) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.detached {
		return false
	}
	q.items = append(q.items, samples...)
	q.cond.Signal()
	return true
}

// close marks the end of production; buffered samples are still delivered.
func (q *queue) close() {
	q.mx.Lock()
	defer q.mx.Unlock()
	q.closed = true
	q.cond.Signal()
}

// detach disconnects the consumer and drops anything buffered.
func (q *queue) detach() {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.detached {
		return
	}
	q.detached = true
	q.items = nil
	close(q.gone)
	q.cond.Signal()
}

func (q *queue) isDetached() bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.detached
}

// pending returns the number of samples not yet handed to the consumer.
func (q *queue) pending() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.items)
}

func (q *queue) forward() {
	defer close(q.out)
	for {
		q.mx.Lock()
		for len(q.items) == 0 && !q.closed && !q.detached {
			q.cond.Wait()
		}
		if q.detached || (len(q.items) == 0 && q.closed) {
			q.mx.Unlock()
			return
		}
		batch := q.items
		q.items = nil
		q.mx.Unlock()
		for _, s := range batch {
			select {
			case q.out <- s:
			case <-q.gone:
				return
			}
		}
	}
}

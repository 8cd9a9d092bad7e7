package bot

import "sync"

// threadDispatcher runs queued work one item at a time per thread, in
// submission order, while distinct threads drain concurrently. The bot
// submits from the single event loop, so per-thread submission order is
// arrival order. Because the work includes posting the reply, replies within
// a thread are delivered in the order the messages arrived.
type threadDispatcher struct {
	mu      sync.Mutex
	pending map[string][]func()
	active  map[string]bool
}

func newThreadDispatcher() *threadDispatcher {
	return &threadDispatcher{
		pending: make(map[string][]func()),
		active:  make(map[string]bool),
	}
}

// Dispatch queues work for the thread and starts a drain worker if none is
// running. It never blocks on the work itself.
func (d *threadDispatcher) Dispatch(threadID string, work func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[threadID] = append(d.pending[threadID], work)
	if !d.active[threadID] {
		d.active[threadID] = true
		go d.drain(threadID)
	}
}

func (d *threadDispatcher) drain(threadID string) {
	for {
		d.mu.Lock()
		queue := d.pending[threadID]
		if len(queue) == 0 {
			delete(d.pending, threadID)
			delete(d.active, threadID)
			d.mu.Unlock()
			return
		}
		work := queue[0]
		d.pending[threadID] = queue[1:]
		d.mu.Unlock()

		work()
	}
}

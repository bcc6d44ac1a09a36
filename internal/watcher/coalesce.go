package watcher

import (
	"sync"
	"time"
)

// coalescer gathers events until the directory has been quiet for delay,
// then hands them over in one batch. Repeated events for a path collapse
// into the latest one, kept at the position the path first appeared.
type coalescer struct {
	delay time.Duration
	emit  func([]Event)

	mu     sync.Mutex
	timer  *time.Timer
	order  []string
	latest map[string]Event
}

func newCoalescer(delay time.Duration, emit func([]Event)) *coalescer {
	return &coalescer{
		delay:  delay,
		emit:   emit,
		latest: make(map[string]Event),
	}
}

func (c *coalescer) add(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.latest[event.Path]; !seen {
		c.order = append(c.order, event.Path)
	}
	c.latest[event.Path] = event

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.fire)
}

// take empties the pending set and returns it in order.
func (c *coalescer) take() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	events := make([]Event, 0, len(c.order))
	for _, path := range c.order {
		events = append(events, c.latest[path])
	}
	c.order = nil
	c.latest = make(map[string]Event)
	return events
}

func (c *coalescer) fire() {
	if events := c.take(); len(events) > 0 {
		c.emit(events)
	}
}

// stop drops whatever is pending.
func (c *coalescer) stop() {
	_ = c.take()
}

func (c *coalescer) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

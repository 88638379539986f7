package session

import (
	"strings"
	"sync"
	"time"
)

const (
	// flushCount flushes as soon as this many utterances are pending.
	flushCount = 3
	// flushAge flushes a smaller batch once the newest utterance is this old.
	flushAge = 4 * time.Second
	// pollInterval drives the flush check.
	pollInterval = 100 * time.Millisecond
)

// Coalescer batches recognized utterances into edit instructions. Speech
// arrives faster than rewrites complete, so fragments accumulate until
// either enough of them are pending or the speaker has paused, then flush
// as one concatenated instruction.
//
// Flushes run synchronously on the poll goroutine: at most one instruction
// is in flight, and utterances that arrive during a rewrite accumulate for
// the next batch.
type Coalescer struct {
	deliver func(text string)
	now     func() time.Time

	mu       sync.Mutex
	pending  []Utterance
	lastPush time.Time
	inFlight bool

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

func NewCoalescer(deliver func(text string)) *Coalescer {
	return &Coalescer{
		deliver: deliver,
		now:     time.Now,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// Push queues one utterance. Blank or whitespace-only text is dropped
// before it enters the buffer.
func (c *Coalescer) Push(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.pending = append(c.pending, Utterance{Text: text, ReceivedAt: now})
	c.lastPush = now
}

// Run polls until Stop. Call from its own goroutine.
func (c *Coalescer) Run() {
	defer close(c.exited)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.maybeFlush()
		}
	}
}

// Stop ends polling and blocks until the poll loop has exited, including
// any delivery it is in the middle of. After Stop returns no further
// flush can run, so callers may read the orchestrator's history safely.
// Requires Run to have been started.
func (c *Coalescer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.exited
}

// maybeFlush delivers the pending batch when the count or age threshold is
// met. No-op while a previous delivery is still running.
func (c *Coalescer) maybeFlush() {
	c.mu.Lock()
	if c.inFlight || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	if len(c.pending) < flushCount && c.now().Sub(c.lastPush) < flushAge {
		c.mu.Unlock()
		return
	}

	var b strings.Builder
	for _, u := range c.pending {
		b.WriteString(u.Text)
	}
	c.pending = nil
	c.inFlight = true
	c.mu.Unlock()

	c.deliver(b.String())

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// Pending reports the number of buffered utterances.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

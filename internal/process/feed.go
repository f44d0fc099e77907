package process

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind than this applies backpressure to the writer, which is
// preferable to silently losing lifecycle lines.
const subscriberBuffer = 64

type subscriber struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

func (s *subscriber) cancel() {
	s.once.Do(func() { close(s.done) })
}

// LineFeed is an io.Writer that splits its input into lines and broadcasts
// every line to all current subscribers. Subscribers do not compete for lines:
// each one receives its own copy. Lines written while nobody is subscribed are
// only kept in the recent-lines ring, so the writing process never blocks on
// an unread pipe.
type LineFeed struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	partial []byte
	recent  []string
	max     int
	closed  bool
}

// NewLineFeed creates a feed remembering up to maxRecent lines.
func NewLineFeed(maxRecent int) *LineFeed {
	return &LineFeed{
		subs: make(map[int]*subscriber),
		max:  maxRecent,
	}
}

// Subscribe registers a listener. The returned channel yields every line
// written after this call and is closed when the stream ends. Calling cancel
// stops delivery; the channel is then left open and must no longer be read.
// Subscribing to an already closed feed returns a closed channel.
func (f *LineFeed) Subscribe() (<-chan string, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &subscriber{
		ch:   make(chan string, subscriberBuffer),
		done: make(chan struct{}),
	}
	if f.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	return sub.ch, func() {
		sub.cancel()
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Write implements io.Writer.
func (f *LineFeed) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	f.partial = append(f.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(string(f.partial[:i]), "\r"))
		f.partial = f.partial[i+1:]
	}
	f.remember(lines)
	subs := f.snapshot()
	f.mu.Unlock()

	deliver(subs, lines)
	return len(p), nil
}

// Close flushes an unterminated final line and closes every subscriber
// channel. It must not be called concurrently with Write.
func (f *LineFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	var lines []string
	if len(f.partial) > 0 {
		lines = append(lines, strings.TrimRight(string(f.partial), "\r"))
		f.partial = nil
	}
	f.remember(lines)
	subs := f.snapshot()
	f.mu.Unlock()

	deliver(subs, lines)

	f.mu.Lock()
	f.closed = true
	for id, sub := range f.subs {
		close(sub.ch)
		delete(f.subs, id)
	}
	f.mu.Unlock()
	return nil
}

// Recent returns a copy of the most recent lines, oldest first.
func (f *LineFeed) Recent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.recent))
	copy(out, f.recent)
	return out
}

func (f *LineFeed) remember(lines []string) {
	if f.max <= 0 {
		return
	}
	f.recent = append(f.recent, lines...)
	if len(f.recent) > f.max {
		f.recent = f.recent[len(f.recent)-f.max:]
	}
}

func (f *LineFeed) snapshot() []*subscriber {
	out := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out
}

func deliver(subs []*subscriber, lines []string) {
	for _, line := range lines {
		for _, s := range subs {
			select {
			case s.ch <- line:
			case <-s.done:
			}
		}
	}
}

var _ io.WriteCloser = (*LineFeed)(nil)

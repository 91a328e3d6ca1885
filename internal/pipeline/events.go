package pipeline

import (
	"sync"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// Event is one sequenced job transition.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"jobId"`
	Surface   domain.Surface `json:"surface"`
	Phase     domain.Phase   `json:"phase"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Locator   string         `json:"locator,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type subscription struct {
	jobID string
	ch    chan Event
}

// EventBus sequences job events and fans them out to subscribers. The
// last few events are retained so a late subscriber can catch up.
type EventBus struct {
	mu      sync.Mutex
	seq     int64
	dropped int64
	keep    int
	history []Event
	subs    map[int]*subscription
	nextSub int
}

// NewEventBus creates a bus retaining up to keep events (500 if keep <= 0).
func NewEventBus(keep int) *EventBus {
	if keep <= 0 {
		keep = 500
	}
	return &EventBus{keep: keep, subs: make(map[int]*subscription)}
}

// Publish stamps e with the next sequence number and delivers it. A
// subscriber whose buffer is full misses the event; the job never waits
// on a slow reader.
func (b *EventBus) Publish(e Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e.Seq = b.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.history = append(b.history, e)
	if over := len(b.history) - b.keep; over > 0 {
		n := copy(b.history, b.history[over:])
		b.history = b.history[:n]
	}

	for _, s := range b.subs {
		if s.jobID != "" && s.jobID != e.JobID {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped++
		}
	}
	return e
}

// Subscribe streams events for jobID ("" for every job) with a sequence
// above after. Retained events are replayed first. The returned func
// unsubscribes and closes the channel.
func (b *EventBus) Subscribe(jobID string, after int64, buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	backlog := b.matching(jobID, after)
	if buffer < 1 {
		buffer = 1
	}
	s := &subscription{jobID: jobID, ch: make(chan Event, buffer+len(backlog))}
	for _, e := range backlog {
		s.ch <- e
	}

	id := b.nextSub
	b.nextSub++
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(s.ch)
		})
	}
}

// Dropped counts deliveries missed because a subscriber was full.
func (b *EventBus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// History returns the retained events for jobID ("" for all) with a
// sequence above after.
func (b *EventBus) History(jobID string, after int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.matching(jobID, after)
}

func (b *EventBus) matching(jobID string, after int64) []Event {
	var out []Event
	for _, e := range b.history {
		if e.Seq > after && (jobID == "" || e.JobID == jobID) {
			out = append(out, e)
		}
	}
	return out
}

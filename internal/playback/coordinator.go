// Package playback keeps at most one audio surface playing at a time.
package playback

import (
	"fmt"
	"sync"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// The two surfaces every feature page offers.
const (
	Original  domain.Surface = "original"
	Processed domain.Surface = "processed"
)

// EventKind is a playback notification from a sink.
type EventKind int

const (
	Ended EventKind = iota
	Failed
)

// Event reports that a surface stopped on its own.
type Event struct {
	Surface domain.Surface
	Kind    EventKind
	Err     error
}

// State is what is playing. Active is empty when nothing is.
type State struct {
	Playing bool
	Active  domain.Surface
}

// Coordinator owns the play/pause state across surfaces.
type Coordinator struct {
	log *logger.Logger

	mu    sync.Mutex
	sinks map[domain.Surface]domain.PlaybackSink
	state State
}

// New creates a coordinator with no surfaces attached.
func New(log *logger.Logger) *Coordinator {
	return &Coordinator{
		log:   log.Named("playback"),
		sinks: make(map[domain.Surface]domain.PlaybackSink),
	}
}

// Attach registers (or replaces) the sink behind a surface. Replacing the
// active surface's sink pauses the old one first.
func (c *Coordinator) Attach(s domain.Surface, sink domain.PlaybackSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sinks[s]; ok && c.state.Active == s {
		if err := old.Pause(); err != nil {
			c.log.Warn("pausing replaced %s sink: %v", s, err)
		}
		c.state = State{}
	}
	c.sinks[s] = sink
}

// Toggle pauses s if it is the active surface. Otherwise it stops
// whatever else is playing and starts s.
func (c *Coordinator) Toggle(s domain.Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sink, ok := c.sinks[s]
	if !ok {
		return fmt.Errorf("surface %q: %w", s, domain.ErrNotFound)
	}

	if c.state.Playing && c.state.Active == s {
		c.state = State{}
		if err := sink.Pause(); err != nil {
			return fmt.Errorf("pause %s: %w", s, err)
		}
		c.log.Debug("paused %s", s)
		return nil
	}

	if c.state.Playing {
		other := c.state.Active
		if err := c.sinks[other].Pause(); err != nil {
			return fmt.Errorf("stop %s before playing %s: %w", other, s, err)
		}
		c.state = State{}
		c.log.Debug("stopped %s", other)
	}

	if err := sink.Play(); err != nil {
		return fmt.Errorf("play %s: %w", s, err)
	}
	c.state = State{Playing: true, Active: s}
	c.log.Debug("playing %s", s)
	return nil
}

// HandleEvent resets the state when the active surface ends or fails.
// Events for other surfaces are ignored.
func (c *Coordinator) HandleEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Active != e.Surface {
		return
	}
	if e.Kind == Failed {
		c.log.Warn("%s playback failed: %v", e.Surface, e.Err)
	}
	c.state = State{}
}

// StopAll pauses the active surface, if any.
func (c *Coordinator) StopAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Playing {
		return nil
	}
	active := c.state.Active
	c.state = State{}
	return c.sinks[active].Pause()
}

// State returns the current play state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

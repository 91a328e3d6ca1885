// Package capture owns the microphone for the length of one recording
// session and turns what it hears into a WAV artifact.
//
// Status flow:
//
//	Idle -> Acquiring -> Recording -> Stopping -> Idle
//
// Any stage can fall into Error, which is reported and then left for
// Idle straight away. Only one session exists per Controller.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
	"github.com/hammamikhairi/vocalx/internal/meter"
)

// Status is the controller's recording state.
type Status int

const (
	StatusIdle Status = iota
	StatusAcquiring
	StatusRecording
	StatusStopping
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAcquiring:
		return "acquiring"
	case StatusRecording:
		return "recording"
	case StatusStopping:
		return "stopping"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("capture: controller closed")

var errStreamEnded = errors.New("stream ended unexpectedly")

// Session is a read-only snapshot of the current capture session.
type Session struct {
	Status         Status
	StartedAt      time.Time
	ElapsedSeconds int
	LevelSamples   []float64
	// Err is the last device error; cleared by the next Start.
	Err error
}

// EventKind says what changed.
type EventKind int

const (
	EventStatus EventKind = iota
	EventTick
	EventLevels
	EventArtifact
	EventError
)

// Event is delivered to the sink registered with WithEventSink.
type Event struct {
	Kind     EventKind
	Status   Status
	Elapsed  int
	Levels   []float64
	Artifact *domain.Artifact
	Err      error
}

// Option configures a Controller.
type Option func(*Controller)

// WithMeterOptions passes options to the per-session level meter.
func WithMeterOptions(opts ...meter.Option) Option {
	return func(c *Controller) {
		c.meterOpts = append(c.meterOpts, opts...)
	}
}

// WithClockInterval sets how often ElapsedSeconds advances. One second
// unless overridden in tests.
func WithClockInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.clockInterval = d
		}
	}
}

// WithTempDir sets where WAV assembly writes its scratch file.
func WithTempDir(dir string) Option {
	return func(c *Controller) {
		c.tempDir = dir
	}
}

// WithEventSink registers a callback for status, tick, level, artifact
// and error events. Called outside the controller lock.
func WithEventSink(fn func(Event)) Option {
	return func(c *Controller) {
		c.sink = fn
	}
}

// Controller runs capture sessions against one device.
type Controller struct {
	device        domain.CaptureDevice
	log           *logger.Logger
	meterOpts     []meter.Option
	clockInterval time.Duration
	tempDir       string
	sink          func(Event)
	artifacts     chan *domain.Artifact

	mu        sync.Mutex
	status    Status
	closed    bool
	attempt   uint64
	abandon   context.CancelFunc
	startedAt time.Time
	elapsed   int
	lastErr   error
	levels    []float64

	stream  domain.Stream
	meter   *meter.Meter
	samples []int16
	format  domain.AudioFormat
	cancel  context.CancelFunc
	drained chan struct{}
}

// New creates an idle controller.
func New(device domain.CaptureDevice, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		device:        device,
		log:           log.Named("capture"),
		clockInterval: time.Second,
		artifacts:     make(chan *domain.Artifact, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Artifacts delivers every finished recording exactly once.
func (c *Controller) Artifacts() <-chan *domain.Artifact { return c.artifacts }

// Start acquires the device and begins recording. It blocks while the
// device is being acquired. Cancelling ctx (or calling Abandon) during
// acquisition returns the controller to Idle; a stream granted after that
// point is closed as soon as it arrives. ctx does not bound the
// recording itself, which runs until Stop or Close.
func (c *Controller) Start(ctx context.Context, constraints domain.CaptureConstraints) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusIdle {
		st := c.status
		c.mu.Unlock()
		c.log.Debug("start rejected while %s", st)
		return domain.ErrAlreadyActive
	}
	c.attempt++
	attempt := c.attempt
	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.abandon = cancel
	c.status = StatusAcquiring
	c.lastErr = nil
	c.mu.Unlock()
	c.emit(Event{Kind: EventStatus, Status: StatusAcquiring})

	type acquired struct {
		stream domain.Stream
		err    error
	}
	resCh := make(chan acquired, 1)
	go func() {
		s, err := c.device.Acquire(acqCtx, constraints)
		resCh <- acquired{s, err}
	}()

	var res acquired
	select {
	case res = <-resCh:
	case <-acqCtx.Done():
		// The device may still grant access later; release whatever arrives.
		go func() {
			if late := <-resCh; late.stream != nil {
				c.log.Debug("closing stream granted after abandonment")
				_ = late.stream.Close()
			}
		}()
		c.resetAbandoned(attempt)
		return acqCtx.Err()
	}

	if res.err != nil {
		if acqCtx.Err() != nil && errors.Is(res.err, acqCtx.Err()) {
			c.resetAbandoned(attempt)
			return res.err
		}
		derr := asDeviceError("acquire", res.err)
		c.fail(attempt, derr)
		return derr
	}

	c.mu.Lock()
	if c.closed || c.attempt != attempt || c.status != StatusAcquiring {
		closed := c.closed
		if closed && c.attempt == attempt && c.status == StatusAcquiring {
			c.status = StatusIdle
			c.abandon = nil
		}
		c.mu.Unlock()
		_ = res.stream.Close()
		if closed {
			c.log.Debug("closing stream granted after Close")
			return ErrClosed
		}
		return context.Canceled
	}
	c.beginLocked(ctx, res.stream)
	c.mu.Unlock()

	c.log.Info("recording started (%d Hz, %d ch)", c.format.SampleRate, c.format.Channels)
	c.emit(Event{Kind: EventStatus, Status: StatusRecording})
	return nil
}

// beginLocked wires the stream into the meter, clock and sample buffer.
func (c *Controller) beginLocked(parent context.Context, s domain.Stream) {
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(parent))

	c.stream = s
	c.format = s.Format()
	c.samples = c.samples[:0]
	c.startedAt = time.Now()
	c.elapsed = 0
	c.cancel = cancel
	c.drained = make(chan struct{})
	c.status = StatusRecording

	opts := append([]meter.Option{meter.WithOnLevels(c.onLevels)}, c.meterOpts...)
	c.meter = meter.New(c.log.Named("meter"), opts...)
	c.levels = c.meter.Levels()
	c.meter.Start(sessCtx)

	go c.drain(s, c.meter, c.drained)
	go c.clock(sessCtx)
}

// Abandon discards a pending acquisition. No-op in other states.
func (c *Controller) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusAcquiring && c.abandon != nil {
		c.abandon()
	}
}

func (c *Controller) resetAbandoned(attempt uint64) {
	c.mu.Lock()
	if c.attempt != attempt || c.status != StatusAcquiring {
		c.mu.Unlock()
		return
	}
	c.status = StatusIdle
	c.abandon = nil
	c.mu.Unlock()
	c.log.Debug("acquisition abandoned")
	c.emit(Event{Kind: EventStatus, Status: StatusIdle})
}

func (c *Controller) drain(s domain.Stream, m *meter.Meter, done chan struct{}) {
	for chunk := range s.Chunks() {
		c.mu.Lock()
		if c.status == StatusRecording {
			c.samples = append(c.samples, chunk...)
		}
		channels := c.format.Channels
		c.mu.Unlock()
		m.Write(downmix(chunk, channels))
	}
	close(done)

	c.mu.Lock()
	unexpected := c.status == StatusRecording && c.stream == s
	attempt := c.attempt
	c.mu.Unlock()
	if unexpected {
		c.fail(attempt, &domain.DeviceError{Op: "read", Err: errStreamEnded})
	}
}

// downmix averages interleaved frames into one channel for the meter.
func downmix(chunk []int16, channels int) []int16 {
	if channels <= 1 {
		return chunk
	}
	out := make([]int16, len(chunk)/channels)
	for i := range out {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(chunk[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

func (c *Controller) clock(ctx context.Context) {
	ticker := time.NewTicker(c.clockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.status != StatusRecording {
				c.mu.Unlock()
				return
			}
			c.elapsed++
			n := c.elapsed
			c.mu.Unlock()
			c.emit(Event{Kind: EventTick, Status: StatusRecording, Elapsed: n})
		}
	}
}

func (c *Controller) onLevels(levels []float64) {
	c.mu.Lock()
	if c.status != StatusRecording {
		c.mu.Unlock()
		return
	}
	c.levels = levels
	c.mu.Unlock()
	c.emit(Event{Kind: EventLevels, Status: StatusRecording, Levels: levels})
}

// Stop finishes the recording and returns the artifact. Calling it in any
// state other than Recording does nothing and returns (nil, nil).
func (c *Controller) Stop() (*domain.Artifact, error) {
	c.mu.Lock()
	if c.status != StatusRecording {
		c.mu.Unlock()
		return nil, nil
	}
	c.status = StatusStopping
	attempt := c.attempt
	c.mu.Unlock()
	c.emit(Event{Kind: EventStatus, Status: StatusStopping})

	c.release()

	c.mu.Lock()
	samples := c.samples
	format := c.format
	elapsed := c.elapsed
	c.samples = nil
	c.mu.Unlock()

	data, err := EncodeWAV(c.tempDir, samples, format)
	if err != nil {
		c.fail(attempt, &domain.DeviceError{Op: "finalize", Err: err})
		return nil, err
	}
	name := domain.ArtifactFilename("recording", "wav", time.Now())
	art := domain.NewArtifact(data, "audio/wav", name, domain.SourceRecorded)

	c.mu.Lock()
	c.status = StatusIdle
	if !c.closed {
		select {
		case c.artifacts <- art:
		default:
			c.log.Warn("artifact channel full, %s only returned from Stop", name)
		}
	}
	c.mu.Unlock()

	c.log.Info("recording stopped after %ds: %s", elapsed, art)
	c.emit(Event{Kind: EventArtifact, Status: StatusIdle, Artifact: art})
	c.emit(Event{Kind: EventStatus, Status: StatusIdle})
	return art, nil
}

// release stops the clock, closes the stream, waits for the reader to
// finish and stops the meter. Safe to call when nothing is held.
func (c *Controller) release() {
	c.mu.Lock()
	stream, m, cancel, drained := c.stream, c.meter, c.cancel, c.drained
	c.stream, c.meter, c.cancel, c.drained = nil, nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.log.Warn("closing stream: %v", err)
		}
	}
	if drained != nil {
		<-drained
	}
	if m != nil {
		m.Stop()
	}

	c.mu.Lock()
	c.levels = make([]float64, len(c.levels))
	c.mu.Unlock()
}

// fail surfaces err, releases everything and returns to Idle.
func (c *Controller) fail(attempt uint64, err error) {
	c.mu.Lock()
	if c.attempt != attempt || c.status == StatusIdle {
		c.mu.Unlock()
		return
	}
	c.status = StatusError
	c.lastErr = err
	c.mu.Unlock()

	c.log.Error("%v", err)
	c.emit(Event{Kind: EventError, Status: StatusError, Err: err})

	c.release()

	c.mu.Lock()
	c.samples = nil
	c.status = StatusIdle
	c.mu.Unlock()
	c.emit(Event{Kind: EventStatus, Status: StatusIdle})
}

// Close tears the controller down from any state. A recording in
// progress is discarded without producing an artifact.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.status == StatusAcquiring && c.abandon != nil {
		c.abandon()
	}
	wasRecording := c.status == StatusRecording || c.status == StatusStopping
	c.mu.Unlock()

	if wasRecording {
		c.mu.Lock()
		c.status = StatusStopping
		c.mu.Unlock()
		c.release()
		c.mu.Lock()
		c.samples = nil
		c.status = StatusIdle
		c.mu.Unlock()
		c.log.Info("recording discarded on close")
	}
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	levels := make([]float64, len(c.levels))
	copy(levels, c.levels)
	return Session{
		Status:         c.status,
		StartedAt:      c.startedAt,
		ElapsedSeconds: c.elapsed,
		LevelSamples:   levels,
		Err:            c.lastErr,
	}
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the last device error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) emit(e Event) {
	if c.sink != nil {
		c.sink(e)
	}
}

func asDeviceError(op string, err error) error {
	var de *domain.DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &domain.DeviceError{Op: op, Err: err}
}

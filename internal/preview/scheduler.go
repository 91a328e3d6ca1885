// Package preview coalesces bursts of effect edits into a bounded stream
// of remote preview calls.
//
// Every edit gets the next generation number and re-arms a debounce timer.
// When the timer fires, the latest parameters are dispatched unless a call
// is already in flight, in which case they are parked as pending and sent
// as soon as that call returns. Only the result for the newest generation
// is ever applied; anything older is dropped without complaint.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"golang.org/x/time/rate"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// Request is one scheduled preview.
type Request struct {
	Generation  uint64
	Params      domain.EffectParameters
	PreviewOnly bool
}

// DispatchFunc performs the remote preview call.
type DispatchFunc func(ctx context.Context, req Request) (*domain.Artifact, error)

// Stats counts what the scheduler did.
type Stats struct {
	Issued     uint64 // generations handed out by Edit
	Dispatched uint64 // calls actually made
	Applied    uint64
	Discarded  uint64 // stale or suppressed results
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithQuantum sets the quiet period an edit burst must be followed by.
func WithQuantum(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.quantum = d
		}
	}
}

// WithMinSpacing sets the minimum time between two dispatches. Zero
// disables the ceiling.
func WithMinSpacing(d time.Duration) Option {
	return func(s *Scheduler) {
		s.spacing = d
	}
}

// WithOnApply registers the callback that receives fresh results.
func WithOnApply(fn func(Request, *domain.Artifact)) Option {
	return func(s *Scheduler) {
		s.onApply = fn
	}
}

// WithOnError registers the callback for failures of the newest
// generation. Failures of superseded requests are not reported.
func WithOnError(fn func(Request, error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithPreviewOnly marks dispatched requests as short previews (true, the
// default) or full renders.
func WithPreviewOnly(on bool) Option {
	return func(s *Scheduler) {
		s.previewOnly = on
	}
}

// WithContext sets the context passed to dispatches. It is only
// cancelled on process shutdown.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		s.ctx = ctx
	}
}

// Scheduler issues at most one preview call at a time.
type Scheduler struct {
	dispatch DispatchFunc
	log      *logger.Logger
	quantum  time.Duration
	spacing  time.Duration
	onApply  func(Request, *domain.Artifact)
	onError  func(Request, error)
	ctx      context.Context
	debounce func(func())
	limiter  *rate.Limiter

	mu          sync.Mutex
	params      domain.EffectParameters
	previewOnly bool
	issued      uint64
	applied     uint64
	inFlight    bool
	pending     *Request
	enabled     bool
	closed      bool
	last        *domain.Artifact
	stats       Stats
}

// New creates an enabled scheduler. Defaults: 1s quantum, 250ms spacing.
func New(dispatch DispatchFunc, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatch:    dispatch,
		log:         log.Named("preview"),
		quantum:     time.Second,
		spacing:     250 * time.Millisecond,
		ctx:         context.Background(),
		enabled:     true,
		previewOnly: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debounce = debounce.New(s.quantum)
	if s.spacing > 0 {
		s.limiter = rate.NewLimiter(rate.Every(s.spacing), 1)
	}
	return s
}

// Edit records new parameters and re-arms the debounce timer. It returns
// the generation assigned to the edit.
func (s *Scheduler) Edit(p domain.EffectParameters) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.issued++
	s.stats.Issued++
	s.params = p
	gen := s.issued
	s.mu.Unlock()

	s.debounce(s.fire)
	return gen
}

// SetEnabled turns previews on or off. Turning them off keeps a call in
// flight running but its result, and any pending dispatch, is dropped.
func (s *Scheduler) SetEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == on {
		return
	}
	s.enabled = on
	if !on {
		s.pending = nil
	}
	s.log.Debug("enabled=%v", on)
}

// Enabled reports whether results are being applied.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Close disarms the timer and suppresses every later result. Safe to
// call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.mu.Unlock()

	// Replacing the armed callback with a no-op is how the debouncer is
	// disarmed.
	s.debounce(func() {})
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Latest returns the most recently applied preview and its generation.
func (s *Scheduler) Latest() (*domain.Artifact, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.applied
}

// InFlight reports whether a call is outstanding.
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// fire runs when an edit burst goes quiet.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed || !s.enabled {
		s.mu.Unlock()
		return
	}
	req := Request{Generation: s.issued, Params: s.params, PreviewOnly: s.previewOnly}
	if s.inFlight {
		s.pending = &req
		s.mu.Unlock()
		s.log.Debug("gen %d pending behind in-flight call", req.Generation)
		return
	}
	s.inFlight = true
	s.stats.Dispatched++
	s.mu.Unlock()

	go s.run(req)
}

func (s *Scheduler) run(req Request) {
	var (
		art *domain.Artifact
		err error
	)
	if s.limiter != nil {
		err = s.limiter.Wait(s.ctx)
	}
	if err == nil {
		s.log.Debug("dispatching gen %d", req.Generation)
		art, err = s.dispatch(s.ctx, req)
	}
	s.complete(req, art, err)
}

// complete applies or discards a result and sends any pending request.
func (s *Scheduler) complete(req Request, art *domain.Artifact, err error) {
	s.mu.Lock()
	s.inFlight = false

	fresh := s.enabled && !s.closed && req.Generation == s.issued && req.Generation > s.applied
	apply := fresh && err == nil
	report := fresh && err != nil
	if apply {
		s.applied = req.Generation
		s.last = art
		s.stats.Applied++
	} else if !report {
		s.stats.Discarded++
	}

	var next *Request
	if s.pending != nil && s.pending.Generation > req.Generation && s.enabled && !s.closed {
		next = s.pending
		s.inFlight = true
		s.stats.Dispatched++
	}
	s.pending = nil
	latest := s.issued
	s.mu.Unlock()

	switch {
	case apply:
		if s.onApply != nil {
			s.onApply(req, art)
		}
	case report:
		s.log.Warn("preview gen %d failed: %v", req.Generation, err)
		if s.onError != nil {
			s.onError(req, err)
		}
	default:
		s.log.Debug("dropped gen %d (latest %d): %v", req.Generation, latest, domain.ErrStaleResult)
	}

	if next != nil {
		go s.run(*next)
	}
}

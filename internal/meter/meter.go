// Package meter turns a live PCM stream into a fixed-length sequence of
// normalised intensities for a level display.
//
// Samples are pushed with Write at whatever cadence the capture device
// delivers them. A separate ticker reads the most recent analysis window,
// runs an FFT over it and reduces the magnitude spectrum to either a single
// average or N buckets. The output slice never grows: each tick overwrites
// it in place.
package meter

import (
	"context"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"

	"github.com/hammamikhairi/vocalx/internal/logger"
)

// Mode selects how the spectrum is reduced.
type Mode int

const (
	// ModeBuckets downsamples the spectrum to N bar heights.
	ModeBuckets Mode = iota
	// ModeAverage reduces the spectrum to one scalar.
	ModeAverage
)

// Decibel range mapped onto [0,1]. Matches the usual analyser defaults.
const (
	minDecibels = -100.0
	maxDecibels = -30.0
)

// Option configures a Meter.
type Option func(*Meter)

// WithInterval sets the refresh cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Meter) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithWindow sets the FFT size. Rounded up to a power of two.
func WithWindow(n int) Option {
	return func(m *Meter) {
		if n > 1 {
			m.window = nextPow2(n)
		}
	}
}

// WithMode selects scalar or bucket output.
func WithMode(mode Mode) Option {
	return func(m *Meter) {
		m.mode = mode
	}
}

// WithBuckets sets the number of bars in ModeBuckets.
func WithBuckets(n int) Option {
	return func(m *Meter) {
		if n > 0 {
			m.buckets = n
		}
	}
}

// WithOnLevels registers a callback invoked after every tick with a copy
// of the levels. It must not call Stop.
func WithOnLevels(fn func([]float64)) Option {
	return func(m *Meter) {
		m.onLevels = fn
	}
}

// Meter samples the latest audio window on a fixed cadence.
type Meter struct {
	log      *logger.Logger
	interval time.Duration
	window   int
	mode     Mode
	buckets  int
	onLevels func([]float64)

	mu      sync.Mutex
	ring    []float64 // last `window` samples, oldest first once full
	pos     int
	filled  int
	levels  []float64
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a meter. Defaults: 50ms ticks, 1024-sample window, 50 buckets.
func New(log *logger.Logger, opts ...Option) *Meter {
	m := &Meter{
		log:      log,
		interval: 50 * time.Millisecond,
		window:   1024,
		mode:     ModeBuckets,
		buckets:  50,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ring = make([]float64, m.window)
	m.levels = make([]float64, m.outputLen())
	return m
}

func (m *Meter) outputLen() int {
	if m.mode == ModeAverage {
		return 1
	}
	return m.buckets
}

// Write feeds PCM samples. Ignored after Stop.
func (m *Meter) Write(samples []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, s := range samples {
		m.ring[m.pos] = float64(s) / 32768.0
		m.pos = (m.pos + 1) % m.window
		if m.filled < m.window {
			m.filled++
		}
	}
}

// Start begins the sampling loop. Non-blocking. A stopped meter cannot be
// restarted; create a new one per session.
func (m *Meter) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.log.Warn("meter: start after stop ignored")
		return
	}
	if m.running {
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(childCtx, m.done)
	m.log.Debug("meter: started (interval=%s, window=%d, outputs=%d)", m.interval, m.window, len(m.levels))
}

// Stop halts sampling, releases the analysis buffers and zeroes the
// output. Safe to call more than once. When it returns no further
// callbacks will run.
func (m *Meter) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	done := m.done
	if m.running {
		m.cancel()
		m.running = false
	}
	m.ring = nil
	m.filled = 0
	for i := range m.levels {
		m.levels[i] = 0
	}
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	m.log.Debug("meter: stopped")
}

// Closed reports whether Stop has been called.
func (m *Meter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Running reports whether the sampling loop is active.
func (m *Meter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Levels returns a copy of the latest output, each value in [0,1].
func (m *Meter) Levels() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.levels))
	copy(out, m.levels)
	return out
}

// Level returns the mean of the latest output.
func (m *Meter) Level() float64 {
	return mean(m.Levels())
}

func (m *Meter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick analyses the current window and overwrites the output.
func (m *Meter) tick() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	frame := make([]float64, m.window)
	// Unroll the ring so the newest sample is last; missing samples stay 0.
	start := (m.pos - m.filled + m.window) % m.window
	off := m.window - m.filled
	for i := 0; i < m.filled; i++ {
		frame[off+i] = m.ring[(start+i)%m.window]
	}
	m.mu.Unlock()

	spectrum := Spectrum(frame)
	var out []float64
	if m.mode == ModeAverage {
		out = []float64{mean(spectrum)}
	} else {
		out = Downsample(spectrum, m.buckets)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	copy(m.levels, out)
	snapshot := make([]float64, len(m.levels))
	copy(snapshot, m.levels)
	m.mu.Unlock()

	if m.onLevels != nil {
		m.onLevels(snapshot)
	}
}

// Spectrum returns the normalised magnitude of the first len(frame)/2
// frequency bins of a Hann-windowed frame. Values are in [0,1].
func Spectrum(frame []float64) []float64 {
	n := len(frame)
	if n < 2 {
		return nil
	}
	windowed := make([]float64, n)
	for i, v := range frame {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = v * w
	}

	bins := fft.FFTReal(windowed)
	out := make([]float64, n/2)
	for i := range out {
		mag := cmplx.Abs(bins[i]) / float64(n)
		out[i] = normalizeDecibels(mag)
	}
	return out
}

func normalizeDecibels(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Downsample averages bins into n equal-width buckets. When there are
// fewer bins than buckets, bins are repeated.
func Downsample(bins []float64, n int) []float64 {
	out := make([]float64, n)
	if len(bins) == 0 || n <= 0 {
		return out
	}
	for i := range out {
		lo := i * len(bins) / n
		hi := (i + 1) * len(bins) / n
		if hi <= lo {
			out[i] = bins[lo]
			continue
		}
		out[i] = mean(bins[lo:hi])
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

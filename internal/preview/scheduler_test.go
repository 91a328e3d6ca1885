package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// mockService records dispatches. When hold is set each call blocks until
// a value is sent on it.
type mockService struct {
	mu    sync.Mutex
	calls []Request
	times []time.Time
	hold  chan error
}

func (m *mockService) dispatch(ctx context.Context, req Request) (*domain.Artifact, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.times = append(m.times, time.Now())
	hold := m.hold
	m.mu.Unlock()

	if hold != nil {
		if err := <-hold; err != nil {
			return nil, err
		}
	}
	return domain.NewArtifact([]byte{byte(req.Generation)}, "audio/wav", "preview.wav", domain.SourceProcessed), nil
}

func (m *mockService) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockService) call(i int) Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

type applied struct {
	mu   sync.Mutex
	reqs []Request
	errs []error
}

func (a *applied) onApply(r Request, _ *domain.Artifact) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, r)
}

func (a *applied) onError(r Request, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *applied) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reqs)
}

func (a *applied) errCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs)
}

func withPitch(v float64) domain.EffectParameters {
	p := domain.DefaultEffects()
	p.PitchShift = v
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestScheduler(svc *mockService, got *applied, opts ...Option) *Scheduler {
	base := []Option{
		WithQuantum(30 * time.Millisecond),
		WithMinSpacing(0),
		WithOnApply(got.onApply),
		WithOnError(got.onError),
	}
	return New(svc.dispatch, logger.New(logger.LevelOff, nil), append(base, opts...)...)
}

func TestBurstIssuesOneCallWithLastParams(t *testing.T) {
	svc := &mockService{}
	got := &applied{}
	s := newTestScheduler(svc, got)
	defer s.Close()

	for i := 1; i <= 5; i++ {
		s.Edit(withPitch(float64(i)))
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, "apply", func() bool { return got.count() == 1 })
	time.Sleep(60 * time.Millisecond)

	if n := svc.count(); n != 1 {
		t.Fatalf("dispatched %d calls, want 1", n)
	}
	req := svc.call(0)
	if req.Params.PitchShift != 5 || req.Generation != 5 || !req.PreviewOnly {
		t.Fatalf("dispatched %+v, want gen 5 pitch 5", req)
	}
	st := s.Stats()
	if st.Issued != 5 || st.Dispatched != 1 || st.Applied != 1 || st.Discarded != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if art, gen := s.Latest(); art == nil || gen != 5 {
		t.Fatalf("latest = %v gen %d", art, gen)
	}
}

func TestEditDuringFlightIsPendingThenSent(t *testing.T) {
	svc := &mockService{hold: make(chan error)}
	got := &applied{}
	s := newTestScheduler(svc, got)
	defer s.Close()

	s.Edit(withPitch(1))
	waitFor(t, "first dispatch", func() bool { return svc.count() == 1 })

	s.Edit(withPitch(2))
	time.Sleep(80 * time.Millisecond) // timer fires while gen 1 is out
	if n := svc.count(); n != 1 {
		t.Fatalf("second call issued while first in flight (%d calls)", n)
	}

	svc.hold <- nil // gen 1 returns, already superseded
	waitFor(t, "pending dispatch", func() bool { return svc.count() == 2 })
	if req := svc.call(1); req.Generation != 2 || req.Params.PitchShift != 2 {
		t.Fatalf("pending dispatch = %+v", req)
	}
	svc.hold <- nil

	waitFor(t, "apply", func() bool { return got.count() == 1 })
	got.mu.Lock()
	gen := got.reqs[0].Generation
	got.mu.Unlock()
	if gen != 2 {
		t.Fatalf("applied gen %d, want 2", gen)
	}
	if st := s.Stats(); st.Discarded != 1 {
		t.Fatalf("stats = %+v, want one discard", st)
	}
}

func TestOlderResponseAfterNewerIsDropped(t *testing.T) {
	svc := &mockService{}
	got := &applied{}
	s := newTestScheduler(svc, got)
	defer s.Close()

	s.mu.Lock()
	s.issued = 2
	s.mu.Unlock()

	newer := domain.NewArtifact([]byte("k+1"), "audio/wav", "b.wav", domain.SourceProcessed)
	older := domain.NewArtifact([]byte("k"), "audio/wav", "a.wav", domain.SourceProcessed)
	s.complete(Request{Generation: 2, Params: withPitch(2)}, newer, nil)
	s.complete(Request{Generation: 1, Params: withPitch(1)}, older, nil)

	art, gen := s.Latest()
	if gen != 2 || art != newer {
		t.Fatalf("latest = %v gen %d, want generation 2", art, gen)
	}
	if got.count() != 1 {
		t.Fatalf("applied %d results, want 1", got.count())
	}
	if st := s.Stats(); st.Discarded != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDisableSuppressesInFlightResult(t *testing.T) {
	svc := &mockService{hold: make(chan error)}
	got := &applied{}
	s := newTestScheduler(svc, got)
	defer s.Close()

	s.Edit(withPitch(3))
	waitFor(t, "dispatch", func() bool { return s.InFlight() })

	s.SetEnabled(false)
	svc.hold <- nil // the call is allowed to finish
	waitFor(t, "completion", func() bool { return !s.InFlight() })

	if got.count() != 0 {
		t.Fatal("result applied while disabled")
	}
	if st := s.Stats(); st.Discarded != 1 {
		t.Fatalf("stats = %+v", st)
	}

	// Edits while disabled never dispatch.
	s.Edit(withPitch(4))
	time.Sleep(80 * time.Millisecond)
	if svc.count() != 1 {
		t.Fatalf("dispatched while disabled (%d calls)", svc.count())
	}
}

func TestCloseDisarmsTimer(t *testing.T) {
	svc := &mockService{}
	got := &applied{}
	s := newTestScheduler(svc, got)

	s.Edit(withPitch(1))
	s.Close()
	s.Close()
	time.Sleep(100 * time.Millisecond)

	if svc.count() != 0 {
		t.Fatal("dispatch after Close")
	}
	if gen := s.Edit(withPitch(2)); gen != 0 {
		t.Fatalf("edit after close got generation %d", gen)
	}
}

func TestErrorOnlyReportedForLatest(t *testing.T) {
	svc := &mockService{hold: make(chan error, 1)}
	got := &applied{}
	s := newTestScheduler(svc, got)
	defer s.Close()

	svc.hold <- errors.New("service error 500: boom")
	s.Edit(withPitch(1))
	waitFor(t, "error", func() bool { return got.errCount() == 1 })

	// A superseded failure is dropped.
	s.mu.Lock()
	s.issued = 5
	s.mu.Unlock()
	s.complete(Request{Generation: 4}, nil, errors.New("late failure"))
	if got.errCount() != 1 {
		t.Fatal("stale error reported")
	}
}

func TestMinSpacingBoundsRate(t *testing.T) {
	svc := &mockService{}
	got := &applied{}
	s := newTestScheduler(svc, got, WithQuantum(5*time.Millisecond), WithMinSpacing(100*time.Millisecond))
	defer s.Close()

	s.Edit(withPitch(1))
	waitFor(t, "first apply", func() bool { return got.count() == 1 })
	s.Edit(withPitch(2))
	waitFor(t, "second apply", func() bool { return got.count() == 2 })

	svc.mu.Lock()
	gap := svc.times[1].Sub(svc.times[0])
	svc.mu.Unlock()
	if gap < 80*time.Millisecond {
		t.Fatalf("dispatches %s apart, want >= 100ms", gap)
	}
}

// Package pipeline drives the validate -> upload -> process sequence
// shared by every heavy feature (dubbing, privacy conversion, cloning,
// effects rendering).
//
// The backend does not stream progress, so each phase transition moves a
// fixed checkpoint (20% uploading, 50% processing, 100% complete). These
// numbers are an approximation. ReportProgress lets a caller with real
// progress move the bar forward between checkpoints; progress never goes
// backwards. A job runs once: build a new one to retry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
	"github.com/hammamikhairi/vocalx/internal/remote"
)

// Progress checkpoints and their status lines.
const (
	ProgressUploading  = 20
	ProgressProcessing = 50
	ProgressComplete   = 100

	StatusUploading  = "Uploading..."
	StatusProcessing = "Processing..."
	StatusComplete   = "Complete"
)

// Stages are the feature-specific steps of a job.
type Stages struct {
	// Validate runs before anything touches the network. A non-nil error
	// leaves the job Idle.
	Validate func() error
	// Upload sends the artifact and returns the server's reference id.
	Upload func(ctx context.Context) (string, error)
	// Process invokes the backend on the uploaded reference.
	Process func(ctx context.Context, ref string) (domain.JobResult, error)
}

// Snapshot is a read-only view of a job.
type Snapshot struct {
	ID          string
	Surface     domain.Surface
	Phase       domain.Phase
	FailedPhase domain.Phase
	UploadedRef string
	Progress    int
	Status      string
	// Cleared is set once the grace period after completion has passed;
	// callers should stop showing the progress bar and status line.
	Cleared bool
	Result  *domain.JobResult
	Err     error
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the job's logger.
func WithLogger(log *logger.Logger) Option {
	return func(j *Job) {
		j.log = log
	}
}

// WithEventBus publishes every transition to bus.
func WithEventBus(bus *EventBus) Option {
	return func(j *Job) {
		j.bus = bus
	}
}

// WithObserver calls fn with a snapshot after every transition.
func WithObserver(fn func(Snapshot)) Option {
	return func(j *Job) {
		j.observer = fn
	}
}

// WithGracePeriod sets how long progress stays visible after completion.
func WithGracePeriod(d time.Duration) Option {
	return func(j *Job) {
		j.grace = d
	}
}

// WithID overrides the generated job id.
func WithID(id string) Option {
	return func(j *Job) {
		if id != "" {
			j.id = id
		}
	}
}

// Job is one orchestrated operation.
type Job struct {
	id       string
	surface  domain.Surface
	stages   Stages
	log      *logger.Logger
	bus      *EventBus
	observer func(Snapshot)
	grace    time.Duration

	mu          sync.Mutex
	ran         bool
	phase       domain.Phase
	failedPhase domain.Phase
	ref         string
	progress    int
	status      string
	cleared     bool
	result      *domain.JobResult
	err         error
	graceTimer  *time.Timer
}

// NewJob creates an idle job for surface.
func NewJob(surface domain.Surface, stages Stages, opts ...Option) *Job {
	j := &Job{
		id:      uuid.NewString(),
		surface: surface,
		stages:  stages,
		log:     logger.New(logger.LevelOff, nil),
		grace:   2 * time.Second,
		phase:   domain.PhaseIdle,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.log = j.log.Named("job " + string(surface))
	return j
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Run executes the job. It may be called once; later calls return
// domain.ErrJobConsumed. Failures are returned as *domain.PipelineError
// except validation failures, which are returned as they are and leave
// the job Idle.
func (j *Job) Run(ctx context.Context) (domain.JobResult, error) {
	j.mu.Lock()
	if j.ran {
		j.mu.Unlock()
		return domain.JobResult{}, domain.ErrJobConsumed
	}
	j.ran = true
	j.mu.Unlock()

	if j.stages.Upload == nil || j.stages.Process == nil {
		return domain.JobResult{}, errors.New("pipeline: job needs upload and process stages")
	}

	if j.stages.Validate != nil {
		if err := j.stages.Validate(); err != nil {
			j.mu.Lock()
			j.err = err
			j.mu.Unlock()
			j.log.Info("rejected: %v", err)
			return domain.JobResult{}, err
		}
	}

	j.transition(domain.PhaseUploading, ProgressUploading, StatusUploading)
	ref, err := j.stages.Upload(remote.WithUploadProgress(ctx, j.uploadProgress()))
	if err != nil {
		return domain.JobResult{}, j.fail(domain.PhaseUploading, err)
	}
	j.mu.Lock()
	j.ref = ref
	j.mu.Unlock()

	j.transition(domain.PhaseProcessing, ProgressProcessing, StatusProcessing)
	res, err := j.stages.Process(ctx, ref)
	if err != nil {
		return domain.JobResult{}, j.fail(domain.PhaseProcessing, err)
	}

	j.mu.Lock()
	j.result = &res
	j.mu.Unlock()
	j.transition(domain.PhaseComplete, ProgressComplete, StatusComplete)

	j.mu.Lock()
	if !j.cleared {
		j.graceTimer = time.AfterFunc(j.grace, j.clearDisplay)
	}
	j.mu.Unlock()
	j.log.Info("complete: %s", res.Locator)
	return res, nil
}

// isValidTransition is the phase table. Failed is reachable from either
// active phase only.
func isValidTransition(from, to domain.Phase) bool {
	switch from {
	case domain.PhaseIdle:
		return to == domain.PhaseUploading
	case domain.PhaseUploading:
		return to == domain.PhaseProcessing || to == domain.PhaseFailed
	case domain.PhaseProcessing:
		return to == domain.PhaseComplete || to == domain.PhaseFailed
	}
	return false
}

func (j *Job) transition(to domain.Phase, progress int, status string) {
	j.mu.Lock()
	if !isValidTransition(j.phase, to) {
		from := j.phase
		j.mu.Unlock()
		j.log.Error("invalid transition %s -> %s", from, to)
		return
	}
	j.phase = to
	if progress > j.progress {
		j.progress = progress
	}
	j.status = status
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.log.Debug("%s (%d%%)", to, snap.Progress)
	j.notify(snap)
}

func (j *Job) fail(phase domain.Phase, err error) error {
	perr := &domain.PipelineError{Phase: phase, Err: err}

	j.mu.Lock()
	j.phase = domain.PhaseFailed
	j.failedPhase = phase
	j.err = perr
	j.status = failureMessage(phase, err)
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.log.Error("%v", perr)
	j.notify(snap)
	return perr
}

// failureMessage keeps a service's detail text intact for display.
func failureMessage(phase domain.Phase, err error) string {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		return se.Detail
	}
	if phase == domain.PhaseUploading {
		return fmt.Sprintf("Upload failed: %v", err)
	}
	return fmt.Sprintf("Processing failed: %v", err)
}

// ReportProgress moves the bar to p if the job is active and p is not
// below the current value. It reports whether p was accepted.
func (j *Job) ReportProgress(p int, status string) bool {
	j.mu.Lock()
	active := j.phase == domain.PhaseUploading || j.phase == domain.PhaseProcessing
	if !active || p < j.progress || p >= ProgressComplete {
		j.mu.Unlock()
		return false
	}
	j.progress = p
	if status != "" {
		j.status = status
	}
	snap := j.snapshotLocked()
	j.mu.Unlock()

	j.notify(snap)
	return true
}

// uploadProgress maps bytes sent onto the range between the uploading
// and processing checkpoints, reporting each whole percent once.
func (j *Job) uploadProgress() remote.ProgressFunc {
	last := -1
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if pct == last {
			return
		}
		last = pct
		span := int64(ProgressProcessing - ProgressUploading - 1)
		p := ProgressUploading + int(span*sent/total)
		j.ReportProgress(p, fmt.Sprintf("%s %d%%", StatusUploading, pct))
	}
}

func (j *Job) clearDisplay() {
	j.mu.Lock()
	if j.phase != domain.PhaseComplete || j.cleared {
		j.mu.Unlock()
		return
	}
	j.cleared = true
	snap := j.snapshotLocked()
	j.mu.Unlock()
	j.log.Debug("progress display cleared")
	if j.observer != nil {
		j.observer(snap)
	}
}

// Display returns what a progress bar should show: the live value and
// status line, or zero and "" once the grace period has passed.
func (j *Job) Display() (int, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cleared {
		return 0, ""
	}
	return j.progress, j.status
}

// Discard drops the retained result and stops any pending timer.
func (j *Job) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.graceTimer != nil {
		j.graceTimer.Stop()
	}
	j.result = nil
	j.cleared = true
}

// Snapshot returns the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:          j.id,
		Surface:     j.surface,
		Phase:       j.phase,
		FailedPhase: j.failedPhase,
		UploadedRef: j.ref,
		Progress:    j.progress,
		Status:      j.status,
		Cleared:     j.cleared,
		Err:         j.err,
	}
	if j.result != nil {
		r := *j.result
		s.Result = &r
	}
	return s
}

// Event converts the snapshot into an unsequenced bus event.
func (s Snapshot) Event() Event {
	e := Event{
		JobID:    s.ID,
		Surface:  s.Surface,
		Phase:    s.Phase,
		Progress: s.Progress,
		Message:  s.Status,
	}
	if s.Result != nil {
		e.Locator = s.Result.Locator
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	return e
}

func (j *Job) notify(s Snapshot) {
	if j.bus != nil {
		j.bus.Publish(s.Event())
	}
	if j.observer != nil {
		j.observer(s)
	}
}

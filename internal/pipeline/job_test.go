package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
	"github.com/hammamikhairi/vocalx/internal/remote"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

// mockBackend implements every feature service.
type mockBackend struct {
	mu          sync.Mutex
	uploads     int
	processes   int
	uploadErr   error
	processErr  error
	lastDub     remote.DubRequest
	lastPrivacy remote.PrivacyRequest
	lastClone   remote.CloneRequest
	speaker     string
}

func (m *mockBackend) upload(kind string) (remote.UploadRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.uploadErr != nil {
		return remote.UploadRef{}, m.uploadErr
	}
	return remote.UploadRef{ID: kind + "-1"}, nil
}

func (m *mockBackend) process() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes++
	return m.processErr
}

func (m *mockBackend) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads, m.processes
}

func (m *mockBackend) UploadVideo(_ context.Context, _ *domain.Artifact) (remote.UploadRef, error) {
	return m.upload("vid")
}

func (m *mockBackend) Dub(_ context.Context, req remote.DubRequest) (remote.DubResult, error) {
	m.mu.Lock()
	m.lastDub = req
	m.mu.Unlock()
	if err := m.process(); err != nil {
		return remote.DubResult{}, err
	}
	return remote.DubResult{VideoID: req.VideoID, OutputVideoURL: "/out/" + req.VideoID + ".mp4", AudioSyncQuality: 0.9}, nil
}

func (m *mockBackend) UploadPrivacyAudio(_ context.Context, _ *domain.Artifact) (remote.UploadRef, error) {
	return m.upload("aud")
}

func (m *mockBackend) ConvertVoice(_ context.Context, req remote.PrivacyRequest) (remote.PrivacyResult, error) {
	m.mu.Lock()
	m.lastPrivacy = req
	m.mu.Unlock()
	if err := m.process(); err != nil {
		return remote.PrivacyResult{}, err
	}
	return remote.PrivacyResult{AudioID: req.AudioID, ConvertedAudioURL: "/out/" + req.AudioID + ".wav"}, nil
}

func (m *mockBackend) UploadReference(_ context.Context, _ *domain.Artifact, speaker string) (remote.UploadRef, error) {
	m.mu.Lock()
	m.speaker = speaker
	m.mu.Unlock()
	return m.upload("ref")
}

func (m *mockBackend) Clone(_ context.Context, req remote.CloneRequest) (remote.CloneResult, error) {
	m.mu.Lock()
	m.lastClone = req
	m.mu.Unlock()
	if err := m.process(); err != nil {
		return remote.CloneResult{}, err
	}
	return remote.CloneResult{AudioURL: "/out/clone.wav", Duration: 2}, nil
}

func (m *mockBackend) ApplyEffects(_ context.Context, a *domain.Artifact, _ domain.EffectParameters, format string) (*domain.Artifact, remote.EffectsInfo, error) {
	if err := m.process(); err != nil {
		return nil, remote.EffectsInfo{}, err
	}
	out := domain.NewArtifact([]byte("rendered"), "audio/"+format, "processed."+format, domain.SourceProcessed)
	return out, remote.EffectsInfo{Applied: map[string]any{"pitch_shift": 2.0}}, nil
}

// recorder collects observer snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) phases() []domain.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Phase
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.Phase {
			out = append(out, s.Phase)
		}
	}
	return out
}

func (r *recorder) progress() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, s := range r.snaps {
		out = append(out, s.Progress)
	}
	return out
}

func video(size int) *domain.Artifact {
	return domain.NewArtifact(make([]byte, size), "video/mp4", "clip.mp4", domain.SourceUploaded)
}

func audio(size int) *domain.Artifact {
	return domain.NewArtifact(make([]byte, size), "audio/wav", "take.wav", domain.SourceRecorded)
}

func testLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func TestDubJobRunsPhasesInOrder(t *testing.T) {
	be := &mockBackend{}
	rec := &recorder{}
	bus := NewEventBus(50)
	job := NewDubJob(be, video(1024), remote.DubRequest{Text: "hello"}, validate.VideoUpload,
		WithObserver(rec.observe), WithEventBus(bus), WithGracePeriod(20*time.Millisecond), WithLogger(testLog()))

	if s := job.Snapshot(); s.Phase != domain.PhaseIdle {
		t.Fatalf("initial phase = %s", s.Phase)
	}

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Locator != "/out/vid-1.mp4" || res.Metadata["audio_sync_quality"] != 0.9 {
		t.Fatalf("result = %+v", res)
	}
	if be.lastDub.VideoID != "vid-1" || be.lastDub.Text != "hello" {
		t.Fatalf("dub request = %+v", be.lastDub)
	}

	want := []domain.Phase{domain.PhaseUploading, domain.PhaseProcessing, domain.PhaseComplete}
	got := rec.phases()
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phases = %v, want %v", got, want)
		}
	}

	prog := rec.progress()
	for i := 1; i < len(prog); i++ {
		if prog[i] < prog[i-1] {
			t.Fatalf("progress went backwards: %v", prog)
		}
	}
	if prog[len(prog)-1] != 100 {
		t.Fatalf("final progress = %v", prog)
	}

	events := bus.History(job.ID(), 0)
	if len(events) != 3 || events[2].Locator != res.Locator || events[0].Message != StatusUploading {
		t.Fatalf("events = %+v", events)
	}

	if p, msg := job.Display(); p != 100 || msg != StatusComplete {
		t.Fatalf("display before grace = %d %q", p, msg)
	}
	time.Sleep(60 * time.Millisecond)
	if p, msg := job.Display(); p != 0 || msg != "" {
		t.Fatalf("display after grace = %d %q", p, msg)
	}
	s := job.Snapshot()
	if s.Result == nil || s.Progress != 100 || !s.Cleared {
		t.Fatalf("result not retained after grace: %+v", s)
	}

	job.Discard()
	if job.Snapshot().Result != nil {
		t.Fatal("result survived Discard")
	}
}

func TestOversizedFileNeverUploads(t *testing.T) {
	be := &mockBackend{}
	rec := &recorder{}
	job := NewPrivacyJob(be, audio(60*1024*1024), remote.PrivacyRequest{PrivacyLevel: 0.7}, validate.AudioUpload,
		WithObserver(rec.observe))

	_, err := job.Run(context.Background())
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reason != domain.ReasonTooLarge {
		t.Fatalf("err = %v, want TooLarge", err)
	}
	if up, _ := be.counts(); up != 0 {
		t.Fatalf("upload issued %d times", up)
	}
	if s := job.Snapshot(); s.Phase != domain.PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase)
	}
	if len(rec.phases()) != 0 {
		t.Fatalf("rejected job emitted transitions %v", rec.phases())
	}
}

func TestUploadFailureSkipsProcessing(t *testing.T) {
	be := &mockBackend{uploadErr: &domain.ServiceError{Status: 400, Detail: "File must be an audio file"}}
	job := NewPrivacyJob(be, audio(100), remote.PrivacyRequest{PrivacyLevel: 0.5}, validate.AudioUpload)

	_, err := job.Run(context.Background())
	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Phase != domain.PhaseUploading {
		t.Fatalf("err = %v, want upload failure", err)
	}
	if _, proc := be.counts(); proc != 0 {
		t.Fatal("processing attempted after failed upload")
	}
	s := job.Snapshot()
	if s.Phase != domain.PhaseFailed || s.FailedPhase != domain.PhaseUploading {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Status != "File must be an audio file" {
		t.Fatalf("status = %q, want the service detail verbatim", s.Status)
	}
	if s.Progress != ProgressUploading {
		t.Fatalf("progress = %d", s.Progress)
	}
}

func TestProcessFailureIsTagged(t *testing.T) {
	be := &mockBackend{processErr: &domain.NetworkError{Op: "clone", Err: errors.New("connection reset")}}
	job := NewCloneJob(be, audio(100), "Sam", remote.CloneRequest{Text: "hi"}, validate.CloneSample)

	_, err := job.Run(context.Background())
	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Phase != domain.PhaseProcessing {
		t.Fatalf("err = %v", err)
	}
	if !domain.IsNetwork(err) {
		t.Fatal("network cause lost in wrapping")
	}
	s := job.Snapshot()
	if s.FailedPhase != domain.PhaseProcessing || s.UploadedRef != "ref-1" {
		t.Fatalf("snapshot = %+v", s)
	}
	if be.speaker != "Sam" || be.lastClone.ReferenceAudioID != "ref-1" {
		t.Fatalf("clone wiring: speaker=%q req=%+v", be.speaker, be.lastClone)
	}
}

func TestJobRunsOnce(t *testing.T) {
	be := &mockBackend{}
	job := NewDubJob(be, video(10), remote.DubRequest{Text: "x"}, validate.VideoUpload)
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := job.Run(context.Background()); !errors.Is(err, domain.ErrJobConsumed) {
		t.Fatalf("second run = %v", err)
	}
	if up, _ := be.counts(); up != 1 {
		t.Fatalf("uploads = %d", up)
	}
}

func TestReportProgressOnlyMovesForward(t *testing.T) {
	var job *Job
	accepted := make([]bool, 0, 3)
	job = NewJob("custom", Stages{
		Upload: func(context.Context) (string, error) { return "r", nil },
		Process: func(context.Context, string) (domain.JobResult, error) {
			accepted = append(accepted,
				job.ReportProgress(70, "Rendering..."),
				job.ReportProgress(60, ""),
				job.ReportProgress(100, ""),
			)
			if p, msg := job.Display(); p != 70 || msg != "Rendering..." {
				t.Errorf("display = %d %q", p, msg)
			}
			return domain.JobResult{Locator: "x"}, nil
		},
	})

	if job.ReportProgress(10, "") {
		t.Fatal("idle job accepted progress")
	}
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(accepted) != 3 || !accepted[0] || accepted[1] || accepted[2] {
		t.Fatalf("accepted = %v, want [true false false]", accepted)
	}
	if job.Snapshot().Progress != 100 {
		t.Fatal("completion did not reach 100")
	}
}

func TestEffectsJob(t *testing.T) {
	be := &mockBackend{}
	p := domain.DefaultEffects()
	p.PitchShift = 2

	job := NewEffectsJob(be, audio(100), p, "flac", validate.EffectsUpload)
	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Artifact == nil || string(res.Artifact.Data()) != "rendered" {
		t.Fatalf("result = %+v", res)
	}
	if up, proc := be.counts(); up != 0 || proc != 1 {
		t.Fatalf("backend calls = %d uploads, %d renders", up, proc)
	}

	bad := domain.DefaultEffects()
	bad.EchoDecay = 2
	_, err = NewEffectsJob(be, audio(100), bad, "wav", validate.EffectsUpload).Run(context.Background())
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("out-of-range params err = %v", err)
	}
	_, err = NewEffectsJob(be, audio(100), p, "aiff", validate.EffectsUpload).Run(context.Background())
	if !errors.As(err, &ve) {
		t.Fatalf("bad format err = %v", err)
	}
}

func TestEventBusBoundedAndIncremental(t *testing.T) {
	bus := NewEventBus(3)
	for i := 0; i < 5; i++ {
		bus.Publish(Event{JobID: "j", Progress: i})
	}
	all := bus.History("", 0)
	if len(all) != 3 || all[0].Seq != 3 || all[2].Seq != 5 {
		t.Fatalf("events = %+v", all)
	}
	if got := bus.History("j", 4); len(got) != 1 || got[0].Progress != 4 {
		t.Fatalf("after 4 = %+v", got)
	}
	if got := bus.History("other", 0); len(got) != 0 {
		t.Fatalf("foreign job events = %+v", got)
	}
}

func TestEventBusSubscribeReplaysThenStreams(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{JobID: "a", Progress: 20})
	bus.Publish(Event{JobID: "b", Progress: 20})

	ch, cancel := bus.Subscribe("a", 0, 1)
	if e := <-ch; e.JobID != "a" || e.Seq != 1 {
		t.Fatalf("replayed = %+v", e)
	}

	bus.Publish(Event{JobID: "b", Progress: 50})
	bus.Publish(Event{JobID: "a", Progress: 50})
	if e := <-ch; e.JobID != "a" || e.Progress != 50 {
		t.Fatalf("streamed = %+v", e)
	}

	// A full subscriber misses events instead of blocking the publisher.
	bus.Publish(Event{JobID: "a", Progress: 60})
	bus.Publish(Event{JobID: "a", Progress: 70})
	bus.Publish(Event{JobID: "a", Progress: 80})
	if bus.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", bus.Dropped())
	}

	cancel()
	cancel()
	for range ch {
	}
	bus.Publish(Event{JobID: "a"})
}

func TestUploadProgressReachesBus(t *testing.T) {
	bus := NewEventBus(0)
	job := NewJob("custom", Stages{
		Upload: func(ctx context.Context) (string, error) {
			report := remote.UploadProgress(ctx)
			if report == nil {
				return "", errors.New("no progress callback in upload context")
			}
			report(50, 100)
			report(50, 100)
			report(100, 100)
			return "r", nil
		},
		Process: func(context.Context, string) (domain.JobResult, error) {
			return domain.JobResult{Locator: "x"}, nil
		},
	}, WithEventBus(bus))

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var progress []int
	var half bool
	for _, e := range bus.History(job.ID(), 0) {
		progress = append(progress, e.Progress)
		if e.Message == "Uploading... 50%" {
			half = true
		}
	}
	want := []int{ProgressUploading, 34, 49, ProgressProcessing, ProgressComplete}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress = %v, want %v", progress, want)
		}
	}
	if !half {
		t.Fatal("no half-way upload status")
	}
}

// speechBackend answers health and generation calls.
type speechBackend struct {
	healthErr error
	req       remote.TTSRequest
	calls     int
}

func (s *speechBackend) Health(context.Context) (string, error) {
	if s.healthErr != nil {
		return "", s.healthErr
	}
	return "healthy", nil
}

func (s *speechBackend) Synthesize(_ context.Context, req remote.TTSRequest) (remote.TTSResult, error) {
	s.calls++
	s.req = req
	return remote.TTSResult{Success: true, AudioURL: "/api/tts/audio/1.wav", Duration: 1.2, Model: "chatterbox"}, nil
}

func TestSpeechJob(t *testing.T) {
	be := &speechBackend{}
	res, err := NewSpeechJob(be, remote.TTSRequest{Text: "hello", Exaggeration: 0.5, CFGWeight: 0.5}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Locator != "/api/tts/audio/1.wav" || res.Metadata["model"] != "chatterbox" {
		t.Fatalf("result = %+v", res)
	}

	_, err = NewSpeechJob(be, remote.TTSRequest{Text: "hi", Exaggeration: 2}).Run(context.Background())
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("out-of-range exaggeration err = %v", err)
	}
	_, err = NewSpeechJob(be, remote.TTSRequest{Text: "  "}).Run(context.Background())
	if !errors.As(err, &ve) || ve.Reason != domain.ReasonMissing {
		t.Fatalf("blank text err = %v", err)
	}

	down := &speechBackend{healthErr: &domain.NetworkError{Op: "health", Err: errors.New("refused")}}
	_, err = NewSpeechJob(down, remote.TTSRequest{Text: "hello"}).Run(context.Background())
	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Phase != domain.PhaseUploading || down.calls != 0 {
		t.Fatalf("unreachable backend err = %v, calls = %d", err, down.calls)
	}
	if be.calls != 1 {
		t.Fatalf("synthesize calls = %d", be.calls)
	}
}

func TestPrivacyJobRejectsUnknownConversion(t *testing.T) {
	be := &mockBackend{}
	_, err := NewPrivacyJob(be, audio(100), remote.PrivacyRequest{ConversionType: "gender_swap", PrivacyLevel: 0.5}, validate.AudioUpload).Run(context.Background())
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reason != domain.ReasonUnsupportedType || !strings.Contains(ve.Detail, "gender_swap") {
		t.Fatalf("err = %v, want unknown conversion type", err)
	}
	if up, _ := be.counts(); up != 0 {
		t.Fatal("unknown conversion type reached the backend")
	}
}

package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/remote"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

// Surfaces used by the feature jobs.
const (
	SurfaceDubbing domain.Surface = "dubbing"
	SurfacePrivacy domain.Surface = "privacy"
	SurfaceClone   domain.Surface = "clone"
	SurfaceEffects domain.Surface = "effects"
	SurfaceSpeech  domain.Surface = "speech"
)

// DubService is the part of the backend a dub job needs.
type DubService interface {
	UploadVideo(ctx context.Context, a *domain.Artifact) (remote.UploadRef, error)
	Dub(ctx context.Context, req remote.DubRequest) (remote.DubResult, error)
}

// PrivacyService is the part of the backend a privacy job needs.
type PrivacyService interface {
	UploadPrivacyAudio(ctx context.Context, a *domain.Artifact) (remote.UploadRef, error)
	ConvertVoice(ctx context.Context, req remote.PrivacyRequest) (remote.PrivacyResult, error)
}

// CloneService is the part of the backend a clone job needs.
type CloneService interface {
	UploadReference(ctx context.Context, a *domain.Artifact, speaker string) (remote.UploadRef, error)
	Clone(ctx context.Context, req remote.CloneRequest) (remote.CloneResult, error)
}

// EffectsService is the part of the backend an effects job needs.
type EffectsService interface {
	ApplyEffects(ctx context.Context, a *domain.Artifact, p domain.EffectParameters, format string) (*domain.Artifact, remote.EffectsInfo, error)
}

func checkFile(a *domain.Artifact, c validate.Constraints) func() error {
	return func() error {
		return validate.Validate(validate.FromArtifact(a), c).Err()
	}
}

// NewDubJob uploads a video and re-voices it with req.Text.
func NewDubJob(svc DubService, video *domain.Artifact, req remote.DubRequest, c validate.Constraints, opts ...Option) *Job {
	return NewJob(SurfaceDubbing, Stages{
		Validate: func() error {
			if err := checkFile(video, c)(); err != nil {
				return err
			}
			if strings.TrimSpace(req.Text) == "" {
				return &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no text to dub"}
			}
			return nil
		},
		Upload: func(ctx context.Context) (string, error) {
			ref, err := svc.UploadVideo(ctx, video)
			return ref.ID, err
		},
		Process: func(ctx context.Context, ref string) (domain.JobResult, error) {
			req.VideoID = ref
			res, err := svc.Dub(ctx, req)
			if err != nil {
				return domain.JobResult{}, err
			}
			return domain.JobResult{
				Locator: res.OutputVideoURL,
				Metadata: map[string]any{
					"processing_time":    res.ProcessingTime,
					"original_duration":  res.OriginalDuration,
					"audio_sync_quality": res.AudioSyncQuality,
				},
			}, nil
		},
	}, opts...)
}

// NewPrivacyJob uploads audio and runs a voice conversion on it.
func NewPrivacyJob(svc PrivacyService, audio *domain.Artifact, req remote.PrivacyRequest, c validate.Constraints, opts ...Option) *Job {
	return NewJob(SurfacePrivacy, Stages{
		Validate: func() error {
			if err := checkFile(audio, c)(); err != nil {
				return err
			}
			if req.ConversionType != "" && !remote.ValidConversionType(req.ConversionType) {
				return &domain.ValidationError{Reason: domain.ReasonUnsupportedType, Detail: "unknown conversion type " + req.ConversionType}
			}
			if req.PrivacyLevel < 0 || req.PrivacyLevel > 1 {
				return &domain.ValidationError{Reason: domain.ReasonUnsupportedType, Detail: "privacy level must be between 0 and 1"}
			}
			return nil
		},
		Upload: func(ctx context.Context) (string, error) {
			ref, err := svc.UploadPrivacyAudio(ctx, audio)
			return ref.ID, err
		},
		Process: func(ctx context.Context, ref string) (domain.JobResult, error) {
			req.AudioID = ref
			res, err := svc.ConvertVoice(ctx, req)
			if err != nil {
				return domain.JobResult{}, err
			}
			return domain.JobResult{
				Locator: res.ConvertedAudioURL,
				Metadata: map[string]any{
					"privacy_level_achieved":     res.PrivacyLevelAchieved,
					"original_speaker_preserved": res.OriginalSpeakerPreserved,
					"processing_time":            res.ProcessingTime,
				},
			}, nil
		},
	}, opts...)
}

// NewCloneJob uploads a reference sample then speaks req.Text with it.
func NewCloneJob(svc CloneService, sample *domain.Artifact, speaker string, req remote.CloneRequest, c validate.Constraints, opts ...Option) *Job {
	return NewJob(SurfaceClone, Stages{
		Validate: func() error {
			if err := checkFile(sample, c)(); err != nil {
				return err
			}
			if strings.TrimSpace(req.Text) == "" {
				return &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no text to speak"}
			}
			return nil
		},
		Upload: func(ctx context.Context) (string, error) {
			ref, err := svc.UploadReference(ctx, sample, speaker)
			return ref.ID, err
		},
		Process: func(ctx context.Context, ref string) (domain.JobResult, error) {
			req.ReferenceAudioID = ref
			res, err := svc.Clone(ctx, req)
			if err != nil {
				return domain.JobResult{}, err
			}
			return domain.JobResult{
				Locator: res.AudioURL,
				Metadata: map[string]any{
					"duration":                 res.Duration,
					"processing_time":          res.ProcessingTime,
					"speaker_similarity_score": res.SpeakerSimilarityScore,
				},
			}, nil
		},
	}, opts...)
}

// SpeechService is the part of the backend a text-to-speech job needs.
type SpeechService interface {
	Health(ctx context.Context) (string, error)
	Synthesize(ctx context.Context, req remote.TTSRequest) (remote.TTSResult, error)
}

// NewSpeechJob generates speech from req.Text. There is nothing to
// upload, so the first phase checks the backend is up before the
// generation call is made.
func NewSpeechJob(svc SpeechService, req remote.TTSRequest, opts ...Option) *Job {
	return NewJob(SurfaceSpeech, Stages{
		Validate: func() error {
			if strings.TrimSpace(req.Text) == "" {
				return &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no text to speak"}
			}
			for name, v := range map[string]float64{"exaggeration": req.Exaggeration, "cfg weight": req.CFGWeight} {
				if v < 0 || v > 1 {
					return &domain.ValidationError{Reason: domain.ReasonUnsupportedType, Detail: name + " must be between 0 and 1"}
				}
			}
			return nil
		},
		Upload: func(ctx context.Context) (string, error) {
			return svc.Health(ctx)
		},
		Process: func(ctx context.Context, _ string) (domain.JobResult, error) {
			res, err := svc.Synthesize(ctx, req)
			if err != nil {
				return domain.JobResult{}, err
			}
			return domain.JobResult{
				Locator: res.AudioURL,
				Metadata: map[string]any{
					"duration":        res.Duration,
					"sample_rate":     res.SampleRate,
					"processing_time": res.ProcessingTime,
					"model":           res.Model,
				},
			}, nil
		},
	}, opts...)
}

var errUnsupportedFormat = errors.New("unsupported output format")

// NewEffectsJob renders effects over a whole file. The backend takes the
// file and the parameters in one request, so the upload phase only
// stages the local artifact and the process phase makes the call.
func NewEffectsJob(svc EffectsService, audio *domain.Artifact, p domain.EffectParameters, format string, c validate.Constraints, opts ...Option) *Job {
	return NewJob(SurfaceEffects, Stages{
		Validate: func() error {
			if err := checkFile(audio, c)(); err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return &domain.ValidationError{Reason: domain.ReasonUnsupportedType, Detail: err.Error()}
			}
			if format != "" && !supportedFormat(format) {
				return &domain.ValidationError{Reason: domain.ReasonUnsupportedType, Detail: errUnsupportedFormat.Error() + ": " + format}
			}
			return nil
		},
		Upload: func(ctx context.Context) (string, error) {
			return audio.SuggestedFilename(), ctx.Err()
		},
		Process: func(ctx context.Context, _ string) (domain.JobResult, error) {
			out, info, err := svc.ApplyEffects(ctx, audio, p, format)
			if err != nil {
				return domain.JobResult{}, err
			}
			return domain.JobResult{
				Locator:  out.SuggestedFilename(),
				Artifact: out,
				Metadata: map[string]any{
					"audio_info":      info.Audio,
					"effects_applied": info.Applied,
				},
			}, nil
		},
	}, opts...)
}

func supportedFormat(f string) bool {
	f = strings.ToLower(f)
	for _, ok := range remote.OutputFormats {
		if f == ok {
			return true
		}
	}
	return false
}

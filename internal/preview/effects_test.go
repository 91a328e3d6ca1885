package preview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

type recordingRenderer struct {
	limits []time.Duration
	params []domain.EffectParameters
}

func (r *recordingRenderer) PreviewEffects(_ context.Context, a *domain.Artifact, p domain.EffectParameters, limit time.Duration) (*domain.Artifact, error) {
	r.limits = append(r.limits, limit)
	r.params = append(r.params, p)
	return domain.NewArtifact(a.Data(), "audio/wav", "preview.wav", domain.SourceProcessed), nil
}

func TestEffectsPreviewerLimits(t *testing.T) {
	r := &recordingRenderer{}
	src := domain.NewArtifact([]byte("RIFF"), "audio/wav", "in.wav", domain.SourceUploaded)
	dispatch := NewEffectsPreviewer(r, src, 10*time.Second)

	p := domain.DefaultEffects()
	p.PitchShift = 3

	out, err := dispatch(context.Background(), Request{Generation: 1, Params: p, PreviewOnly: true})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Source() != domain.SourceProcessed {
		t.Fatalf("source = %v", out.Source())
	}
	if _, err := dispatch(context.Background(), Request{Generation: 2, Params: p}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if r.limits[0] != 10*time.Second || r.limits[1] != 0 {
		t.Fatalf("limits = %v", r.limits)
	}
	if r.params[0].PitchShift != 3 {
		t.Fatalf("params not forwarded: %+v", r.params[0])
	}
}

func TestEffectsPreviewerNoSource(t *testing.T) {
	dispatch := NewEffectsPreviewer(&recordingRenderer{}, nil, time.Second)
	_, err := dispatch(context.Background(), Request{Generation: 1})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reason != domain.ReasonMissing {
		t.Fatalf("err = %v, want missing", err)
	}
}

package preview

import (
	"context"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// Renderer renders effect previews remotely. *remote.Client satisfies it.
type Renderer interface {
	PreviewEffects(ctx context.Context, a *domain.Artifact, p domain.EffectParameters, limit time.Duration) (*domain.Artifact, error)
}

// NewEffectsPreviewer returns a DispatchFunc that renders source with the
// request's parameters. Preview-only requests are cut to limit; full
// requests render the whole file.
func NewEffectsPreviewer(r Renderer, source *domain.Artifact, limit time.Duration) DispatchFunc {
	return func(ctx context.Context, req Request) (*domain.Artifact, error) {
		if source == nil {
			return nil, &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no audio selected"}
		}
		l := limit
		if !req.PreviewOnly {
			l = 0
		}
		return r.PreviewEffects(ctx, source, req.Params, l)
	}
}

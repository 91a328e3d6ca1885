// Package voicestore keeps the user's saved reference voices: remotely on
// the backend, locally in SQLite when the backend is unreachable, and in a
// small read-through cache in front of either.
package voicestore

import (
	"context"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/remote"
)

// HTTPStore is the backend-hosted voice library.
type HTTPStore struct {
	client *remote.Client
}

var _ domain.VoiceStore = (*HTTPStore)(nil)

// NewHTTPStore wraps a backend client.
func NewHTTPStore(c *remote.Client) *HTTPStore {
	return &HTTPStore{client: c}
}

func (s *HTTPStore) List(ctx context.Context) ([]domain.SavedVoice, error) {
	return s.client.ListVoices(ctx)
}

func (s *HTTPStore) Save(ctx context.Context, a *domain.Artifact, name, description string) (domain.SavedVoice, error) {
	return s.client.SaveVoice(ctx, a, name, description)
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	return s.client.DeleteVoice(ctx, id)
}

func (s *HTTPStore) CloneWithText(ctx context.Context, id, text string) (domain.CloneOutcome, error) {
	return s.client.CloneSavedVoice(ctx, id, text)
}

package voicestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// Warning records that an operation was served locally because the
// backend could not be reached.
type Warning struct {
	Op  string
	Err error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: backend unreachable, using local voices (%v)", w.Op, w.Err)
}

// FallbackOption configures a FallbackStore.
type FallbackOption func(*FallbackStore)

// WithOnWarning registers a callback for every fallback.
func WithOnWarning(fn func(Warning)) FallbackOption {
	return func(f *FallbackStore) {
		f.onWarning = fn
	}
}

// FallbackStore prefers the remote library and drops to the local one on
// network failures. Service errors from the backend are returned as is.
type FallbackStore struct {
	remote domain.VoiceStore
	local  *LocalStore
	log    *logger.Logger

	onWarning func(Warning)

	mu   sync.Mutex
	last *Warning
}

var _ domain.VoiceStore = (*FallbackStore)(nil)

// NewFallbackStore combines a remote and a local store.
func NewFallbackStore(remote domain.VoiceStore, local *LocalStore, log *logger.Logger, opts ...FallbackOption) *FallbackStore {
	f := &FallbackStore{remote: remote, local: local, log: log}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LastWarning returns the most recent fallback, if any.
func (f *FallbackStore) LastWarning() (Warning, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Warning{}, false
	}
	return *f.last, true
}

func (f *FallbackStore) warn(op string, err error) {
	w := Warning{Op: op, Err: err}
	f.mu.Lock()
	f.last = &w
	f.mu.Unlock()
	f.log.Warn("%s", w)
	if f.onWarning != nil {
		f.onWarning(w)
	}
}

func (f *FallbackStore) List(ctx context.Context) ([]domain.SavedVoice, error) {
	vs, err := f.remote.List(ctx)
	if err == nil || !domain.IsNetwork(err) {
		return vs, err
	}
	f.warn("list voices", err)
	return f.local.List(ctx)
}

// Save mirrors voices the backend accepted into the local store.
func (f *FallbackStore) Save(ctx context.Context, a *domain.Artifact, name, description string) (domain.SavedVoice, error) {
	v, err := f.remote.Save(ctx, a, name, description)
	if err == nil {
		if perr := f.local.Put(ctx, v, a); perr != nil {
			f.log.Warn("mirroring voice %s locally: %v", v.ID, perr)
		}
		return v, nil
	}
	if !domain.IsNetwork(err) {
		return domain.SavedVoice{}, err
	}
	f.warn("save voice", err)
	return f.local.Save(ctx, a, name, description)
}

// Delete removes the voice from both libraries. A voice the backend does
// not know may have been saved while it was offline, so it is still
// removed locally.
func (f *FallbackStore) Delete(ctx context.Context, id string) error {
	err := f.remote.Delete(ctx, id)
	if err == nil {
		if lerr := f.local.Delete(ctx, id); lerr != nil && !errors.Is(lerr, domain.ErrNotFound) {
			f.log.Warn("removing local copy of %s: %v", id, lerr)
		}
		return nil
	}
	if domain.IsNotFound(err) {
		lerr := f.local.Delete(ctx, id)
		switch {
		case lerr == nil:
			f.log.Info("deleted local-only voice %s", id)
			return nil
		case errors.Is(lerr, domain.ErrNotFound):
			return err
		default:
			return lerr
		}
	}
	if !domain.IsNetwork(err) {
		return err
	}
	f.warn("delete voice", err)
	return f.local.Delete(ctx, id)
}

func (f *FallbackStore) CloneWithText(ctx context.Context, id, text string) (domain.CloneOutcome, error) {
	out, err := f.remote.CloneWithText(ctx, id, text)
	if err == nil || !domain.IsNetwork(err) {
		return out, err
	}
	f.warn("clone voice", err)
	return f.local.CloneWithText(ctx, id, text)
}

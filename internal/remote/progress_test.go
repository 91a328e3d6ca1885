package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

func TestUploadReportsBodyProgress(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/privacy/upload-audio", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK, map[string]any{"audio_id": "a1"})
	})
	c := newTestClient(t, mux)

	var (
		mu    sync.Mutex
		sent  []int64
		total int64
	)
	ctx := WithUploadProgress(context.Background(), func(n, of int64) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, n)
		total = of
	})

	data := append([]byte("RIFF....WAVEfmt "), bytes.Repeat([]byte{1}, 256<<10)...)
	ref, err := c.UploadPrivacyAudio(ctx, domain.NewArtifact(data, "audio/wav", "take.wav", domain.SourceRecorded))
	require.NoError(t, err)
	assert.Equal(t, "a1", ref.ID)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, sent)
	assert.Greater(t, total, int64(len(data)), "multipart framing counts towards the total")
	assert.Equal(t, total, sent[len(sent)-1])
	for i := 1; i < len(sent); i++ {
		assert.Greater(t, sent[i], sent[i-1])
	}
}

func TestRequestsWithoutProgressAreUntouched(t *testing.T) {
	var calls int
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		_, ok := r.Body.(*countingBody)
		assert.False(t, ok)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
	rt := progressTransport{base: base}

	req, err := http.NewRequest(http.MethodPost, "http://backend/x", bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

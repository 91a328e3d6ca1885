package voicestore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/remote"
)

func TestHTTPStoreEndpoints(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/voices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.SavedVoice{{ID: "v1", Name: "Alice", CreatedAt: created}})
	})
	mux.HandleFunc("POST /api/voices", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("audio_file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "sample.wav", hdr.Filename)
		assert.Equal(t, "abc", string(body))
		assert.Equal(t, "Bob", r.FormValue("name"))
		assert.Equal(t, "deep", r.FormValue("description"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.SavedVoice{ID: "v2", Name: "Bob", FileSizeBytes: 3})
	})
	mux.HandleFunc("DELETE /api/voices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "v1" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Voice not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/voices/{id}/clone", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v2", r.PathValue("id"))
		assert.Equal(t, "hello there", r.FormValue("text"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"audio_url": "/api/voices/v2/out.wav", "duration": 1.2, "processing_time": 0.4})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewHTTPStore(remote.New(srv.URL, quiet()))
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Alice", list[0].Name)
	assert.True(t, list[0].CreatedAt.Equal(created))

	v, err := s.Save(ctx, sample("abc"), "Bob", "deep")
	require.NoError(t, err)
	assert.Equal(t, "v2", v.ID)

	require.NoError(t, s.Delete(ctx, "v1"))
	err = s.Delete(ctx, "missing")
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Voice not found", se.Detail)

	out, err := s.CloneWithText(ctx, "v2", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "/api/voices/v2/out.wav", out.AudioURL)
	assert.InDelta(t, 1.2, out.DurationSeconds, 1e-9)
}

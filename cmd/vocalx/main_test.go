package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

// run executes the CLI with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("VOCALX_STORE_PATH", filepath.Join(t.TempDir(), "voices.db"))
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	base := []string{"--config", filepath.Join(t.TempDir(), "none.toml"), "--quiet", "--log-file", "stderr"}
	root.SetArgs(append(base, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func deadServer() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestEnginesCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stt/engines", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"engines": []map[string]any{{"name": "whisper", "description": "OpenAI Whisper", "available": true}},
		})
	}))
	defer srv.Close()

	out, _, err := run(t, "--server", srv.URL, "engines", "--stt")
	require.NoError(t, err)
	assert.Contains(t, out, "whisper")
	assert.Contains(t, out, "OpenAI Whisper")
}

func TestVoicesListFallsBackOffline(t *testing.T) {
	out, errOut, err := run(t, "--server", deadServer(), "voices", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no saved voices")
	assert.Contains(t, errOut, "backend unreachable")
}

func TestPresetsOfflineNeedsOptIn(t *testing.T) {
	_, _, err := run(t, "--server", deadServer(), "effects", "presets")
	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)

	t.Setenv("VOCALX_SERVER_OFFLINE_CATALOG", "true")
	out, _, err := run(t, "--server", deadServer(), "effects", "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in list")
}

func TestDubRejectsOversizedVideoBeforeUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	t.Setenv("VOCALX_LIMITS_VIDEO_MB", "1")
	path := filepath.Join(t.TempDir(), "big.mp4")
	data := make([]byte, 2*1024*1024)
	copy(data[4:], "ftypisom")
	require.NoError(t, writeFile(path, data))

	_, _, err := run(t, "--server", srv.URL, "dub", path, "--text", "hi")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ReasonTooLarge, ve.Reason)
}

// privacyBackend accepts the conversion types the backend supports and
// answers anything else with a 400.
func privacyBackend(t *testing.T, got *[]string) *httptest.Server {
	allowed := map[string]bool{
		"anonymize": true, "male_to_female": true, "female_to_male": true,
		"pitch_shift": true, "robot": true, "whisper": true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/privacy/upload-audio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"audio_id": "a1"})
	})
	mux.HandleFunc("/api/privacy/convert-voice", func(w http.ResponseWriter, r *http.Request) {
		ct := r.PostFormValue("conversion_type")
		*got = append(*got, ct)
		w.Header().Set("Content-Type", "application/json")
		if !allowed[ct] {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"detail": "Invalid conversion type"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"audio_id": "a1", "converted_audio_url": "/api/privacy/download/a1_" + ct + ".wav",
			"privacy_level_achieved": 0.8,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wavFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.wav")
	data := append([]byte("RIFF....WAVEfmt "), make([]byte, 64)...)
	require.NoError(t, writeFile(path, data))
	return path
}

func TestPrivacyConvertDefaultTypeIsAccepted(t *testing.T) {
	var got []string
	srv := privacyBackend(t, &got)

	out, _, err := run(t, "--server", srv.URL, "privacy", "convert", wavFile(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"anonymize"}, got)
	assert.Contains(t, out, "/api/privacy/download/a1_anonymize.wav")
}

func TestPrivacyConvertRejectsUnknownTypeLocally(t *testing.T) {
	var got []string
	srv := privacyBackend(t, &got)

	_, _, err := run(t, "--server", srv.URL, "privacy", "convert", wavFile(t), "--type", "gender_swap")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ReasonUnsupportedType, ve.Reason)
	assert.Empty(t, got, "an unknown type must not reach the backend")
}

// countingStore records saves and otherwise does nothing.
type countingStore struct{ saves int }

func (s *countingStore) List(context.Context) ([]domain.SavedVoice, error) { return nil, nil }
func (s *countingStore) Save(context.Context, *domain.Artifact, string, string) (domain.SavedVoice, error) {
	s.saves++
	return domain.SavedVoice{ID: "v1"}, nil
}
func (s *countingStore) Delete(context.Context, string) error { return nil }
func (s *countingStore) CloneWithText(context.Context, string, string) (domain.CloneOutcome, error) {
	return domain.CloneOutcome{}, nil
}

func TestStoreVoiceChecksSampleLimits(t *testing.T) {
	store := &countingStore{}
	limits := validate.CloneSample.WithMaxBytes(32)
	big := domain.NewArtifact(append([]byte("RIFF....WAVEfmt "), make([]byte, 64)...), "audio/wav", "take.wav", domain.SourceRecorded)

	_, err := storeVoice(context.Background(), store, big, limits, "me", "")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ReasonTooLarge, ve.Reason)
	assert.Zero(t, store.saves)

	small := domain.NewArtifact([]byte("RIFF....WAVEfmt "), "audio/wav", "take.wav", domain.SourceRecorded)
	v, err := storeVoice(context.Background(), store, small, limits, "me", "")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.Equal(t, 1, store.saves)
}

func TestTTSCommand(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
	})
	mux.HandleFunc("/api/tts/generate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true, "audio_url": "/api/tts/audio/s1.wav", "duration": 1.5,
			"sample_rate": 24000, "model": "chatterbox",
		})
	})
	mux.HandleFunc("/api/tts/audio/s1.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFF....WAVEfmt "))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "hello.wav")
	out, _, err := run(t, "--server", srv.URL, "tts", "hello there", "-o", path)
	require.NoError(t, err)
	assert.Equal(t, "hello there", body["text"])
	assert.Equal(t, 0.5, body["cfg_weight"])
	assert.Contains(t, out, "chatterbox")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVEfmt ", string(data))

	_, _, err = run(t, "--server", srv.URL, "tts", "hello", "--exaggeration", "3")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSetParam(t *testing.T) {
	ed := domain.NewEffectEditor()
	require.NoError(t, setParam(ed, "pitch_shift = 30"))
	assert.Equal(t, 12.0, ed.Params().PitchShift, "out-of-range edits are clamped")

	require.Error(t, setParam(ed, "pitch_shift"))
	require.Error(t, setParam(ed, "bogus=1"))

	ed.ApplyPreset(domain.Preset{ID: "robot"})
	require.Error(t, setParam(ed, "speed_change=nan"))
	assert.Equal(t, "robot", ed.SelectedPreset(), "a rejected edit keeps the preset marker")
}

func TestRootListsCommands(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"record", "effects", "dub", "privacy", "clone", "voices", "engines", "play", "tts"} {
		assert.True(t, strings.Contains(out, name), "help is missing %s", name)
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

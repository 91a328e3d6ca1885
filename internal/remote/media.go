package remote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// UploadRef is the server-side handle of an uploaded file. The upload
// endpoints name the id differently; ID holds whichever was sent.
type UploadRef struct {
	ID        string  `json:"-"`
	Filename  string  `json:"filename"`
	Duration  float64 `json:"duration"`
	FileSize  int64   `json:"file_size"`
	Format    string  `json:"format"`
	UploadURL string  `json:"upload_url"`

	// Video uploads.
	Resolution string  `json:"resolution,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	HasFaces   bool    `json:"has_faces,omitempty"`

	// Audio uploads.
	SampleRate                int  `json:"sample_rate,omitempty"`
	Channels                  int  `json:"channels,omitempty"`
	OriginalVoiceDetected     bool `json:"original_voice_detected,omitempty"`
	SpeakerEmbeddingExtracted bool `json:"speaker_embedding_extracted,omitempty"`
}

type uploadWire struct {
	UploadRef
	VideoID string `json:"video_id"`
	AudioID string `json:"audio_id"`
}

func (w uploadWire) ref() UploadRef {
	r := w.UploadRef
	r.ID = w.VideoID
	if r.ID == "" {
		r.ID = w.AudioID
	}
	return r
}

func (c *Client) upload(ctx context.Context, op, path, field string, a *domain.Artifact, form map[string]string) (UploadRef, error) {
	if a == nil {
		return UploadRef{}, &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "nothing to upload"}
	}
	r := multipartFile(c.request(ctx), field, a)
	if len(form) > 0 {
		r.SetFormData(form)
	}
	var w uploadWire
	if err := c.doJSON(op, http.MethodPost, path, r, &w); err != nil {
		return UploadRef{}, err
	}
	ref := w.ref()
	if ref.ID == "" {
		return UploadRef{}, fmt.Errorf("%s: response carried no id", op)
	}
	c.log.Info("uploaded %s as %s", a.SuggestedFilename(), ref.ID)
	return ref, nil
}

// UploadVideo stores a video for dubbing.
func (c *Client) UploadVideo(ctx context.Context, a *domain.Artifact) (UploadRef, error) {
	return c.upload(ctx, "upload video", "/api/dubbing/upload-video", "file", a, nil)
}

// DubRequest asks for a video to be re-voiced with new text.
type DubRequest struct {
	VideoID                string `json:"video_id"`
	Text                   string `json:"text"`
	Voice                  string `json:"voice"`
	Language               string `json:"language"`
	PreserveOriginalTiming bool   `json:"preserve_original_timing"`
	LipSyncEnabled         bool   `json:"lip_sync_enabled"`
	FaceEnhancement        bool   `json:"face_enhancement"`
}

// DubResult describes a finished dub.
type DubResult struct {
	VideoID          string  `json:"video_id"`
	OutputVideoURL   string  `json:"output_video_url"`
	ProcessingTime   float64 `json:"processing_time"`
	OriginalDuration float64 `json:"original_duration"`
	AudioSyncQuality float64 `json:"audio_sync_quality"`
}

// Dub runs the dubbing pipeline on an uploaded video.
func (c *Client) Dub(ctx context.Context, req DubRequest) (DubResult, error) {
	if req.Voice == "" {
		req.Voice = "neutral"
	}
	if req.Language == "" {
		req.Language = "en"
	}
	var out DubResult
	err := c.doJSON("dub", http.MethodPost, "/api/dubbing/dub", c.request(ctx).SetBody(req), &out)
	return out, err
}

// UploadPrivacyAudio stores audio for voice conversion.
func (c *Client) UploadPrivacyAudio(ctx context.Context, a *domain.Artifact) (UploadRef, error) {
	return c.upload(ctx, "upload audio", "/api/privacy/upload-audio", "file", a, nil)
}

// PrivacyRequest asks for an uploaded voice to be disguised.
type PrivacyRequest struct {
	AudioID         string
	ConversionType  string
	PrivacyLevel    float64
	PreserveEmotion bool
}

// PrivacyResult describes a finished conversion.
type PrivacyResult struct {
	AudioID                  string  `json:"audio_id"`
	ConvertedAudioURL        string  `json:"converted_audio_url"`
	PrivacyLevelAchieved     float64 `json:"privacy_level_achieved"`
	OriginalSpeakerPreserved bool    `json:"original_speaker_preserved"`
	ProcessingTime           float64 `json:"processing_time"`
}

// ConvertVoice runs privacy conversion. The endpoint takes form fields.
func (c *Client) ConvertVoice(ctx context.Context, req PrivacyRequest) (PrivacyResult, error) {
	if req.ConversionType == "" {
		req.ConversionType = "anonymize"
	}
	form := map[string]string{
		"audio_id":         req.AudioID,
		"conversion_type":  req.ConversionType,
		"privacy_level":    formatFloat(req.PrivacyLevel),
		"preserve_emotion": strconv.FormatBool(req.PreserveEmotion),
	}
	var out PrivacyResult
	err := c.doJSON("convert voice", http.MethodPost, "/api/privacy/convert-voice", c.request(ctx).SetFormData(form), &out)
	return out, err
}

// UploadReference stores a voice sample to clone from.
func (c *Client) UploadReference(ctx context.Context, a *domain.Artifact, speaker string) (UploadRef, error) {
	var form map[string]string
	if speaker != "" {
		form = map[string]string{"speaker_name": speaker}
	}
	return c.upload(ctx, "upload reference", "/api/voice-clone/upload-reference", "file", a, form)
}

// CloneRequest asks for text to be spoken in a referenced voice.
type CloneRequest struct {
	Text             string  `json:"text"`
	ReferenceAudioID string  `json:"reference_audio_id"`
	Language         string  `json:"language"`
	Speed            float64 `json:"speed"`
}

// CloneResult describes synthesized speech in a cloned voice.
type CloneResult struct {
	AudioID                string  `json:"audio_id"`
	AudioURL               string  `json:"audio_url"`
	Duration               float64 `json:"duration"`
	ProcessingTime         float64 `json:"processing_time"`
	SpeakerSimilarityScore float64 `json:"speaker_similarity_score"`
	ReferenceAudioUsed     string  `json:"reference_audio_used"`
	TextProcessed          string  `json:"text_processed"`
}

// Clone synthesizes text with an uploaded reference voice.
func (c *Client) Clone(ctx context.Context, req CloneRequest) (CloneResult, error) {
	if req.Language == "" {
		req.Language = "en"
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}
	var out CloneResult
	err := c.doJSON("clone", http.MethodPost, "/api/voice-clone/clone", c.request(ctx).SetBody(req), &out)
	return out, err
}

// TTSRequest asks for plain text-to-speech.
type TTSRequest struct {
	Text         string  `json:"text"`
	Language     string  `json:"language"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
}

// TTSResult describes generated speech.
type TTSResult struct {
	Success        bool    `json:"success"`
	Message        string  `json:"message"`
	AudioURL       string  `json:"audio_url"`
	Duration       float64 `json:"duration"`
	SampleRate     int     `json:"sample_rate"`
	ProcessingTime float64 `json:"processing_time"`
	Model          string  `json:"model"`
	VoiceCloned    bool    `json:"voice_cloned"`
}

// Synthesize runs text-to-speech.
func (c *Client) Synthesize(ctx context.Context, req TTSRequest) (TTSResult, error) {
	if req.Language == "" {
		req.Language = "en"
	}
	var out TTSResult
	err := c.doJSON("synthesize", http.MethodPost, "/api/tts/generate", c.request(ctx).SetBody(req), &out)
	if err == nil && !out.Success {
		return out, &domain.ServiceError{Status: http.StatusOK, Detail: out.Message}
	}
	return out, err
}

// Download fetches a result locator, relative to the backend or absolute.
func (c *Client) Download(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, fmt.Errorf("download: empty locator")
	}
	resp, err := c.do("download", http.MethodGet, locator, c.request(ctx))
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doJSON("health", http.MethodGet, "/health", c.request(ctx), &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

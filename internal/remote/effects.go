package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// Output formats accepted by the effects processor.
var OutputFormats = []string{"wav", "mp3", "ogg", "flac"}

// EffectsInfo is what the processor reports alongside rendered audio.
type EffectsInfo struct {
	Audio   map[string]any `json:"audio,omitempty"`
	Applied map[string]any `json:"applied,omitempty"`
}

func effectsForm(p domain.EffectParameters) map[string]string {
	return map[string]string{
		"pitch_shift":      formatFloat(p.PitchShift),
		"speed_change":     formatFloat(p.SpeedChange),
		"robot_voice":      strconv.FormatBool(p.RobotVoice),
		"robot_intensity":  formatFloat(p.RobotIntensity),
		"echo":             strconv.FormatBool(p.Echo),
		"echo_delay":       formatFloat(p.EchoDelay),
		"echo_decay":       formatFloat(p.EchoDecay),
		"reverb":           strconv.FormatBool(p.Reverb),
		"reverb_room_size": formatFloat(p.ReverbRoomSize),
		"reverb_damping":   formatFloat(p.ReverbDamping),
		"normalize":        strconv.FormatBool(p.Normalize),
	}
}

// ApplyEffects renders the full artifact with p and returns the result.
func (c *Client) ApplyEffects(ctx context.Context, a *domain.Artifact, p domain.EffectParameters, format string) (*domain.Artifact, EffectsInfo, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = "wav"
	}
	form := effectsForm(p)
	form["output_format"] = format
	return c.renderEffects(ctx, "apply effects", "/api/voice-effects/apply", a, form, format)
}

// PreviewEffects renders at most limit of the artifact as WAV.
func (c *Client) PreviewEffects(ctx context.Context, a *domain.Artifact, p domain.EffectParameters, limit time.Duration) (*domain.Artifact, error) {
	form := effectsForm(p)
	if limit > 0 {
		form["duration_limit"] = strconv.Itoa(int(limit.Seconds()))
	}
	out, _, err := c.renderEffects(ctx, "preview effects", "/api/voice-effects/preview", a, form, "wav")
	return out, err
}

func (c *Client) renderEffects(ctx context.Context, op, path string, a *domain.Artifact, form map[string]string, format string) (*domain.Artifact, EffectsInfo, error) {
	if a == nil {
		return nil, EffectsInfo{}, &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no audio selected"}
	}
	r := multipartFile(c.request(ctx), "audio_file", a).SetFormData(form)
	resp, err := c.do(op, http.MethodPost, path, r)
	if err != nil {
		return nil, EffectsInfo{}, err
	}

	var info EffectsInfo
	if h := resp.Header().Get("X-Audio-Info"); h != "" {
		_ = json.Unmarshal([]byte(h), &info.Audio)
	}
	if h := resp.Header().Get("X-Effects-Applied"); h != "" {
		_ = json.Unmarshal([]byte(h), &info.Applied)
	}

	mt := resp.Header().Get("Content-Type")
	if mt == "" || strings.HasPrefix(mt, "application/octet-stream") {
		mt = "audio/" + format
	}
	name := domain.ArtifactFilename("processed", format, time.Now())
	c.log.Debug("%s: %d bytes", op, len(resp.Body()))
	return domain.NewArtifact(resp.Body(), mt, name, domain.SourceProcessed), info, nil
}

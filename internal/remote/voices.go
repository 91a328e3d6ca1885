package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// ListVoices returns the saved voices, newest first as the server orders them.
func (c *Client) ListVoices(ctx context.Context) ([]domain.SavedVoice, error) {
	var out []domain.SavedVoice
	if err := c.doJSON("list voices", http.MethodGet, "/api/voices", c.request(ctx), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveVoice uploads a reference sample under name.
func (c *Client) SaveVoice(ctx context.Context, a *domain.Artifact, name, description string) (domain.SavedVoice, error) {
	if a == nil {
		return domain.SavedVoice{}, &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no voice sample selected"}
	}
	r := multipartFile(c.request(ctx), "audio_file", a).SetFormData(map[string]string{
		"name":        name,
		"description": description,
	})
	var v domain.SavedVoice
	if err := c.doJSON("save voice", http.MethodPost, "/api/voices", r, &v); err != nil {
		return domain.SavedVoice{}, err
	}
	if v.ID == "" {
		return domain.SavedVoice{}, fmt.Errorf("save voice: response carried no id")
	}
	c.log.Info("saved voice %q as %s", name, v.ID)
	return v, nil
}

// DeleteVoice removes a saved voice.
func (c *Client) DeleteVoice(ctx context.Context, id string) error {
	_, err := c.do("delete voice", http.MethodDelete, "/api/voices/"+url.PathEscape(id), c.request(ctx))
	return err
}

// CloneSavedVoice synthesizes text with a saved voice.
func (c *Client) CloneSavedVoice(ctx context.Context, id, text string) (domain.CloneOutcome, error) {
	r := c.request(ctx).SetFormData(map[string]string{"text": text})
	var out domain.CloneOutcome
	if err := c.doJSON("clone voice", http.MethodPost, "/api/voices/"+url.PathEscape(id)+"/clone", r, &out); err != nil {
		return domain.CloneOutcome{}, err
	}
	return out, nil
}

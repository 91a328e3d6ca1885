package remote

import (
	"context"
	"net/http"
	"sort"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// Engine is one backend speech engine.
type Engine struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// ConversionType is one privacy conversion mode.
type ConversionType struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PrivacyLevel     string `json:"privacy_level"`
	PreservesEmotion bool   `json:"preserves_emotion"`
}

// Catalog wraps a list response. Offline is set when the list came from
// the built-in fallback instead of the backend.
type Catalog[T any] struct {
	Items   []T
	Offline bool
}

// EngineKind selects which engine list to fetch.
type EngineKind string

const (
	EnginesTTS EngineKind = "tts"
	EnginesSTT EngineKind = "stt"
)

// ListEngines fetches available speech engines.
func (c *Client) ListEngines(ctx context.Context, kind EngineKind) (Catalog[Engine], error) {
	path := "/api/tts/legacy/engines"
	if kind == EnginesSTT {
		path = "/api/stt/engines"
	}
	var out struct {
		Engines []Engine `json:"engines"`
	}
	err := c.doJSON("list engines", http.MethodGet, path, c.request(ctx), &out)
	if err != nil {
		return fallback(c, "engines", err, builtinEngines(kind))
	}
	return Catalog[Engine]{Items: out.Engines}, nil
}

// ListPresets fetches the effect presets, sorted by ID.
func (c *Client) ListPresets(ctx context.Context) (Catalog[domain.Preset], error) {
	var out struct {
		Presets map[string]domain.Preset `json:"presets"`
	}
	err := c.doJSON("list presets", http.MethodGet, "/api/voice-effects/effect-presets", c.request(ctx), &out)
	if err != nil {
		return fallback(c, "presets", err, BuiltinPresets())
	}
	items := make([]domain.Preset, 0, len(out.Presets))
	for id, p := range out.Presets {
		p.ID = id
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return Catalog[domain.Preset]{Items: items}, nil
}

// ListConversionTypes fetches the privacy conversion modes.
func (c *Client) ListConversionTypes(ctx context.Context) (Catalog[ConversionType], error) {
	var out struct {
		Types []ConversionType `json:"conversion_types"`
	}
	err := c.doJSON("list conversion types", http.MethodGet, "/api/privacy/conversion-types", c.request(ctx), &out)
	if err != nil {
		return fallback(c, "conversion types", err, builtinConversionTypes())
	}
	return Catalog[ConversionType]{Items: out.Types}, nil
}

// fallback returns the built-in list for network failures when offline
// catalogues are enabled. Service errors are always returned.
func fallback[T any](c *Client, what string, err error, builtin []T) (Catalog[T], error) {
	if !c.offlineCatalog || !domain.IsNetwork(err) {
		return Catalog[T]{}, err
	}
	c.log.Warn("backend unreachable, using built-in %s: %v", what, err)
	return Catalog[T]{Items: builtin, Offline: true}, nil
}

package domain

import (
	"fmt"
	"math"
	"strconv"
	"sync"
)

// EffectParameters are the knobs of the voice-effects processor. Field
// names in JSON match the backend's form fields.
type EffectParameters struct {
	PitchShift     float64 `json:"pitch_shift" toml:"pitch_shift"`
	SpeedChange    float64 `json:"speed_change" toml:"speed_change"`
	RobotVoice     bool    `json:"robot_voice" toml:"robot_voice"`
	RobotIntensity float64 `json:"robot_intensity" toml:"robot_intensity"`
	Echo           bool    `json:"echo" toml:"echo"`
	EchoDelay      float64 `json:"echo_delay" toml:"echo_delay"`
	EchoDecay      float64 `json:"echo_decay" toml:"echo_decay"`
	Reverb         bool    `json:"reverb" toml:"reverb"`
	ReverbRoomSize float64 `json:"reverb_room_size" toml:"reverb_room_size"`
	ReverbDamping  float64 `json:"reverb_damping" toml:"reverb_damping"`
	Normalize      bool    `json:"normalize" toml:"normalize"`
}

// Range is an inclusive numeric bound.
type Range struct{ Min, Max float64 }

func (r Range) contains(v float64) bool { return v >= r.Min && v <= r.Max }

// clamp forces v into range. NaN has no position, so it lands on Min.
func (r Range) clamp(v float64) float64 {
	if math.IsNaN(v) || v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Accepted parameter ranges.
var (
	PitchShiftRange     = Range{-12, 12}
	SpeedChangeRange    = Range{0.5, 2.0}
	RobotIntensityRange = Range{0, 1}
	EchoDelayRange      = Range{0.1, 1.0}
	EchoDecayRange      = Range{0.1, 0.9}
	ReverbRoomSizeRange = Range{0.1, 1.0}
	ReverbDampingRange  = Range{0.1, 1.0}
)

// DefaultEffects returns the processor's neutral settings.
func DefaultEffects() EffectParameters {
	return EffectParameters{
		PitchShift:     0,
		SpeedChange:    1.0,
		RobotIntensity: 0.5,
		EchoDelay:      0.3,
		EchoDecay:      0.5,
		ReverbRoomSize: 0.5,
		ReverbDamping:  0.5,
		Normalize:      true,
	}
}

type rangedField struct {
	name string
	val  *float64
	r    Range
}

func (p *EffectParameters) ranged() []rangedField {
	return []rangedField{
		{"pitch_shift", &p.PitchShift, PitchShiftRange},
		{"speed_change", &p.SpeedChange, SpeedChangeRange},
		{"robot_intensity", &p.RobotIntensity, RobotIntensityRange},
		{"echo_delay", &p.EchoDelay, EchoDelayRange},
		{"echo_decay", &p.EchoDecay, EchoDecayRange},
		{"reverb_room_size", &p.ReverbRoomSize, ReverbRoomSizeRange},
		{"reverb_damping", &p.ReverbDamping, ReverbDampingRange},
	}
}

// Validate reports the first field outside its range.
func (p EffectParameters) Validate() error {
	for _, f := range p.ranged() {
		if !f.r.contains(*f.val) {
			return fmt.Errorf("%s must be between %g and %g, got %g", f.name, f.r.Min, f.r.Max, *f.val)
		}
	}
	return nil
}

// Clamp returns a copy with every numeric field forced into range.
func (p EffectParameters) Clamp() EffectParameters {
	for _, f := range p.ranged() {
		*f.val = f.r.clamp(*f.val)
	}
	return p
}

// Set assigns one field by its JSON name. Numeric values are not
// range-checked; call Validate or Clamp afterwards.
func (p *EffectParameters) Set(name, value string) error {
	for _, f := range p.ranged() {
		if f.name == name {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s: %q is not a finite number", name, value)
			}
			*f.val = v
			return nil
		}
	}
	flags := map[string]*bool{
		"robot_voice": &p.RobotVoice,
		"echo":        &p.Echo,
		"reverb":      &p.Reverb,
		"normalize":   &p.Normalize,
	}
	if dst, ok := flags[name]; ok {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = v
		return nil
	}
	return fmt.Errorf("unknown effect parameter %q", name)
}

// PresetEffects lists the fields a preset sets. Nil fields keep the
// default value when the preset is applied.
type PresetEffects struct {
	PitchShift     *float64 `json:"pitch_shift,omitempty"`
	SpeedChange    *float64 `json:"speed_change,omitempty"`
	RobotVoice     *bool    `json:"robot_voice,omitempty"`
	RobotIntensity *float64 `json:"robot_intensity,omitempty"`
	Echo           *bool    `json:"echo,omitempty"`
	EchoDelay      *float64 `json:"echo_delay,omitempty"`
	EchoDecay      *float64 `json:"echo_decay,omitempty"`
	Reverb         *bool    `json:"reverb,omitempty"`
	ReverbRoomSize *float64 `json:"reverb_room_size,omitempty"`
	ReverbDamping  *float64 `json:"reverb_damping,omitempty"`
	Normalize      *bool    `json:"normalize,omitempty"`
}

// Preset is a named bundle of effect values applied atomically.
type Preset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Effects     PresetEffects `json:"effects"`
}

// Parameters resolves the preset on top of DefaultEffects.
func (p Preset) Parameters() EffectParameters {
	out := DefaultEffects()
	e := p.Effects
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setB := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&out.PitchShift, e.PitchShift)
	setF(&out.SpeedChange, e.SpeedChange)
	setB(&out.RobotVoice, e.RobotVoice)
	setF(&out.RobotIntensity, e.RobotIntensity)
	setB(&out.Echo, e.Echo)
	setF(&out.EchoDelay, e.EchoDelay)
	setF(&out.EchoDecay, e.EchoDecay)
	setB(&out.Reverb, e.Reverb)
	setF(&out.ReverbRoomSize, e.ReverbRoomSize)
	setF(&out.ReverbDamping, e.ReverbDamping)
	setB(&out.Normalize, e.Normalize)
	return out
}

// EffectEditor holds the parameters being edited plus the "last selected
// preset" marker. Any manual edit clears the marker, even one that
// happens to leave the values equal to the preset's.
type EffectEditor struct {
	mu       sync.Mutex
	params   EffectParameters
	selected string
}

// NewEffectEditor starts from DefaultEffects with no preset selected.
func NewEffectEditor() *EffectEditor {
	return &EffectEditor{params: DefaultEffects()}
}

// Params returns a snapshot of the current parameters.
func (e *EffectEditor) Params() EffectParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SelectedPreset returns the ID of the applied preset, or "".
func (e *EffectEditor) SelectedPreset() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Edit applies a manual change, clamps the result and clears the preset
// marker. It returns the new snapshot.
func (e *EffectEditor) Edit(fn func(p *EffectParameters)) EffectParameters {
	p, _ := e.Update(func(p *EffectParameters) error {
		fn(p)
		return nil
	})
	return p
}

// Update is Edit for changes that can fail. When fn returns an error the
// parameters and the preset marker are left as they were.
func (e *EffectEditor) Update(fn func(p *EffectParameters) error) (EffectParameters, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.params
	if err := fn(&next); err != nil {
		return e.params, err
	}
	e.params = next.Clamp()
	e.selected = ""
	return e.params, nil
}

// ApplyPreset replaces all parameters with the preset's values.
func (e *EffectEditor) ApplyPreset(p Preset) EffectParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p.Parameters().Clamp()
	e.selected = p.ID
	return e.params
}

// Reset returns to DefaultEffects.
func (e *EffectEditor) Reset() EffectParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = DefaultEffects()
	e.selected = ""
	return e.params
}

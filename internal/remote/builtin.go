package remote

import "github.com/hammamikhairi/vocalx/internal/domain"

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

// BuiltinPresets mirrors the backend's preset table.
func BuiltinPresets() []domain.Preset {
	return []domain.Preset{
		{ID: "chipmunk", Name: "Chipmunk Voice", Description: "High-pitched, fast voice like a chipmunk",
			Effects: domain.PresetEffects{PitchShift: fp(8), SpeedChange: fp(1.3), Normalize: bp(true)}},
		{ID: "darth_vader", Name: "Deep Dark Voice", Description: "Low, menacing voice with reverb",
			Effects: domain.PresetEffects{PitchShift: fp(-6), SpeedChange: fp(0.9), Reverb: bp(true),
				ReverbRoomSize: fp(0.8), ReverbDamping: fp(0.3), Normalize: bp(true)}},
		{ID: "echo_chamber", Name: "Echo Chamber", Description: "Voice with strong echo effect",
			Effects: domain.PresetEffects{Echo: bp(true), EchoDelay: fp(0.4), EchoDecay: fp(0.6),
				Reverb: bp(true), ReverbRoomSize: fp(0.9), Normalize: bp(true)}},
		{ID: "helium", Name: "Helium Voice", Description: "High-pitched helium balloon voice",
			Effects: domain.PresetEffects{PitchShift: fp(6), SpeedChange: fp(1.1), Normalize: bp(true)}},
		{ID: "robot", Name: "Robot Voice", Description: "Metallic, robotic voice effect",
			Effects: domain.PresetEffects{RobotVoice: bp(true), RobotIntensity: fp(0.7), PitchShift: fp(-2), Normalize: bp(true)}},
		{ID: "slow_motion", Name: "Slow Motion", Description: "Slow, deep voice effect",
			Effects: domain.PresetEffects{SpeedChange: fp(0.7), PitchShift: fp(-3), Normalize: bp(true)}},
	}
}

func builtinConversionTypes() []ConversionType {
	return []ConversionType{
		{ID: "anonymize", Name: "Voice Anonymization", Description: "Make voice unrecognizable while preserving speech clarity", PrivacyLevel: "High", PreservesEmotion: true},
		{ID: "male_to_female", Name: "Male to Female", Description: "Convert male voice to sound more feminine", PrivacyLevel: "Medium", PreservesEmotion: true},
		{ID: "female_to_male", Name: "Female to Male", Description: "Convert female voice to sound more masculine", PrivacyLevel: "Medium", PreservesEmotion: true},
		{ID: "pitch_shift", Name: "Pitch Shift", Description: "Alter voice pitch for basic anonymization", PrivacyLevel: "Low"},
		{ID: "robot", Name: "Robot Voice", Description: "Apply robotic voice effect for complete anonymization", PrivacyLevel: "Very High"},
		{ID: "whisper", Name: "Whisper Mode", Description: "Convert to whisper for privacy and intimacy", PrivacyLevel: "Medium", PreservesEmotion: true},
	}
}

// ValidConversionType reports whether the backend accepts id as a
// privacy conversion type.
func ValidConversionType(id string) bool {
	for _, t := range builtinConversionTypes() {
		if t.ID == id {
			return true
		}
	}
	return false
}

func builtinEngines(kind EngineKind) []Engine {
	if kind == EnginesSTT {
		return []Engine{{Name: "whisper", Description: "OpenAI Whisper speech recognition", Available: true}}
	}
	return []Engine{{Name: "chatterbox", Description: "Chatterbox multilingual TTS", Available: true}}
}

package domain

import "context"

// AudioFormat describes raw PCM coming off a capture device.
type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// CaptureConstraints are the requested device settings.
type CaptureConstraints struct {
	SampleRate int
	Channels   int
	// DeviceName selects a specific input; empty means the default.
	DeviceName string
}

// Stream is a live microphone stream. Chunks is closed when the stream
// ends, either through Close or a device failure.
type Stream interface {
	Chunks() <-chan []int16
	Format() AudioFormat
	Active() bool
	Close() error
}

// CaptureDevice hands out microphone streams. Acquire may block until the
// user or OS grants access.
type CaptureDevice interface {
	Acquire(ctx context.Context, c CaptureConstraints) (Stream, error)
}

// PlaybackSink is one playable surface.
type PlaybackSink interface {
	Play() error
	Pause() error
}

// VoiceStore persists saved reference voices.
type VoiceStore interface {
	List(ctx context.Context) ([]SavedVoice, error)
	Save(ctx context.Context, a *Artifact, name, description string) (SavedVoice, error)
	Delete(ctx context.Context, id string) error
	CloneWithText(ctx context.Context, id, text string) (CloneOutcome, error)
}

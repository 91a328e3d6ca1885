package domain

import (
	"fmt"
	"time"
)

// SourceKind records where an artifact came from.
type SourceKind int

const (
	SourceRecorded SourceKind = iota
	SourceUploaded
	SourceProcessed
)

// String returns a human-readable source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceRecorded:
		return "recorded"
	case SourceUploaded:
		return "uploaded"
	case SourceProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// Artifact is a finished audio or video payload ready for upload,
// playback or download. It is immutable once created: Data returns a
// copy so callers cannot modify the bytes behind another consumer.
type Artifact struct {
	data      []byte
	mimeType  string
	filename  string
	source    SourceKind
	createdAt time.Time
}

// NewArtifact copies data into a new artifact.
func NewArtifact(data []byte, mimeType, filename string, source SourceKind) *Artifact {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Artifact{
		data:      buf,
		mimeType:  mimeType,
		filename:  filename,
		source:    source,
		createdAt: time.Now(),
	}
}

// Data returns a copy of the payload.
func (a *Artifact) Data() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// MIMEType returns the payload's media type, e.g. "audio/wav".
func (a *Artifact) MIMEType() string { return a.mimeType }

// SizeBytes returns the payload length.
func (a *Artifact) SizeBytes() int64 { return int64(len(a.data)) }

// SuggestedFilename returns the name to use for uploads and downloads.
func (a *Artifact) SuggestedFilename() string { return a.filename }

// Source returns where the artifact came from.
func (a *Artifact) Source() SourceKind { return a.source }

// CreatedAt returns the creation time.
func (a *Artifact) CreatedAt() time.Time { return a.createdAt }

// String implements fmt.Stringer for log lines.
func (a *Artifact) String() string {
	return fmt.Sprintf("%s (%s, %d bytes, %s)", a.filename, a.mimeType, len(a.data), a.source)
}

// ArtifactFilename builds "<kind>-<unix millis>.<ext>", the naming used
// for recordings and downloaded results.
func ArtifactFilename(kind, ext string, at time.Time) string {
	return fmt.Sprintf("%s-%d.%s", kind, at.UnixMilli(), ext)
}

// Package validate holds the pre-flight checks run on a file before it is
// uploaded or played. Checks are pure and never touch the network.
package validate

import (
	"fmt"
	"strings"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

const mb = 1024 * 1024

// Constraints describe what a feature accepts. A type passes if it matches
// any prefix or any exact entry; with neither set every type passes.
type Constraints struct {
	Name            string
	MaxBytes        int64
	AllowedPrefixes []string
	AllowedTypes    []string
}

// Feature ceilings.
var (
	AudioUpload = Constraints{
		Name:            "audio",
		MaxBytes:        25 * mb,
		AllowedPrefixes: []string{"audio/"},
	}
	CloneSample = Constraints{
		Name:            "voice sample",
		MaxBytes:        50 * mb,
		AllowedPrefixes: []string{"audio/"},
	}
	VideoUpload = Constraints{
		Name:            "video",
		MaxBytes:        100 * mb,
		AllowedPrefixes: []string{"video/"},
	}
	EffectsUpload = Constraints{
		Name:     "effects input",
		MaxBytes: 50 * mb,
		AllowedTypes: []string{
			"audio/wav", "audio/x-wav", "audio/wave",
			"audio/mpeg", "audio/mp3",
			"audio/ogg",
			"audio/flac", "audio/x-flac",
			"audio/mp4", "audio/x-m4a", "audio/m4a",
		},
	}
)

// WithMaxBytes returns a copy with a different ceiling. Non-positive
// values keep the original.
func (c Constraints) WithMaxBytes(n int64) Constraints {
	if n > 0 {
		c.MaxBytes = n
	}
	return c
}

// File is the metadata a check needs.
type File struct {
	Name     string
	Path     string
	Size     int64
	MIMEType string
}

// FromArtifact describes an in-memory artifact.
func FromArtifact(a *domain.Artifact) *File {
	if a == nil {
		return nil
	}
	return &File{Name: a.SuggestedFilename(), Size: a.SizeBytes(), MIMEType: a.MIMEType()}
}

// Result is the outcome of Validate.
type Result struct {
	OK     bool
	Reason domain.RejectReason
	Detail string
}

// Err returns nil for an accepted file and a *domain.ValidationError
// otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &domain.ValidationError{Reason: r.Reason, Detail: r.Detail}
}

// Validate checks presence, size and type, in that order.
func Validate(f *File, c Constraints) Result {
	if f == nil || (f.Name == "" && f.Path == "") {
		return reject(domain.ReasonMissing, "no file selected")
	}
	if f.Size <= 0 {
		return reject(domain.ReasonMissing, fmt.Sprintf("%s is empty", displayName(f)))
	}
	if c.MaxBytes > 0 && f.Size > c.MaxBytes {
		return reject(domain.ReasonTooLarge, fmt.Sprintf("%s is %s, %s limit is %s",
			displayName(f), humanSize(f.Size), c.label(), humanSize(c.MaxBytes)))
	}
	if !c.allows(f.MIMEType) {
		mt := f.MIMEType
		if mt == "" {
			mt = "unknown type"
		}
		return reject(domain.ReasonUnsupportedType, fmt.Sprintf("%s (%s) is not a supported %s file",
			displayName(f), mt, c.label()))
	}
	return Result{OK: true}
}

func reject(r domain.RejectReason, detail string) Result {
	return Result{Reason: r, Detail: detail}
}

func (c Constraints) label() string {
	if c.Name == "" {
		return "upload"
	}
	return c.Name
}

func (c Constraints) allows(mimeType string) bool {
	if len(c.AllowedPrefixes) == 0 && len(c.AllowedTypes) == 0 {
		return true
	}
	mt := normalizeMIME(mimeType)
	if mt == "" {
		return false
	}
	for _, p := range c.AllowedPrefixes {
		if strings.HasPrefix(mt, p) {
			return true
		}
	}
	for _, t := range c.AllowedTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// normalizeMIME lowercases and drops parameters ("audio/webm;codecs=opus").
func normalizeMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func displayName(f *File) string {
	if f.Name != "" {
		return f.Name
	}
	return f.Path
}

func humanSize(n int64) string {
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return fmt.Sprintf("%dKB", n/1024)
}

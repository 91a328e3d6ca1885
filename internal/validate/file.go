package validate

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// sniffLen is how much of a file filetype needs to recognise it.
const sniffLen = 262

// mediaTypes covers extensions that system MIME tables often miss.
var mediaTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
}

// LoadFile stats path and determines its media type. Content sniffing
// wins over the extension so a renamed file is still recognised.
func LoadFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f := &File{Name: filepath.Base(path), Path: path, Size: info.Size()}

	mt, err := sniff(path)
	if err != nil {
		return nil, err
	}
	if mt == "" {
		mt = typeByExtension(path)
	}
	f.MIMEType = mt
	return f, nil
}

// ReadArtifact loads an accepted file into memory.
func ReadArtifact(f *File, source domain.SourceKind) (*domain.Artifact, error) {
	if f == nil || f.Path == "" {
		return nil, &domain.ValidationError{Reason: domain.ReasonMissing, Detail: "no file path"}
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return domain.NewArtifact(data, f.MIMEType, f.Name, source), nil
}

// Open loads path, validates it against c and reads it into an artifact.
// Oversized or unsupported files are rejected before their bytes are read.
func Open(path string, c Constraints) (*domain.Artifact, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.resolveContainer(f)
	if err := Validate(f, c).Err(); err != nil {
		return nil, err
	}
	return ReadArtifact(f, domain.SourceUploaded)
}

// audioContainers are sniffed as video but just as often hold a single
// audio track.
var audioContainers = map[string]string{
	"video/webm": "audio/webm",
}

// resolveContainer relabels an ambiguous container as audio when c only
// accepts audio.
func (c Constraints) resolveContainer(f *File) {
	mt := normalizeMIME(f.MIMEType)
	alt, ok := audioContainers[mt]
	if !ok || c.allows(mt) || !c.allows(alt) {
		return
	}
	f.MIMEType = alt
}

func sniff(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "", nil
	}
	return kind.MIME.Value, nil
}

func typeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := mediaTypes[ext]; ok {
		return mt
	}
	return normalizeMIME(mime.TypeByExtension(ext))
}

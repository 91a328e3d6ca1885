package capture

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/hammamikhairi/vocalx/internal/domain"
)

// EncodeWAV renders 16-bit PCM samples as a WAV file. The encoder needs
// a seekable writer to patch the header sizes, so it writes through a
// temp file in dir (os.TempDir when empty) that is removed afterwards.
func EncodeWAV(dir string, samples []int16, f domain.AudioFormat) ([]byte, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("invalid audio format %+v", f)
	}

	tmp, err := os.CreateTemp(dir, "vocalx-rec-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(tmp, f.SampleRate, 16, f.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}

	out, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("read temp wav: %w", err)
	}
	return out, nil
}

package playback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/go-audio/wav"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

// Output is the process-wide audio output. oto allows one context per
// process, so every sink shares it.
type Output struct {
	ctx        *oto.Context
	log        *logger.Logger
	sampleRate int
	channels   int
}

// NewOutput opens the audio device for 16-bit PCM at the given format.
func NewOutput(log *logger.Logger, sampleRate, channels int) (*Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, &domain.DeviceError{Op: "open output", Err: err}
	}
	<-readyChan

	log.Debug("audio output initialized (rate=%d, channels=%d)", sampleRate, channels)
	return &Output{ctx: ctx, log: log, sampleRate: sampleRate, channels: channels}, nil
}

// NewSink prepares a WAV artifact for playback on surface. notify is
// called from a background goroutine when playback ends on its own.
func (o *Output) NewSink(surface domain.Surface, a *domain.Artifact, notify func(Event)) (*OtoSink, error) {
	data := a.Data()
	rate, chans, err := WAVFormat(data)
	if err != nil {
		return nil, err
	}
	if rate != o.sampleRate || chans != o.channels {
		return nil, fmt.Errorf("%s is %d Hz/%d ch, output is %d Hz/%d ch",
			a.SuggestedFilename(), rate, chans, o.sampleRate, o.channels)
	}
	pcm, err := extractPCM(data)
	if err != nil {
		return nil, err
	}
	return &OtoSink{
		out:     o,
		surface: surface,
		pcm:     pcm,
		notify:  notify,
	}, nil
}

// OtoSink plays one artifact. Pause keeps the position; Play after the
// end starts over.
type OtoSink struct {
	out     *Output
	surface domain.Surface
	pcm     []byte
	notify  func(Event)

	mu      sync.Mutex
	player  *oto.Player
	playing bool
	ended   bool
	watch   uint64
}

var _ domain.PlaybackSink = (*OtoSink)(nil)

// Play starts or resumes playback. Non-blocking.
func (s *OtoSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		s.player = s.out.ctx.NewPlayer(bytes.NewReader(s.pcm))
	} else if s.ended {
		if _, err := s.player.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
	}
	s.ended = false
	s.playing = true
	s.watch++
	s.player.Play()
	go s.wait(s.player, s.watch)

	s.out.log.Debug("audio player: %s playing %d bytes of PCM", s.surface, len(s.pcm))
	return nil
}

// Pause interrupts playback. Safe when nothing is playing.
func (s *OtoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil || !s.playing {
		return nil
	}
	s.playing = false
	s.watch++
	s.player.Pause()
	s.out.log.Debug("audio player: %s interrupted", s.surface)
	return nil
}

// wait polls until the player drains, then reports Ended or Failed
// unless the sink was paused or restarted in the meantime.
func (s *OtoSink) wait(p *oto.Player, id uint64) {
	for p.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	s.mu.Lock()
	if s.watch != id {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.ended = true
	s.mu.Unlock()

	ev := Event{Surface: s.surface, Kind: Ended}
	if err := p.Err(); err != nil {
		ev = Event{Surface: s.surface, Kind: Failed, Err: err}
	}
	if s.notify != nil {
		s.notify(ev)
	}
}

// WAVFormat reads the sample rate and channel count of a 16-bit WAV.
func WAVFormat(data []byte) (int, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return 0, 0, errors.New("not a valid WAV file")
	}
	if d.BitDepth != 16 {
		return 0, 0, fmt.Errorf("unsupported bit depth %d", d.BitDepth)
	}
	return int(d.SampleRate), int(d.NumChans), nil
}

// extractPCM strips the WAV/RIFF header and returns raw PCM data.
func extractPCM(data []byte) ([]byte, error) {
	if len(data) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	pos := 12
	for pos < len(data)-8 {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(data) {
				end = len(data)
			}
			return data[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	return nil, errors.New("data chunk not found in WAV")
}

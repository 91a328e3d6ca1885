package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
)

const (
	defaultSampleRate = 16000
	defaultQueueCap   = 64
	maxChannels       = 2
)

// MalgoDevice opens microphones through miniaudio.
type MalgoDevice struct {
	log      *logger.Logger
	queueCap int
}

// DeviceOption configures a MalgoDevice.
type DeviceOption func(*MalgoDevice)

// WithQueueCap sets how many chunks may wait for the reader before new
// ones are dropped.
func WithQueueCap(n int) DeviceOption {
	return func(d *MalgoDevice) {
		if n > 0 {
			d.queueCap = n
		}
	}
}

// NewMalgoDevice creates a capture device backed by the system's default
// audio backend.
func NewMalgoDevice(log *logger.Logger, opts ...DeviceOption) *MalgoDevice {
	d := &MalgoDevice{log: log.Named("malgo"), queueCap: defaultQueueCap}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ domain.CaptureDevice = (*MalgoDevice)(nil)

// Acquire opens and starts an S16 capture stream with the requested
// channel count (mono when unset). If ctx is done by
// the time the device is running, the device is released again and the
// context error returned.
func (d *MalgoDevice) Acquire(ctx context.Context, c domain.CaptureConstraints) (domain.Stream, error) {
	rate := c.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	if channels > maxChannels {
		return nil, &domain.DeviceError{Op: "open", Err: fmt.Errorf("%d channels requested, at most %d supported", channels, maxChannels)}
	}

	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		d.log.Debug("%s", msg)
	})
	if err != nil {
		return nil, &domain.DeviceError{Op: "init", Err: err}
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(rate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(channels)
	devCfg.Alsa.NoMMap = 1

	if c.DeviceName != "" {
		infos, err := mCtx.Devices(malgo.Capture)
		if err != nil {
			freeContext(mCtx)
			return nil, &domain.DeviceError{Op: "enumerate", Err: err}
		}
		found := false
		for i := range infos {
			if infos[i].Name() == c.DeviceName {
				devCfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeContext(mCtx)
			return nil, &domain.DeviceError{Op: "open", Err: fmt.Errorf("no input device named %q", c.DeviceName)}
		}
	}

	s := &malgoStream{
		mCtx:   mCtx,
		chunks: make(chan []int16, d.queueCap),
		format: domain.AudioFormat{SampleRate: rate, Channels: channels, BitDepth: 16},
		log:    d.log,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			n := len(raw) / 2
			pcm := make([]int16, n)
			for i := 0; i < n; i++ {
				pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			s.push(pcm)
		},
		Stop: func() {
			s.finish()
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		freeContext(mCtx)
		return nil, &domain.DeviceError{Op: "open", Err: err}
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mCtx)
		return nil, &domain.DeviceError{Op: "start", Err: err}
	}
	s.active.Store(true)
	d.log.Debug("capture started (rate=%d, channels=%d, queue=%d)", rate, channels, d.queueCap)

	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func freeContext(mCtx *malgo.AllocatedContext) {
	_ = mCtx.Uninit()
	mCtx.Free()
}

// malgoStream owns one started device until Close.
type malgoStream struct {
	mCtx   *malgo.AllocatedContext
	device *malgo.Device
	format domain.AudioFormat
	log    *logger.Logger

	active atomic.Bool
	drops  atomic.Int64

	mu        sync.Mutex
	chunks    chan []int16
	finished  bool
	closeOnce sync.Once
}

func (s *malgoStream) Chunks() <-chan []int16     { return s.chunks }
func (s *malgoStream) Format() domain.AudioFormat { return s.format }
func (s *malgoStream) Active() bool               { return s.active.Load() }

func (s *malgoStream) push(pcm []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.chunks <- pcm:
	default:
		s.drops.Add(1)
	}
}

// finish closes the chunk channel once. Called on Close and when the
// backend stops the device on its own.
func (s *malgoStream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.active.Store(false)
	close(s.chunks)
}

var errNotStarted = errors.New("device was never started")

// Close stops the device and frees the backend context.
func (s *malgoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.device == nil {
			err = errNotStarted
			return
		}
		if stopErr := s.device.Stop(); stopErr != nil {
			err = &domain.DeviceError{Op: "stop", Err: stopErr}
		}
		s.device.Uninit()
		freeContext(s.mCtx)
		s.finish()
		if n := s.drops.Load(); n > 0 {
			s.log.Warn("dropped %d audio chunks", n)
		}
		s.log.Debug("capture released")
	})
	return err
}

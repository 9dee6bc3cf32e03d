package workbench

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"

	"github.com/alkime/workbench/config"
	"github.com/alkime/workbench/device"
)

// AudioFunc is the user audio routine, invoked once per hardware
// block with interleaved float32 samples. It must fill exactly
// frames × outChannels output samples before returning and must not
// block.
type AudioFunc func(input, output []float32, frames uint32, user any)

// audioBackend abstracts the native audio runtime so engine tests can
// drive blocks without hardware. close terminates the native
// subsystem.
type audioBackend interface {
	open(params streamParams, onBlock blockFunc) (audioStream, error)
	close() error
}

type audioStream interface {
	start() error
	stop() error
	close() error
}

type streamParams struct {
	input      device.Handle
	output     device.Handle
	withInput  bool
	withOutput bool

	inChannels       int
	outChannels      int
	sampleRate       float64
	blockSize        uint32
	suggestedLatency float64
	flags            uint32
}

type audioState uint8

const (
	audioUninitialized audioState = iota
	audioOpened
	audioRunning
	audioClosed
)

// AudioEngine owns the audio stream and its parameters. While running,
// every hardware block first services the MIDI tick (when one is
// attached) and then the user audio routine; see bridge.go.
type AudioEngine struct {
	cfg     *config.Config
	routine AudioFunc
	user    any

	// tick is the MIDI pre-block hook. It is nil when the MIDI engine
	// drives its own clock or no MIDI routine is registered.
	tick func(timestamp int32)

	backend audioBackend
	stream  audioStream
	state   audioState

	inChannels  int
	outChannels int
	inSamples   []float32
	outSamples  []float32
	frameClock  uint64
}

func newAudioEngine(cfg *config.Config, routine AudioFunc, user any, backend audioBackend) *AudioEngine {
	return &AudioEngine{
		cfg:     cfg,
		routine: routine,
		user:    user,
		backend: backend,
	}
}

func (e *AudioEngine) initialize(resolver *device.Resolver) error {
	if e.state != audioUninitialized {
		return nil
	}
	slog.Debug("audio init start")

	e.inChannels = e.cfg.InChannelCount
	e.outChannels = e.cfg.OutChannelCount

	params := streamParams{
		withInput:        !e.cfg.HasFlag(config.DisableAudioIn),
		withOutput:       !e.cfg.HasFlag(config.DisableAudioOut),
		inChannels:       e.inChannels,
		outChannels:      e.outChannels,
		sampleRate:       e.cfg.SampleRate,
		blockSize:        e.cfg.BlockSize,
		suggestedLatency: e.cfg.SuggestedLatency,
		flags:            e.cfg.AudioFlags,
	}
	if params.withInput {
		params.input = resolver.Resolve(e.cfg.AudioInput, device.Input, e.inChannels)
	}
	if params.withOutput {
		params.output = resolver.Resolve(e.cfg.AudioOutput, device.Output, e.outChannels)
	}

	// Scratch buffers for one block; the callback never allocates.
	e.inSamples = make([]float32, int(e.cfg.BlockSize)*e.inChannels)
	e.outSamples = make([]float32, int(e.cfg.BlockSize)*e.outChannels)
	e.frameClock = 0

	stream, err := e.backend.open(params, e.onBlock)
	if err != nil {
		slog.Error("could not open audio stream", "error", err)
		e.deinitialize()
		return err
	}
	e.stream = stream
	e.state = audioOpened

	if err := stream.start(); err != nil {
		slog.Error("could not start audio stream", "error", err)
		e.deinitialize()
		return err
	}
	e.state = audioRunning

	slog.Debug("audio init finish")
	return nil
}

// deinitialize stops and closes the stream, then terminates the native
// runtime. Each step logs its own failure and the remaining steps
// still run; calling it twice is safe.
func (e *AudioEngine) deinitialize() {
	if e.stream != nil {
		if err := e.stream.stop(); err != nil {
			slog.Error("could not stop audio stream", "error", err)
		}
		if err := e.stream.close(); err != nil {
			slog.Error("could not close audio stream", "error", err)
		}
		e.stream = nil
	}
	if e.backend != nil {
		if err := e.backend.close(); err != nil {
			slog.Error("could not terminate audio runtime", "error", err)
		}
		e.backend = nil
	}
	e.inSamples = nil
	e.outSamples = nil
	e.state = audioClosed
}

// malgo implementation of audioBackend.

type malgoBackend struct {
	ctx  *malgo.AllocatedContext
	enum *device.AudioEnumerator
	dev  *malgo.Device
}

func newMalgoBackend() (*malgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio runtime: %w", err)
	}
	return &malgoBackend{ctx: ctx, enum: device.NewAudioEnumerator(ctx)}, nil
}

func (b *malgoBackend) open(params streamParams, onBlock blockFunc) (audioStream, error) {
	devType := malgo.Duplex
	switch {
	case !params.withInput && !params.withOutput:
		return nil, fmt.Errorf("both audio directions disabled")
	case !params.withInput:
		devType = malgo.Playback
	case !params.withOutput:
		devType = malgo.Capture
	}

	devCnf := malgo.DefaultDeviceConfig(devType)
	devCnf.SampleRate = uint32(params.sampleRate)
	if params.blockSize > 0 {
		devCnf.PeriodSizeInFrames = params.blockSize
	} else if params.suggestedLatency > 0 {
		devCnf.PeriodSizeInMilliseconds = uint32(params.suggestedLatency * 1000)
	}

	shareMode := malgo.Shared
	if params.flags&config.AudioExclusive != 0 {
		shareMode = malgo.Exclusive
	}

	devCnf.Capture.Format = malgo.FormatF32
	devCnf.Capture.Channels = uint32(params.inChannels)
	devCnf.Capture.ShareMode = shareMode
	if id := b.enum.NativeID(device.Input, params.input.Index); id != nil {
		devCnf.Capture.DeviceID = id.Pointer()
	}

	devCnf.Playback.Format = malgo.FormatF32
	devCnf.Playback.Channels = uint32(params.outChannels)
	devCnf.Playback.ShareMode = shareMode
	if id := b.enum.NativeID(device.Output, params.output.Index); id != nil {
		devCnf.Playback.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, input []byte, frames uint32) {
			onBlock(output, input, frames)
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, devCnf, callbacks)
	if err != nil {
		return nil, fmt.Errorf("open audio stream: %w", err)
	}
	b.dev = dev
	return &malgoStream{dev: dev}, nil
}

func (b *malgoBackend) close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

type malgoStream struct {
	dev *malgo.Device
}

func (s *malgoStream) start() error {
	return s.dev.Start()
}

// stop blocks until the runtime guarantees no further data callback.
func (s *malgoStream) stop() error {
	if !s.dev.IsStarted() {
		return nil
	}
	return s.dev.Stop()
}

func (s *malgoStream) close() error {
	s.dev.Uninit()
	return nil
}

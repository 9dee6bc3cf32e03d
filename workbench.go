// Package workbench is a runtime bridge that runs one user audio
// routine and one user MIDI routine against live hardware devices.
// Configuration is resolved once from layered sources, device names
// are resolved to concrete endpoints with fallback to the system
// default, and all processing happens inside the two callback domains
// until Deinit unwinds everything in reverse order.
//
// When both routines are registered, the MIDI tick runs from inside
// the audio callback so MIDI processing stays phase-locked with the
// audio block boundary. Only when no audio routine is registered does
// the MIDI engine drive its own millisecond timer.
package workbench

import (
	"log/slog"

	"github.com/alkime/workbench/config"
	"github.com/alkime/workbench/device"
	"github.com/alkime/workbench/internal/logger"
)

// Session owns the resolved configuration, the user routines and both
// engines. One session per process is the intended usage; create it
// with Init and release it with Deinit.
type Session struct {
	cfg   *config.Config
	audio *AudioEngine
	midi  *MIDIEngine
}

// Init resolves the configuration from args (plus environment and an
// optional config file), installs the process logger, and starts the
// MIDI and audio engines for whichever routines are non-nil. A native
// failure during startup tears down everything already acquired and
// is returned; configuration and device-name problems only warn.
func Init(args []string, audioFn AudioFunc, midiFn MIDIFunc, user any, opts ...config.Option) (*Session, error) {
	cfg, err := config.Resolve(args, opts...)
	if err != nil {
		return nil, err
	}
	return InitConfig(cfg, audioFn, midiFn, user)
}

// InitConfig starts the engines against an already resolved
// configuration. The configuration is borrowed for the lifetime of the
// session; its setters must not be used until after Deinit.
func InitConfig(cfg *config.Config, audioFn AudioFunc, midiFn MIDIFunc, user any) (*Session, error) {
	logger.Setup(cfg.LogLevel)
	if cfg.LogLevel > 2 {
		slog.Info("resolved configuration\n" + cfg.String())
	}

	s := &Session{cfg: cfg}

	audioActive := audioFn != nil && !cfg.HasFlag(config.DisableAudio)

	if midiFn != nil && !cfg.HasFlag(config.DisableMIDI) {
		access, err := newGomidiAccess()
		if err != nil {
			slog.Error("could not initialize midi runtime", "error", err)
			return nil, err
		}
		// The audio callback drives the MIDI tick whenever audio is
		// active; the standalone timer exists only without audio.
		s.midi = newMIDIEngine(cfg, midiFn, user, access, !audioActive)
		if err := s.midi.initialize(device.NewResolver(access.enum)); err != nil {
			return nil, err
		}
	}

	if audioActive {
		backend, err := newMalgoBackend()
		if err != nil {
			slog.Error("could not initialize audio runtime", "error", err)
			s.Deinit()
			return nil, err
		}
		s.audio = newAudioEngine(cfg, audioFn, user, backend)
		if s.midi != nil {
			s.audio.tick = s.midi.Tick
		}
		if err := s.audio.initialize(device.NewResolver(backend.enum)); err != nil {
			s.Deinit()
			return nil, err
		}
	}

	return s, nil
}

// Config returns the session's resolved configuration. Setters on it
// must only be used before Init or after Deinit.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Deinit stops both engines and releases their resources, audio first
// so no further MIDI tick can arrive from the audio callback. Calling
// it more than once is safe; after it returns no callback will run.
func (s *Session) Deinit() {
	if s == nil {
		return
	}
	if s.audio != nil {
		s.audio.deinitialize()
	}
	if s.midi != nil {
		s.midi.deinitialize()
	}
}

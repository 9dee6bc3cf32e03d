// Package config resolves the workbench runtime configuration from
// layered sources: built-in defaults, WORKBENCH_* environment
// variables, an optional "key: value" file, and --key=value command
// line tokens, in increasing precedence. One Config per process is the
// intended usage; the instance is passed explicitly to the engines and
// never hidden in a package global.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "WORKBENCH"

// Config is the resolved configuration record. All fields are plain
// data; the user routines and their context live on the Session that
// owns this Config. Setters must not be called while a stream is
// running.
type Config struct {
	MIDIInput         string  `envconfig:"MIDI_INPUT"`
	MIDIOutput        string  `envconfig:"MIDI_OUTPUT"`
	MIDIOutputLatency int     `envconfig:"MIDI_OUTPUT_LATENCY"`
	MIDIBufferSize    int     `envconfig:"MIDI_BUFFER_SIZE"`
	AudioInput        string  `envconfig:"AUDIO_INPUT"`
	AudioOutput       string  `envconfig:"AUDIO_OUTPUT"`
	SampleRate        float64 `envconfig:"SAMPLE_RATE"`
	BlockSize         uint32  `envconfig:"BLOCK_SIZE"`
	AudioFlags        uint32  `envconfig:"AUDIO_FLAGS"`
	InChannelCount    int     `envconfig:"IN_CHANNEL_COUNT"`
	OutChannelCount   int     `envconfig:"OUT_CHANNEL_COUNT"`
	SuggestedLatency  float64 `envconfig:"SUGGESTED_LATENCY"`
	Flags             uint32  `envconfig:"FLAGS"`
	LogLevel          uint8   `envconfig:"LOG_LEVEL"`
}

// Feature flag bits for the Flags word.
const (
	DisableMIDI uint32 = 1 << iota
	DisableAudio
	DisableMIDIIn
	DisableMIDIOut
	DisableAudioIn
	DisableAudioOut
)

// Bits for the AudioFlags word, passed through to the stream backend.
const (
	AudioExclusive uint32 = 1 << iota
)

// Applier converts one raw assignment into a typed field value. The
// default applier parses per the descriptor kind; hosts that need
// different conversion rules inject their own with WithApplier at
// resolution time.
type Applier interface {
	Apply(c *Config, f Field, raw string) error
}

type defaultApplier struct{}

func (defaultApplier) Apply(c *Config, f Field, raw string) error {
	return f.apply(c, raw)
}

// Option adjusts how Resolve works.
type Option func(*resolver)

// WithApplier replaces the field conversion strategy.
func WithApplier(a Applier) Option {
	return func(r *resolver) { r.apply = a }
}

// WithoutEnv skips the .env file and WORKBENCH_* environment layer.
func WithoutEnv() Option {
	return func(r *resolver) { r.skipEnv = true }
}

type resolver struct {
	apply   Applier
	skipEnv bool
}

// Default returns a Config populated with the descriptor defaults.
func Default() *Config {
	c := &Config{}
	for _, f := range Fields {
		// Defaults come from the same table and the same converter as
		// every other source; a failure here is a descriptor bug.
		if err := f.apply(c, f.Default); err != nil {
			panic(fmt.Sprintf("config: bad default for %s: %v", f.Name, err))
		}
	}
	return c
}

// Resolve builds a Config from built-in defaults, the environment, an
// optional config file (selected by a --config=<path> token) and the
// remaining command line tokens, in that order of precedence. Unknown
// fields and unparseable values are reported as warnings and skipped;
// Resolve itself only fails on a broken descriptor table.
func Resolve(args []string, opts ...Option) (*Config, error) {
	r := resolver{apply: defaultApplier{}}
	for _, o := range opts {
		o(&r)
	}

	cfg := Default()

	if !r.skipEnv {
		// .env is optional; absence is the normal case.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not load .env file", "error", err)
		}
		if err := envconfig.Process(envPrefix, cfg); err != nil {
			slog.Warn("environment override skipped", "error", err)
		}
	}

	cliAssigns, configFile := ParseArgs(args)
	if configFile != "" {
		fileAssigns, err := ReadFile(configFile)
		if err != nil {
			slog.Warn("could not read config file", "path", configFile, "error", err)
		}
		r.merge(cfg, fileAssigns)
	}
	r.merge(cfg, cliAssigns)

	return cfg, nil
}

// Merge applies raw assignments to cfg with the default conversion
// strategy. Later assignments overwrite earlier ones; unknown names
// and bad values warn and are skipped.
func Merge(cfg *Config, assigns []Assignment) {
	r := resolver{apply: defaultApplier{}}
	r.merge(cfg, assigns)
}

func (r *resolver) merge(cfg *Config, assigns []Assignment) {
	for _, a := range assigns {
		f, ok := fieldByName(a.Name)
		if !ok {
			slog.Warn("unknown configuration field", "name", a.Name)
			continue
		}
		if err := r.apply.Apply(cfg, f, a.Value); err != nil {
			slog.Warn("bad configuration value", "name", a.Name, "value", a.Value, "error", err)
		}
	}
}

// Typed setters for programmatic override after resolution. They are
// not safe to call concurrently with an active stream.

func (c *Config) SetMIDIInput(name string)       { c.MIDIInput = strings.Clone(name) }
func (c *Config) SetMIDIOutput(name string)      { c.MIDIOutput = strings.Clone(name) }
func (c *Config) SetMIDIOutputLatency(ms int)    { c.MIDIOutputLatency = ms }
func (c *Config) SetMIDIBufferSize(size int)     { c.MIDIBufferSize = size }
func (c *Config) SetAudioInput(name string)      { c.AudioInput = strings.Clone(name) }
func (c *Config) SetAudioOutput(name string)     { c.AudioOutput = strings.Clone(name) }
func (c *Config) SetSampleRate(rate float64)     { c.SampleRate = rate }
func (c *Config) SetBlockSize(frames uint32)     { c.BlockSize = frames }
func (c *Config) SetAudioFlags(flags uint32)     { c.AudioFlags = flags }
func (c *Config) SetInChannelCount(n int)        { c.InChannelCount = n }
func (c *Config) SetOutChannelCount(n int)       { c.OutChannelCount = n }
func (c *Config) SetSuggestedLatency(s float64)  { c.SuggestedLatency = s }
func (c *Config) SetLogLevel(level uint8)        { c.LogLevel = level }

// SetFlags sets the given feature flag bits.
func (c *Config) SetFlags(mask uint32) { c.Flags |= mask }

// ClearFlags clears the given feature flag bits.
func (c *Config) ClearFlags(mask uint32) { c.Flags &^= mask }

// HasFlag reports whether all bits in mask are set.
func (c *Config) HasFlag(mask uint32) bool { return c.Flags&mask == mask }

// String renders the grouped MIDI/audio summary shown at verbose log
// levels.
func (c *Config) String() string {
	return fmt.Sprintf("Config:\n"+
		"  MIDI:\n"+
		"    midi_input: \t%s\n"+
		"    midi_output: \t%s\n"+
		"    midi_output_ltc: \t%d\n"+
		"    midi_buffer_size: \t%d\n"+
		"  AUDIO:\n"+
		"    audio_input: \t%s\n"+
		"    audio_output: \t%s\n"+
		"    sample_rate: \t%f\n"+
		"    block_size: \t%d\n"+
		"    channels(i/o): \t%d/%d",
		c.MIDIInput, c.MIDIOutput, c.MIDIOutputLatency, c.MIDIBufferSize,
		c.AudioInput, c.AudioOutput, c.SampleRate, c.BlockSize,
		c.InChannelCount, c.OutChannelCount)
}

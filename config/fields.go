package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the declared type of a configuration field. The set is
// closed: defaults, file values, CLI values and setters all dispatch
// over exactly these four.
type Kind uint8

const (
	Text Kind = iota
	Int
	Uint
	Float
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	}
	return "unknown"
}

// Field describes one configuration field: its wire name, its declared
// kind, its default as text, and a binding to the field's storage
// inside a Config. Fields is the single source of truth; default
// construction, file parsing, CLI parsing and the typed setters all
// walk the same slice.
type Field struct {
	Name    string
	Kind    Kind
	Default string

	bind func(*Config) any
}

// Fields is the closed descriptor set. A field that is not listed here
// does not exist as far as the merge pipeline is concerned.
var Fields = []Field{
	{Name: "midi_input", Kind: Text, Default: "", bind: func(c *Config) any { return &c.MIDIInput }},
	{Name: "midi_output", Kind: Text, Default: "", bind: func(c *Config) any { return &c.MIDIOutput }},
	{Name: "midi_output_latency", Kind: Int, Default: "0", bind: func(c *Config) any { return &c.MIDIOutputLatency }},
	{Name: "midi_buffer_size", Kind: Int, Default: "1024", bind: func(c *Config) any { return &c.MIDIBufferSize }},
	{Name: "audio_input", Kind: Text, Default: "", bind: func(c *Config) any { return &c.AudioInput }},
	{Name: "audio_output", Kind: Text, Default: "", bind: func(c *Config) any { return &c.AudioOutput }},
	{Name: "sample_rate", Kind: Float, Default: "44100", bind: func(c *Config) any { return &c.SampleRate }},
	{Name: "block_size", Kind: Uint, Default: "512", bind: func(c *Config) any { return &c.BlockSize }},
	{Name: "audio_flags", Kind: Uint, Default: "0", bind: func(c *Config) any { return &c.AudioFlags }},
	{Name: "in_channel_count", Kind: Int, Default: "1", bind: func(c *Config) any { return &c.InChannelCount }},
	{Name: "out_channel_count", Kind: Int, Default: "2", bind: func(c *Config) any { return &c.OutChannelCount }},
	{Name: "suggested_latency", Kind: Float, Default: "-1", bind: func(c *Config) any { return &c.SuggestedLatency }},
	{Name: "flags", Kind: Uint, Default: "0", bind: func(c *Config) any { return &c.Flags }},
	{Name: "log_level", Kind: Uint, Default: "3", bind: func(c *Config) any { return &c.LogLevel }},
}

func fieldByName(name string) (Field, bool) {
	for _, f := range Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Apply converts raw according to the field's kind and stores the
// result through the field binding. Custom Applier implementations
// can delegate here for the default conversion.
func (f Field) Apply(c *Config, raw string) error {
	return f.apply(c, raw)
}

// apply converts raw according to the field's kind and stores the
// result through the field binding. Parsing is locale-independent
// (strconv). An error leaves the stored value untouched.
func (f Field) apply(c *Config, raw string) error {
	raw = strings.TrimSpace(raw)
	ptr := f.bind(c)

	switch f.Kind {
	case Text:
		p, ok := ptr.(*string)
		if !ok {
			return fmt.Errorf("field %s: text kind bound to %T", f.Name, ptr)
		}
		*p = strings.Clone(raw)
		return nil

	case Int:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("field %s: %q is not a valid integer", f.Name, raw)
		}
		switch p := ptr.(type) {
		case *int:
			*p = int(v)
		case *int64:
			*p = v
		default:
			return fmt.Errorf("field %s: int kind bound to %T", f.Name, ptr)
		}
		return nil

	case Uint:
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("field %s: %q is not a valid unsigned integer", f.Name, raw)
		}
		switch p := ptr.(type) {
		case *uint8:
			if v > 255 {
				return fmt.Errorf("field %s: %q overflows uint8", f.Name, raw)
			}
			*p = uint8(v)
		case *uint32:
			if v > 1<<32-1 {
				return fmt.Errorf("field %s: %q overflows uint32", f.Name, raw)
			}
			*p = uint32(v)
		case *uint64:
			*p = v
		default:
			return fmt.Errorf("field %s: uint kind bound to %T", f.Name, ptr)
		}
		return nil

	case Float:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("field %s: %q is not a valid number", f.Name, raw)
		}
		p, ok := ptr.(*float64)
		if !ok {
			return fmt.Errorf("field %s: float kind bound to %T", f.Name, ptr)
		}
		*p = v
		return nil
	}

	return fmt.Errorf("field %s: unknown kind %d", f.Name, f.Kind)
}

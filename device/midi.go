package device

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// MIDIEnumerator enumerates MIDI ports through a gomidi driver. The
// runtime exposes no default-port marker, so the first port of a
// direction is treated as the system default, matching the convention
// of the underlying OS APIs.
type MIDIEnumerator struct {
	drv drivers.Driver
}

func NewMIDIEnumerator(drv drivers.Driver) *MIDIEnumerator {
	return &MIDIEnumerator{drv: drv}
}

func (e *MIDIEnumerator) Devices(dir Direction) ([]Info, error) {
	names, err := e.portNames(dir)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, len(names))
	for i, name := range names {
		infos[i] = Info{
			Index:     i,
			Name:      name,
			IsDefault: i == 0,
			// Channel capability is meaningless for MIDI ports; a port
			// always carries all 16 channels.
			MaxChannels: 16,
		}
	}
	return infos, nil
}

// In returns the input port behind a resolved handle index. Index -1
// maps to the default (first) port.
func (e *MIDIEnumerator) In(index int) (drivers.In, error) {
	ins, err := e.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("enumerate midi inputs: %w", err)
	}
	return pickPort(ins, index, Input)
}

// Out returns the output port behind a resolved handle index.
func (e *MIDIEnumerator) Out(index int) (drivers.Out, error) {
	outs, err := e.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("enumerate midi outputs: %w", err)
	}
	return pickPort(outs, index, Output)
}

func (e *MIDIEnumerator) portNames(dir Direction) ([]string, error) {
	if dir == Input {
		ins, err := e.drv.Ins()
		if err != nil {
			return nil, fmt.Errorf("enumerate midi inputs: %w", err)
		}
		names := make([]string, len(ins))
		for i, in := range ins {
			names[i] = in.String()
		}
		return names, nil
	}

	outs, err := e.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("enumerate midi outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

func pickPort[P fmt.Stringer](ports []P, index int, dir Direction) (P, error) {
	var zero P
	if len(ports) == 0 {
		return zero, fmt.Errorf("no midi %s ports available", dir)
	}
	if index < 0 {
		return ports[0], nil
	}
	if index >= len(ports) {
		return zero, fmt.Errorf("midi %s port %d out of range", dir, index)
	}
	return ports[index], nil
}

package device

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// AudioEnumerator enumerates audio endpoints through a malgo context.
// It remembers the native identifiers of the last enumeration so a
// resolved index can be mapped back to a device ID when the stream
// opens.
type AudioEnumerator struct {
	ctx *malgo.AllocatedContext
	ids map[Direction][]malgo.DeviceID
}

func NewAudioEnumerator(ctx *malgo.AllocatedContext) *AudioEnumerator {
	return &AudioEnumerator{
		ctx: ctx,
		ids: make(map[Direction][]malgo.DeviceID),
	}
}

func (e *AudioEnumerator) Devices(dir Direction) ([]Info, error) {
	kind := malgo.Playback
	if dir == Input {
		kind = malgo.Capture
	}

	devices, err := e.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s audio devices: %w", dir, err)
	}

	infos := make([]Info, len(devices))
	ids := make([]malgo.DeviceID, len(devices))
	for i, d := range devices {
		infos[i] = Info{
			Index:       i,
			Name:        d.Name(),
			IsDefault:   d.IsDefault != 0,
			MaxChannels: maxChannels(d),
		}
		ids[i] = d.ID
	}
	e.ids[dir] = ids

	return infos, nil
}

// NativeID returns the malgo identifier for a previously enumerated
// index, or nil when the runtime should pick its default device.
func (e *AudioEnumerator) NativeID(dir Direction, index int) *malgo.DeviceID {
	ids := e.ids[dir]
	if index < 0 || index >= len(ids) {
		return nil
	}
	id := ids[index]
	return &id
}

func maxChannels(d malgo.DeviceInfo) int {
	n := 0
	for _, f := range d.Formats {
		if int(f.Channels) > n {
			n = int(f.Channels)
		}
	}
	if n == 0 {
		// Device reported no formats; assume stereo rather than
		// rejecting it outright.
		n = 2
	}
	return n
}

// Package device resolves requested device names to concrete endpoints
// of a native audio or MIDI runtime, falling back to the system
// default when a name is missing or under-provisioned.
package device

// Direction tags an endpoint as input or output.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Info describes one enumerated endpoint.
type Info struct {
	Index       int
	Name        string
	IsDefault   bool
	MaxChannels int
}

// Handle is a resolved reference to a concrete endpoint. Index is the
// position in the native enumeration; -1 means "let the runtime pick
// its default". A Handle is resolved once at engine start and not
// revisited until the next initialization cycle.
type Handle struct {
	Index     int
	Name      string
	Direction Direction
	Default   bool
}

// Enumerator lists the endpoints a native runtime exposes for one
// direction. Implementations exist for the audio runtime (malgo) and
// the MIDI runtime (gomidi ports); tests supply fakes.
type Enumerator interface {
	Devices(dir Direction) ([]Info, error)
}

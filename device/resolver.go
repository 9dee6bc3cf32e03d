package device

import "log/slog"

// Resolver maps requested device names to handles for one native
// runtime.
type Resolver struct {
	enum Enumerator
}

func NewResolver(enum Enumerator) *Resolver {
	return &Resolver{enum: enum}
}

// Resolve returns a usable handle for the requested name. An empty
// name selects the system default for the direction. A named device
// must match exactly and expose at least minChannels; otherwise a
// warning is logged and the system default is returned. Resolve never
// fails: if even the default is absent, the handle carries index -1
// and the subsequent stream open surfaces the error.
func (r *Resolver) Resolve(requested string, dir Direction, minChannels int) Handle {
	devices, err := r.enum.Devices(dir)
	if err != nil {
		slog.Warn("device enumeration failed, using system default",
			"direction", dir.String(), "error", err)
		return Handle{Index: -1, Direction: dir, Default: true}
	}

	if requested == "" {
		return defaultHandle(devices, dir)
	}

	for _, info := range devices {
		if info.Name != requested {
			continue
		}
		if info.MaxChannels < minChannels {
			slog.Warn("not enough channels on device",
				"device", info.Name, "direction", dir.String(),
				"want", minChannels, "have", info.MaxChannels)
			return defaultHandle(devices, dir)
		}
		return Handle{Index: info.Index, Name: info.Name, Direction: dir, Default: info.IsDefault}
	}

	slog.Warn("device was not found, using default instead",
		"device", requested, "direction", dir.String())
	return defaultHandle(devices, dir)
}

func defaultHandle(devices []Info, dir Direction) Handle {
	for _, info := range devices {
		if info.IsDefault {
			return Handle{Index: info.Index, Name: info.Name, Direction: dir, Default: true}
		}
	}
	if len(devices) > 0 {
		// Runtime marked no default; the first endpoint is the
		// conventional fallback.
		d := devices[0]
		return Handle{Index: d.Index, Name: d.Name, Direction: dir, Default: true}
	}
	return Handle{Index: -1, Direction: dir, Default: true}
}

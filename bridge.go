package workbench

import (
	"encoding/binary"
	"math"
)

// blockFunc is the native data callback contract: one fixed-size block
// with interleaved little-endian float32 input and output bytes.
type blockFunc func(output, input []byte, frames uint32)

// onBlock is the callback bridge for one hardware block. It derives a
// millisecond timestamp from the stream's running frame clock,
// services the MIDI tick first when one is attached, then invokes the
// audio routine. Native buffers are decoded into the engine's own
// scratch and never retained beyond the invocation.
func (e *AudioEngine) onBlock(output, input []byte, frames uint32) {
	if e.state != audioRunning {
		return
	}

	var timestamp int32
	if e.cfg.SampleRate > 0 {
		timestamp = int32(float64(e.frameClock) / e.cfg.SampleRate * 1000)
	}
	e.frameClock += uint64(frames)

	if e.tick != nil {
		e.tick(timestamp)
	}
	if e.routine == nil {
		return
	}

	// The runtime normally honors the requested period size; clamp in
	// case it delivers a larger block than the scratch holds.
	if e.inChannels > 0 {
		if m := uint32(len(e.inSamples) / e.inChannels); frames > m {
			frames = m
		}
	}
	if e.outChannels > 0 {
		if m := uint32(len(e.outSamples) / e.outChannels); frames > m {
			frames = m
		}
	}

	in := e.inSamples[:int(frames)*e.inChannels]
	decodeSamples(in, input)

	out := e.outSamples[:int(frames)*e.outChannels]
	e.routine(in, out, frames, e.user)

	encodeSamples(output, out)
}

func decodeSamples(dst []float32, src []byte) {
	n := len(dst)
	if m := len(src) / 4; m < n {
		n = m
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

func encodeSamples(dst []byte, src []float32) {
	n := len(src)
	if m := len(dst) / 4; m < n {
		n = m
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(src[i]))
	}
}

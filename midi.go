package workbench

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/alkime/workbench/config"
	"github.com/alkime/workbench/device"
)

// MIDIFunc is the user MIDI routine. It receives the events read this
// tick, an output buffer to fill, the number of input events, and the
// session user context. The return value dictates how many output
// buffer events are written to the MIDI output stream.
type MIDIFunc func(input, output []Event, count int, user any) int

// midiAccess abstracts the native MIDI runtime so engine tests can run
// without hardware. The gomidi/rtmidi implementation below is the only
// production one.
type midiAccess interface {
	openIn(h device.Handle, onEvent func(Event)) (midiInput, error)
	openOut(h device.Handle) (midiOutput, error)
	close() error
}

type midiInput interface {
	close() error
}

type midiOutput interface {
	send(ev Event) error
	close() error
}

type midiState uint8

const (
	midiUninitialized midiState = iota
	midiOpen
	midiClosed
)

// MIDIEngine owns the MIDI streams and event buffers and services the
// per-tick read, user routine invocation and output flush. When no
// audio routine is registered the engine drives its own millisecond
// tick; otherwise the audio callback drives it so MIDI processing
// stays phase-locked with the audio block boundary.
type MIDIEngine struct {
	cfg     *config.Config
	routine MIDIFunc
	user    any

	access     midiAccess
	standalone bool
	state      midiState

	in  midiInput
	out midiOutput

	inBuf  []Event
	outBuf []Event
	queue  chan Event

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
	epoch  time.Time
}

func newMIDIEngine(cfg *config.Config, routine MIDIFunc, user any, access midiAccess, standalone bool) *MIDIEngine {
	return &MIDIEngine{
		cfg:        cfg,
		routine:    routine,
		user:       user,
		access:     access,
		standalone: standalone,
	}
}

func (e *MIDIEngine) initialize(resolver *device.Resolver) error {
	if e.state != midiUninitialized {
		return nil
	}
	slog.Debug("midi init start")

	size := e.cfg.MIDIBufferSize
	if size <= 0 {
		size = 1
	}
	e.inBuf = make([]Event, size)
	e.outBuf = make([]Event, size)
	e.queue = make(chan Event, size)

	if !e.cfg.HasFlag(config.DisableMIDIIn) {
		h := resolver.Resolve(e.cfg.MIDIInput, device.Input, 0)
		in, err := e.access.openIn(h, e.enqueue)
		if err != nil {
			slog.Error("could not open midi input", "error", err)
			e.deinitialize()
			return err
		}
		e.in = in
	}

	if !e.cfg.HasFlag(config.DisableMIDIOut) {
		h := resolver.Resolve(e.cfg.MIDIOutput, device.Output, 0)
		out, err := e.access.openOut(h)
		if err != nil {
			slog.Error("could not open midi output", "error", err)
			e.deinitialize()
			return err
		}
		e.out = out
	}

	if e.standalone {
		e.startTimer()
	}

	e.state = midiOpen
	slog.Debug("midi init finish")
	return nil
}

// enqueue is called from the driver's listener goroutine. The queue is
// bounded by midi_buffer_size; when it is full the newest event is
// dropped, as the native input queue would have done.
func (e *MIDIEngine) enqueue(ev Event) {
	select {
	case e.queue <- ev:
	default:
		slog.Debug("midi input queue full, dropping event")
	}
}

// Tick services one MIDI cycle: drain up to midi_buffer_size pending
// input events, invoke the user routine, and flush as many output
// events as the routine asks for. Exactly one caller may drive Tick:
// either the audio callback or the engine's own timer, never both.
func (e *MIDIEngine) Tick(timestamp int32) {
	if e.routine == nil || e.state != midiOpen {
		return
	}

	n := 0
drain:
	for n < len(e.inBuf) {
		select {
		case ev := <-e.queue:
			e.inBuf[n] = ev
			n++
		default:
			break drain
		}
	}

	count := e.routine(e.inBuf[:n], e.outBuf, n, e.user)
	if count <= 0 || e.out == nil {
		return
	}
	if count > len(e.outBuf) {
		count = len(e.outBuf)
	}
	for i := 0; i < count; i++ {
		ev := e.outBuf[i]
		ev.Timestamp = timestamp + int32(e.cfg.MIDIOutputLatency)
		if err := e.out.send(ev); err != nil {
			slog.Error("midi write failed", "error", err)
			return
		}
	}
}

func (e *MIDIEngine) startTimer() {
	e.epoch = time.Now()
	e.done = make(chan struct{})
	e.ticker = time.NewTicker(time.Millisecond)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.done:
				return
			case <-e.ticker.C:
				e.Tick(int32(time.Since(e.epoch).Milliseconds()))
			}
		}
	}()
}

// stopTimer blocks until no further timer tick can run.
func (e *MIDIEngine) stopTimer() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.done)
	e.wg.Wait()
	e.ticker = nil
	e.done = nil
}

// deinitialize releases buffers and streams. Every step logs its own
// failure and the remaining steps still run; calling it twice is safe.
func (e *MIDIEngine) deinitialize() {
	slog.Debug("midi deinit start")
	e.stopTimer()

	e.cfg.SetFlags(config.DisableMIDI)

	// The listener goroutine can deliver into enqueue until the input
	// close returns; the streams go down before the buffers do.
	if e.in != nil {
		if err := e.in.close(); err != nil {
			slog.Error("could not close midi input", "error", err)
		}
		e.in = nil
	}
	if e.out != nil {
		if err := e.out.close(); err != nil {
			slog.Error("could not close midi output", "error", err)
		}
		e.out = nil
	}
	if e.access != nil {
		if err := e.access.close(); err != nil {
			slog.Error("could not terminate midi runtime", "error", err)
		}
		e.access = nil
	}

	e.inBuf = nil
	e.outBuf = nil
	e.queue = nil

	e.state = midiClosed
	slog.Debug("midi deinit finish")
}

// gomidi / rtmidi implementation of midiAccess.

type gomidiAccess struct {
	drv  *rtmididrv.Driver
	enum *device.MIDIEnumerator
}

func newGomidiAccess() (*gomidiAccess, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi driver: %w", err)
	}
	return &gomidiAccess{drv: drv, enum: device.NewMIDIEnumerator(drv)}, nil
}

func (g *gomidiAccess) openIn(h device.Handle, onEvent func(Event)) (midiInput, error) {
	in, err := g.enum.In(h.Index)
	if err != nil {
		return nil, err
	}
	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("open midi input %q: %w", in.String(), err)
	}

	// The default listen config filters active sensing and timing
	// noise, keeping recurring low-value messages out of the queue.
	stop, err := in.Listen(func(msg []byte, ms int32) {
		onEvent(eventFromBytes(msg, ms))
	}, drivers.ListenConfig{})
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("listen on midi input %q: %w", in.String(), err)
	}

	return &gomidiIn{port: in, stop: stop}, nil
}

func (g *gomidiAccess) openOut(h device.Handle) (midiOutput, error) {
	out, err := g.enum.Out(h.Index)
	if err != nil {
		return nil, err
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("open midi output %q: %w", out.String(), err)
	}
	return &gomidiOut{port: out}, nil
}

func (g *gomidiAccess) close() error {
	return g.drv.Close()
}

type gomidiIn struct {
	port drivers.In
	stop func()
}

func (g *gomidiIn) close() error {
	g.stop()
	return g.port.Close()
}

type gomidiOut struct {
	port drivers.Out
}

func (g *gomidiOut) send(ev Event) error {
	msg := ev.Bytes()
	if msg == nil {
		return nil
	}
	return g.port.Send(msg)
}

func (g *gomidiOut) close() error {
	return g.port.Close()
}

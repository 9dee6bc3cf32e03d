package workbench

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alkime/workbench/config"
	"github.com/alkime/workbench/device"
)

// fakeEnum serves the device resolver without any native runtime.
type fakeEnum struct{}

func (fakeEnum) Devices(device.Direction) ([]device.Info, error) {
	return []device.Info{{Index: 0, Name: "fake", IsDefault: true, MaxChannels: 16}}, nil
}

type fakeMIDIIn struct {
	closed int
	// onClose runs before close returns, standing in for the driver's
	// guarantee that no listener callback survives the close.
	onClose func()
}

func (f *fakeMIDIIn) close() error {
	if f.onClose != nil {
		f.onClose()
	}
	f.closed++
	return nil
}

type fakeMIDIOut struct {
	sent   []Event
	closed int
	err    error
}

func (f *fakeMIDIOut) send(ev Event) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeMIDIOut) close() error {
	f.closed++
	return nil
}

type fakeMIDIAccess struct {
	in      *fakeMIDIIn
	out     *fakeMIDIOut
	onEvent func(Event)
	inErr   error
	outErr  error
	closed  int
}

func newFakeMIDIAccess() *fakeMIDIAccess {
	return &fakeMIDIAccess{in: &fakeMIDIIn{}, out: &fakeMIDIOut{}}
}

func (f *fakeMIDIAccess) openIn(_ device.Handle, onEvent func(Event)) (midiInput, error) {
	if f.inErr != nil {
		return nil, f.inErr
	}
	f.onEvent = onEvent
	return f.in, nil
}

func (f *fakeMIDIAccess) openOut(device.Handle) (midiOutput, error) {
	if f.outErr != nil {
		return nil, f.outErr
	}
	return f.out, nil
}

func (f *fakeMIDIAccess) close() error {
	f.closed++
	return nil
}

type fakeStream struct {
	started  int
	stopped  int
	closed   int
	startErr error
}

func (f *fakeStream) start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeStream) stop() error {
	f.stopped++
	return nil
}

func (f *fakeStream) close() error {
	f.closed++
	return nil
}

type fakeBackend struct {
	stream  *fakeStream
	params  streamParams
	onBlock blockFunc
	openErr error
	closed  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stream: &fakeStream{}}
}

func (f *fakeBackend) open(params streamParams, onBlock blockFunc) (audioStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.params = params
	f.onBlock = onBlock
	return f.stream, nil
}

func (f *fakeBackend) close() error {
	f.closed++
	return nil
}

func noteOn(key, vel byte) Event {
	return Event{Status: NoteOn, Data1: key, Data2: vel}
}

func TestMIDITickDrainsAtMostBufferSize(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SetMIDIBufferSize(4)

	var counts []int
	routine := func(input, output []Event, count int, user any) int {
		counts = append(counts, count)
		return 0
	}

	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, routine, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	// The queue holds midi_buffer_size events; six arrivals keep four
	// and drop the rest.
	for i := 0; i < 6; i++ {
		access.onEvent(noteOn(byte(60+i), 100))
	}

	e.Tick(0)
	e.Tick(1)
	require.Equal(t, []int{4, 0}, counts)
}

func TestMIDITickRemainderServedNextTick(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SetMIDIBufferSize(2)

	var seen []byte
	routine := func(input, output []Event, count int, user any) int {
		for _, ev := range input[:count] {
			seen = append(seen, ev.Data1)
		}
		return 0
	}

	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, routine, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	// Refill between ticks so nothing is dropped; each tick reads at
	// most two events.
	access.onEvent(noteOn(60, 100))
	access.onEvent(noteOn(61, 100))
	e.Tick(0)
	access.onEvent(noteOn(62, 100))
	e.Tick(1)

	require.Equal(t, []byte{60, 61, 62}, seen)
}

func TestMIDITickFlushClampsOutputCount(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SetMIDIBufferSize(3)

	routine := func(input, output []Event, count int, user any) int {
		for i := range output {
			output[i] = noteOn(byte(40+i), 80)
		}
		return 99 // far beyond the buffer
	}

	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, routine, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	e.Tick(0)
	require.Len(t, access.out.sent, 3)
	require.Equal(t, byte(40), access.out.sent[0].Data1)
}

func TestMIDITickNegativeCountSendsNothing(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	routine := func(input, output []Event, count int, user any) int { return -1 }

	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, routine, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	e.Tick(0)
	require.Empty(t, access.out.sent)
}

func TestMIDIStandaloneTimerDrivesTicks(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	var calls atomic.Int64
	routine := func(input, output []Event, count int, user any) int {
		calls.Add(1)
		return 0
	}

	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, routine, nil, access, true)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	require.NotNil(t, e.ticker)

	require.Eventually(t, func() bool {
		return calls.Load() > 0
	}, time.Second, time.Millisecond)

	e.deinitialize()
	settled := calls.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, settled, calls.Load(), "tick ran after deinitialize")
}

func TestMIDINoTimerWhenAudioDrives(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	routine := func(input, output []Event, count int, user any) int { return 0 }

	e := newMIDIEngine(cfg, routine, nil, newFakeMIDIAccess(), false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	require.Nil(t, e.ticker)
}

func TestMIDIDeinitializeIdempotent(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, func(input, output []Event, count int, user any) int { return 0 }, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))

	e.deinitialize()
	e.deinitialize()

	require.Equal(t, 1, access.in.closed)
	require.Equal(t, 1, access.out.closed)
	require.Equal(t, 1, access.closed)
	require.True(t, cfg.HasFlag(config.DisableMIDI))

	// A tick after teardown is a no-op, not a panic.
	e.Tick(0)
}

func TestMIDIDeinitializeClosesInputBeforeReleasingBuffers(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, func(input, output []Event, count int, user any) int { return 0 }, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))

	// A listener goroutine keeps delivering until the input close
	// returns, exactly like the native driver. The queue must outlive
	// the stream, so enqueue never observes released buffers.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				access.onEvent(noteOn(60, 100))
			}
		}
	}()
	access.in.onClose = func() {
		require.NotNil(t, e.queue, "buffers released while the input stream was still open")
		close(stop)
		wg.Wait()
	}

	e.deinitialize()
	wg.Wait()
	require.Equal(t, 1, access.in.closed)
	require.Nil(t, e.queue)
}

func TestMIDIInitFailureReleasesRuntime(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	access := newFakeMIDIAccess()
	access.inErr = errors.New("no such port")

	e := newMIDIEngine(cfg, func(input, output []Event, count int, user any) int { return 0 }, nil, access, false)
	err := e.initialize(device.NewResolver(fakeEnum{}))
	require.Error(t, err)
	require.Equal(t, 1, access.closed)
	require.Equal(t, midiClosed, e.state)
}

func TestMIDIDisabledDirections(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SetFlags(config.DisableMIDIOut)

	access := newFakeMIDIAccess()
	e := newMIDIEngine(cfg, func(input, output []Event, count int, user any) int { return 1 }, nil, access, false)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	require.NotNil(t, e.in)
	require.Nil(t, e.out)

	// Flushing with no output stream is a no-op.
	e.Tick(0)
	require.Empty(t, access.out.sent)
}

func audioTestConfig() *config.Config {
	cfg := config.Default()
	cfg.SetSampleRate(1000)
	cfg.SetBlockSize(4)
	cfg.SetInChannelCount(1)
	cfg.SetOutChannelCount(2)
	return cfg
}

func blockBytes(samples []float32) []byte {
	b := make([]byte, len(samples)*4)
	encodeSamples(b, samples)
	return b
}

func TestAudioBlockOrderingMIDIFirst(t *testing.T) {
	t.Parallel()

	cfg := audioTestConfig()

	var order []string
	routine := func(input, output []float32, frames uint32, user any) {
		order = append(order, "audio")
	}

	backend := newFakeBackend()
	e := newAudioEngine(cfg, routine, nil, backend)
	e.tick = func(timestamp int32) {
		order = append(order, "midi")
	}
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	out := make([]byte, 4*2*4)
	in := make([]byte, 4*1*4)
	backend.onBlock(out, in, 4)

	require.Equal(t, []string{"midi", "audio"}, order)
}

func TestAudioBlockTimestampFollowsFrameClock(t *testing.T) {
	t.Parallel()

	cfg := audioTestConfig() // 1000 Hz, 4-frame blocks: 4 ms per block

	var stamps []int32
	backend := newFakeBackend()
	e := newAudioEngine(cfg, func(input, output []float32, frames uint32, user any) {}, nil, backend)
	e.tick = func(timestamp int32) {
		stamps = append(stamps, timestamp)
	}
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	out := make([]byte, 4*2*4)
	in := make([]byte, 4*1*4)
	for i := 0; i < 3; i++ {
		backend.onBlock(out, in, 4)
	}

	require.Equal(t, []int32{0, 4, 8}, stamps)
}

func TestAudioBlockPassesSamplesThrough(t *testing.T) {
	t.Parallel()

	cfg := audioTestConfig()

	routine := func(input, output []float32, frames uint32, user any) {
		require.Len(t, input, int(frames))
		require.Len(t, output, int(frames)*2)
		for i := 0; i < int(frames); i++ {
			output[i*2] = input[i]
			output[i*2+1] = -input[i]
		}
	}

	backend := newFakeBackend()
	e := newAudioEngine(cfg, routine, nil, backend)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	in := blockBytes([]float32{0.25, -0.5, 1, 0})
	out := make([]byte, 4*2*4)
	backend.onBlock(out, in, 4)

	got := make([]float32, 8)
	decodeSamples(got, out)
	require.Equal(t, []float32{0.25, -0.25, -0.5, 0.5, 1, -1, 0, 0}, got)
}

func TestAudioBlockClampsOversizedBlock(t *testing.T) {
	t.Parallel()

	cfg := audioTestConfig() // scratch sized for 4 frames

	var gotFrames uint32
	routine := func(input, output []float32, frames uint32, user any) {
		gotFrames = frames
	}

	backend := newFakeBackend()
	e := newAudioEngine(cfg, routine, nil, backend)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	out := make([]byte, 16*2*4)
	in := make([]byte, 16*1*4)
	backend.onBlock(out, in, 16)

	require.Equal(t, uint32(4), gotFrames)
}

func TestAudioInitFailureReleasesRuntime(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.openErr = errors.New("device busy")

	e := newAudioEngine(audioTestConfig(), func(input, output []float32, frames uint32, user any) {}, nil, backend)
	err := e.initialize(device.NewResolver(fakeEnum{}))
	require.Error(t, err)
	require.Equal(t, 1, backend.closed)
	require.Equal(t, audioClosed, e.state)
}

func TestAudioStartFailureStopsAndCloses(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.stream.startErr = errors.New("stream refused")

	e := newAudioEngine(audioTestConfig(), func(input, output []float32, frames uint32, user any) {}, nil, backend)
	err := e.initialize(device.NewResolver(fakeEnum{}))
	require.Error(t, err)
	require.Equal(t, 1, backend.stream.closed)
	require.Equal(t, 1, backend.closed)
	require.Equal(t, audioClosed, e.state)
}

func TestAudioDeinitializeIdempotent(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	e := newAudioEngine(audioTestConfig(), func(input, output []float32, frames uint32, user any) {}, nil, backend)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))

	e.deinitialize()
	e.deinitialize()

	require.Equal(t, 1, backend.stream.stopped)
	require.Equal(t, 1, backend.stream.closed)
	require.Equal(t, 1, backend.closed)

	// A late native callback after teardown must not touch freed
	// scratch.
	out := make([]byte, 4*2*4)
	in := make([]byte, 4*1*4)
	backend.onBlock(out, in, 4)
}

func TestAudioStreamParamsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := audioTestConfig()
	cfg.SetAudioFlags(config.AudioExclusive)
	cfg.SetSuggestedLatency(0.02)
	cfg.SetFlags(config.DisableAudioIn)

	backend := newFakeBackend()
	e := newAudioEngine(cfg, func(input, output []float32, frames uint32, user any) {}, nil, backend)
	require.NoError(t, e.initialize(device.NewResolver(fakeEnum{})))
	defer e.deinitialize()

	require.False(t, backend.params.withInput)
	require.True(t, backend.params.withOutput)
	require.Equal(t, 1000.0, backend.params.sampleRate)
	require.Equal(t, uint32(4), backend.params.blockSize)
	require.Equal(t, 0.02, backend.params.suggestedLatency)
	require.Equal(t, config.AudioExclusive, backend.params.flags)
}

func TestSampleCodecRoundtrip(t *testing.T) {
	t.Parallel()

	src := []float32{0, 1, -1, 0.5, -0.25, float32(math.Pi)}
	raw := make([]byte, len(src)*4)
	encodeSamples(raw, src)

	got := make([]float32, len(src))
	decodeSamples(got, raw)
	require.Equal(t, src, got)

	// The codec is little-endian float32 on the wire.
	require.Equal(t, math.Float32bits(src[1]), binary.LittleEndian.Uint32(raw[4:8]))
}

func TestSampleCodecShortBuffers(t *testing.T) {
	t.Parallel()

	src := []float32{1, 2, 3}
	raw := make([]byte, 8) // room for two samples
	encodeSamples(raw, src)

	got := make([]float32, 3)
	decodeSamples(got, raw)
	require.Equal(t, []float32{1, 2, 0}, got)
}

package workbench

import "fmt"

// Event is one MIDI message together with the millisecond timestamp
// the native runtime attached to it. Running-status and sysex
// continuation bytes arrive as separate events, mirroring how the
// underlying driver delivers them.
type Event struct {
	Timestamp int32
	Status    byte
	Data1     byte
	Data2     byte
}

// MIDI status bytes and masks.
const (
	CodeMask byte = 0xf0
	ChanMask byte = 0x0f

	NoteOff       byte = 0x80
	NoteOn        byte = 0x90
	PolyTouch     byte = 0xa0
	ControlChange byte = 0xb0
	ProgramChange byte = 0xc0
	ChannelTouch  byte = 0xd0
	PitchBend     byte = 0xe0

	SysEx         byte = 0xf0
	QuarterFrame  byte = 0xf1
	SongPointer   byte = 0xf2
	SongSelect    byte = 0xf3
	TuneRequest   byte = 0xf6
	EOX           byte = 0xf7
	TimingClock   byte = 0xf8
	Start         byte = 0xfa
	Continue      byte = 0xfb
	Stop          byte = 0xfc
	ActiveSensing byte = 0xfe
	SystemReset   byte = 0xff
)

// Controller numbers 120..127 are channel mode messages.
const (
	AllSoundOff      byte = 0x78
	ResetControllers byte = 0x79
	LocalControl     byte = 0x7a
	AllNotesOff      byte = 0x7b
	OmniOff          byte = 0x7c
	OmniOn           byte = 0x7d
	MonoOn           byte = 0x7e
	PolyOn           byte = 0x7f
)

func eventFromBytes(msg []byte, timestamp int32) Event {
	ev := Event{Timestamp: timestamp}
	if len(msg) > 0 {
		ev.Status = msg[0]
	}
	if len(msg) > 1 {
		ev.Data1 = msg[1]
	}
	if len(msg) > 2 {
		ev.Data2 = msg[2]
	}
	return ev
}

// Bytes renders the event as a wire message of the correct length for
// its status byte.
func (ev Event) Bytes() []byte {
	switch {
	case ev.Status < 0x80:
		// Data byte without running status context; nothing sendable.
		return nil
	case ev.Status < 0xc0:
		return []byte{ev.Status, ev.Data1, ev.Data2}
	case ev.Status < 0xe0:
		return []byte{ev.Status, ev.Data1}
	case ev.Status < 0xf0:
		return []byte{ev.Status, ev.Data1, ev.Data2}
	case ev.Status == SysEx || ev.Status == SongPointer:
		return []byte{ev.Status, ev.Data1, ev.Data2}
	case ev.Status == QuarterFrame || ev.Status == SongSelect:
		return []byte{ev.Status, ev.Data1}
	default:
		return []byte{ev.Status}
	}
}

// Channel returns the 0-based channel for channel voice messages.
func (ev Event) Channel() int { return int(ev.Status & ChanMask) }

// Command returns the status byte with the channel bits masked off.
func (ev Event) Command() byte { return ev.Status & CodeMask }

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI key number as pitch name plus octave, with
// middle C (key 60) as C4.
func NoteName(key byte) string {
	return fmt.Sprintf("%s%d", pitchNames[key%12], int(key)/12-1)
}

// Monitor renders MIDI messages as text. It tracks sysex runs across
// events, so one Monitor must see the whole stream in order.
type Monitor struct {
	inSysEx bool
}

// Describe returns a one-line description of the event in the classic
// MIDI monitor format.
func (m *Monitor) Describe(ev Event) string {
	status, data1, data2 := ev.Status, ev.Data1, ev.Data2
	command := ev.Command()
	channel := ev.Channel()

	if m.inSysEx || status == SysEx {
		m.inSysEx = true
		for _, b := range [3]byte{status, data1, data2} {
			if b == EOX {
				m.inSysEx = false
				break
			}
		}
		return "System Exclusive"
	}

	switch {
	case command == NoteOn && data2 != 0:
		return fmt.Sprintf("NoteOn  Chan %2d Key %3d %s Vel %d",
			channel, data1, NoteName(data1), data2)
	case command == NoteOn || command == NoteOff:
		return fmt.Sprintf("NoteOff Chan %2d Key %3d %s Vel %d",
			channel, data1, NoteName(data1), data2)
	case command == ProgramChange:
		return fmt.Sprintf("ProgChg Chan %2d Prog %2d", channel, data1+1)
	case command == ControlChange:
		return describeControl(channel, data1, data2)
	case command == PolyTouch:
		return fmt.Sprintf("P.Touch Chan %2d Key %2d %s", channel, data1, NoteName(data1))
	case command == ChannelTouch:
		return fmt.Sprintf("A.Touch Chan %2d Val %2d", channel, data1)
	case command == PitchBend:
		return fmt.Sprintf("P.Bend  Chan %2d Val %2d", channel, int(data1)+int(data2)<<7)
	case status == SongPointer:
		return fmt.Sprintf("Song Position %d", int(data1)+int(data2)<<7)
	case status == SongSelect:
		return fmt.Sprintf("Song Select %d", data1)
	case status == TuneRequest:
		return "Tune Request"
	case status == QuarterFrame:
		return fmt.Sprintf("Time Code Quarter Frame Type %d Values %d",
			(data1&0x70)>>4, data1&0x0f)
	case status == Start:
		return "Start"
	case status == Continue:
		return "Continue"
	case status == Stop:
		return "Stop"
	case status == SystemReset:
		return "System Reset"
	case status == TimingClock:
		return "Clock"
	case status == ActiveSensing:
		return "Active Sensing"
	}

	return fmt.Sprintf("%02x %02x %02x", status, data1, data2)
}

func describeControl(channel int, data1, data2 byte) string {
	if data1 < AllSoundOff {
		return fmt.Sprintf("CtrlChg Chan %2d Ctrl %2d Val %2d", channel, data1, data2)
	}
	switch data1 {
	case AllSoundOff:
		return fmt.Sprintf("All Sound Off, Chan %2d", channel)
	case ResetControllers:
		return fmt.Sprintf("Reset All Controllers, Chan %2d", channel)
	case LocalControl:
		onOff := "Off"
		if data2 != 0 {
			onOff = "On"
		}
		return fmt.Sprintf("LocCtrl Chan %2d %s", channel, onOff)
	case AllNotesOff:
		return fmt.Sprintf("All Off Chan %2d", channel)
	case OmniOff:
		return fmt.Sprintf("OmniOff Chan %2d", channel)
	case OmniOn:
		return fmt.Sprintf("Omni On Chan %2d", channel)
	case MonoOn:
		if data2 != 0 {
			return fmt.Sprintf("Mono On Chan %2d to %d received channels", channel, data2)
		}
		return fmt.Sprintf("Mono On Chan %2d to all received channels", channel)
	case PolyOn:
		return fmt.Sprintf("Poly On Chan %2d", channel)
	}
	return fmt.Sprintf("CtrlChg Chan %2d Ctrl %2d Val %2d", channel, data1, data2)
}

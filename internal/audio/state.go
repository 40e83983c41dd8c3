package audio

import "fmt"

// State is the lifecycle state shared by devices and units.
// Closed is both the initial and the terminal state.
type State int32

const (
	StateClosed State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DeviceType selects the direction passed to ConfigInit. Only playback is
// implemented.
type DeviceType int

const (
	DevicePlayback DeviceType = iota
	DeviceCapture
	DeviceDuplex
)

func (t DeviceType) String() string {
	switch t {
	case DevicePlayback:
		return "playback"
	case DeviceCapture:
		return "capture"
	case DeviceDuplex:
		return "duplex"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

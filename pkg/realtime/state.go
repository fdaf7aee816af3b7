package realtime

// ConnectionState is the channel's position in its connection lifecycle.
// Transitions are driven by transport events and the reconnect policy:
// Disconnected -> Connecting -> Connected, and back to Disconnected on any
// closure.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

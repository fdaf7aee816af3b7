package realtime

import (
	"context"
	"errors"
)

// ErrNormalClosure is returned by Transport.Read when the peer closed the
// connection with the normal-closure code. Any other read error counts as an
// unexpected closure and feeds the reconnect policy.
var ErrNormalClosure = errors.New("realtime: connection closed normally")

// Transport is one live duplex connection carrying text frames.
type Transport interface {
	// Read blocks until the next frame arrives or the connection closes.
	Read() ([]byte, error)
	// Write sends one text frame.
	Write(frame []byte) error
	// Close tears the connection down. When normal is true the transport
	// sends the normal-closure code so the peer does not treat the
	// closure as a failure.
	Close(normal bool) error
}

// Dialer opens transports. The channel owns reconnection; the dialer only
// knows how to establish a single connection to a URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

package stream

import (
	"context"
)

// CloseNormal is the close code of a deliberate shutdown. A close with this
// code never triggers a reconnect.
const CloseNormal = 1000

// CloseAbnormal is reported when the connection dropped without a close frame.
const CloseAbnormal = 1006

// Handler receives the lifecycle signals of one connection attempt.
// Transports call it from a single goroutine per connection.
type Handler interface {
	HandleOpen(conn Conn)
	HandleMessage(payload []byte)
	HandleClose(code int, reason string)
	HandleError(err error)
}

// Conn is an open push connection.
type Conn interface {
	Send(payload []byte) error
	Close(code int, reason string) error
}

// Transport opens connections. Dial returns an error when the connection
// could not be established; once it returns nil the handler is guaranteed
// to eventually receive HandleClose.
type Transport interface {
	Dial(ctx context.Context, h Handler) error
}

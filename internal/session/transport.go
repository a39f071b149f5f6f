package session

import "time"

// FrameType distinguishes text control frames from binary audio frames.
type FrameType int

const (
	TextFrame FrameType = iota
	BinaryFrame
)

// Frame is one message read from the client connection.
type Frame struct {
	Type FrameType
	Data []byte
}

// Transport abstracts the client connection. ReadFrame blocks until a frame
// arrives, the deadline passes (ErrReadTimeout), or the connection drops.
// SendJSON and SendBinary must be safe for concurrent use: the coordinator
// and the reply pipeline goroutine both write.
type Transport interface {
	ReadFrame(deadline time.Time) (Frame, error)
	SendJSON(v any) error
	SendBinary(data []byte) error
	Close() error
}

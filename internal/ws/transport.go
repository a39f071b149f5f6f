package ws

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicewire/gateway/internal/session"
)

// maxFrameBytes bounds a single inbound frame; anything larger than a
// second of 48 kHz PCM plus header slack is a misbehaving client.
const maxFrameBytes = 1 << 20

const writeTimeout = 10 * time.Second

// transport adapts a gorilla websocket connection to session.Transport.
// Writes come from both the session goroutine and the reply pipeline
// goroutine, so they serialize on a mutex.
type transport struct {
	conn *websocket.Conn

	mu sync.Mutex
}

func newTransport(conn *websocket.Conn) *transport {
	conn.SetReadLimit(maxFrameBytes)
	return &transport{conn: conn}
}

func (t *transport) ReadFrame(deadline time.Time) (session.Frame, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return session.Frame{}, err
	}
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return session.Frame{}, session.ErrReadTimeout
			}
			return session.Frame{}, err
		}
		switch mt {
		case websocket.TextMessage:
			return session.Frame{Type: session.TextFrame, Data: data}, nil
		case websocket.BinaryMessage:
			return session.Frame{Type: session.BinaryFrame, Data: data}, nil
		}
	}
}

func (t *transport) SendJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteJSON(v)
}

func (t *transport) SendBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

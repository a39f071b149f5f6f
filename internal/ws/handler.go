package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicewire/gateway/internal/session"
)

// Handler upgrades /ws/audio requests and runs one session per connection.
// A semaphore caps concurrent sessions; clients over the cap get a 503
// before the upgrade rather than a half-open websocket.
type Handler struct {
	cfg      session.Config
	backends session.Backends
	log      *slog.Logger

	upgrader websocket.Upgrader
	sem      chan struct{}
}

func NewHandler(cfg session.Config, b session.Backends, maxSessions int, log *slog.Logger) *Handler {
	if maxSessions <= 0 {
		maxSessions = 64
	}
	return &Handler{
		cfg:      cfg,
		backends: b,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sem: make(chan struct{}, maxSessions),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		h.log.Warn("session rejected, at capacity", "remote", r.RemoteAddr)
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}

	device := r.URL.Query().Get("device")
	if device == "" {
		device = "unknown"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	coord := session.New(uuid.NewString(), device, h.cfg, newTransport(conn), h.backends, h.log)
	if err := coord.Run(); err != nil {
		h.log.Info("session ended with error", "session_id", coord.ID, "error", err)
	}
}

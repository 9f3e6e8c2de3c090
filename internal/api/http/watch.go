package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/metrics"
	"pickup-backend/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

const (
	frameSnapshot = "snapshot"
	frameUpdate   = "update"
)

// watchFrame is one WebSocket text message.
type watchFrame struct {
	Type     string                 `json:"type"`
	Snapshot *domain.RosterSnapshot `json:"snapshot,omitempty"`
	Event    *domain.ActivityEvent  `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	// Watch is read-only and no cookie carries credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Watch streams the live state of one activity. Errors before the upgrade use
// the normal JSON envelope.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	watch, err := h.coord.Watch(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer watch.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		logger.WithActivity(id).Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.WebsocketConnections.Inc()
	defer metrics.WebsocketConnections.Dec()
	log := logger.WithActivity(id).With("request_id", RequestIDFromContext(r.Context()))
	log.Debug("Watcher connected")

	go readPump(conn, cancel)
	go pingPump(ctx, conn)

	err = streamFrames(ctx, conn, watch)
	switch {
	case errors.Is(err, domain.ErrSubscriptionClosed):
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
	case errors.Is(err, context.Canceled):
		closeConn(conn, websocket.CloseNormalClosure, "")
	case err != nil:
		log.Warn("Watch stream ended", "error", err)
		closeConn(conn, websocket.CloseInternalServerErr, "stream failed, re-fetch and reconnect")
	}
	log.Debug("Watcher disconnected")
}

func streamFrames(ctx context.Context, conn *websocket.Conn, watch *service.Watch) error {
	for {
		fr, err := watch.Next(ctx)
		if err != nil {
			return err
		}
		out := watchFrame{Type: frameUpdate, Event: fr.Event}
		if fr.Snapshot != nil {
			out = watchFrame{Type: frameSnapshot, Snapshot: fr.Snapshot}
		}
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
}

// readPump discards client messages and cancels the stream once the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Unexpected websocket close", "error", err)
			}
			return
		}
	}
}

func pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

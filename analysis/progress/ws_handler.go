package progress

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Handler serves the per-task progress WebSocket endpoint
// (`/analysis/ws/task/{task_id}`). It is transport-only: routing and
// task_id extraction are the caller's responsibility.
type Handler struct {
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// NewHandler builds a Handler over broadcaster.
func NewHandler(broadcaster *Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{broadcaster: broadcaster, logger: logger.With(zap.String("component", "progress_ws_handler"))}
}

// Serve upgrades r to a WebSocket, sends the connection_established
// handshake, then streams taskID's progress events until the client
// disconnects or the request context is cancelled.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, taskID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	if err := wsjson.Write(ctx, conn, newConnectionEstablished(taskID)); err != nil {
		h.logger.Warn("failed to send connection_established", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	sub := h.broadcaster.Subscribe(taskID)
	defer h.broadcaster.Unsubscribe(taskID, sub)

	// Inbound messages are accepted but not required; draining them lets us
	// detect client-initiated close promptly instead of only on write error.
	go h.drainInbound(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.logger.Debug("progress write failed, closing subscription", zap.String("task_id", taskID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) drainInbound(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

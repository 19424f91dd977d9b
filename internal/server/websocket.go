package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/orchestrator"
	"github.com/datakettle/dp-composer/internal/store"
)

// Client-to-server websocket message types.
const (
	wsTypeMessage  = "message"
	wsTypeProgress = "progress"
	wsTypeReset    = "reset"
	wsTypePing     = "ping"
)

// wsEnvelope is what clients send. A frame that is not valid JSON is
// treated as a bare turn message.
type wsEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// wsReply is what the server sends back.
type wsReply struct {
	Type      string                   `json:"type"`
	SessionID string                   `json:"session_id,omitempty"`
	Reply     string                   `json:"reply,omitempty"`
	Result    *orchestrator.TurnResult `json:"result,omitempty"`
	Progress  *orchestrator.Progress   `json:"progress,omitempty"`
	Error     *domain.Error            `json:"error,omitempty"`
}

// handleWebsocket upgrades the connection and runs the chat loop: one
// inbound frame is one turn (or a control message), one outbound frame per
// reply. Turns stay sequential because the loop reads, handles, and writes
// in order.
func (h *Handlers) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = h.registry.NewSession()
	}
	if !store.ValidSessionID(sessionID) {
		writeError(w, r, domain.ErrInvalidRequest("invalid session id"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()
	h.logger.Info("websocket session opened",
		slog.String("session_id", sessionID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// The greeting frame carries the session id so clients that let the
	// server allocate one learn what to reconnect with.
	greeting, err := h.orch.Greeting(ctx, sessionID)
	if err != nil {
		h.wsSendError(ctx, conn, err)
		return
	}
	if err := h.wsSend(ctx, conn, wsReply{Type: "greeting", SessionID: sessionID, Reply: greeting}); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				conn.Close(websocket.StatusNormalClosure, "session ended")
			} else if ctx.Err() == nil {
				h.logger.Debug("websocket read failed",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg wsEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = wsEnvelope{Type: wsTypeMessage, Message: string(data)}
		}

		if err := h.wsDispatch(ctx, conn, sessionID, msg); err != nil {
			return
		}
	}
}

// wsDispatch handles one inbound frame. A returned error means the
// connection itself failed; turn-level failures go back as error frames.
func (h *Handlers) wsDispatch(ctx context.Context, conn *websocket.Conn, sessionID string, msg wsEnvelope) error {
	switch msg.Type {
	case wsTypePing:
		return h.wsSend(ctx, conn, wsReply{Type: "pong"})

	case wsTypeProgress:
		progress, err := h.orch.Progress(ctx, sessionID)
		if err != nil {
			return h.wsSendError(ctx, conn, err)
		}
		return h.wsSend(ctx, conn, wsReply{Type: "progress", SessionID: sessionID, Progress: progress})

	case wsTypeReset:
		if err := h.orch.Reset(ctx, sessionID); err != nil {
			return h.wsSendError(ctx, conn, err)
		}
		greeting, err := h.orch.Greeting(ctx, sessionID)
		if err != nil {
			return h.wsSendError(ctx, conn, err)
		}
		return h.wsSend(ctx, conn, wsReply{Type: "greeting", SessionID: sessionID, Reply: greeting})

	case wsTypeMessage, "":
		result, err := h.orch.HandleTurn(ctx, sessionID, msg.Message)
		if err != nil {
			return h.wsSendError(ctx, conn, err)
		}
		reply := wsReply{Type: "turn", SessionID: sessionID, Result: result}
		if progress, err := h.orch.Progress(ctx, sessionID); err == nil {
			reply.Progress = progress
		}
		return h.wsSend(ctx, conn, reply)

	default:
		return h.wsSendError(ctx, conn, domain.ErrInvalidRequest("unknown message type "+msg.Type))
	}
}

func (h *Handlers) wsSend(ctx context.Context, conn *websocket.Conn, reply wsReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// wsSendError reports a turn-level failure without dropping the connection.
func (h *Handlers) wsSendError(ctx context.Context, conn *websocket.Conn, err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.ErrServer("internal error")
	}
	return h.wsSend(ctx, conn, wsReply{Type: "error", Error: derr})
}

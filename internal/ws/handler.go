package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/hub"
	"github.com/DoyleJ11/vote-admin/internal/reconciler"
	"github.com/DoyleJ11/vote-admin/internal/summary"
	"github.com/DoyleJ11/vote-admin/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler streams the ranked summary of the caller's live view. The admin
// token comes from ?token= or a bearer header.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := tokenFrom(r)
		if token == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		view, err := h.Acquire(r.Context(), token)
		if err != nil || view == nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		defer h.Release(token)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan reconciler.Snapshot, 8)
		clientID := uuid.NewString()
		clog := log.With(zap.String("client_id", clientID))

		if !view.Join(clientID, out) {
			conn.Close(websocket.StatusTryAgainLater, "view closed")
			return
		}
		defer view.Leave(clientID)
		clog.Debug("observer joined")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, view, out, clog)

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("observer left")
				default:
					clog.Debug("observer read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeMsg(r.Context(), conn, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
				continue
			}

			switch cm.Type {
			case types.MsgGetState:
				st := view.State(r.Context())
				writeMsg(r.Context(), conn, types.Snapshot(st.Version, st.Seeded, st.Candidates))
			default:
				writeMsg(r.Context(), conn, types.ServerMessage{Type: types.MsgError, Error: "unknown type"})
			}
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, view *summary.View, out <-chan reconciler.Snapshot, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-view.AuthFailed():
			writeMsg(ctx, conn, types.ServerMessage{Type: types.MsgUnauthorized})
			log.Info("closing observer after auth failure", zap.Error(view.AuthErr()))
			conn.Close(websocket.StatusPolicyViolation, "unauthorized")
			return

		case snap, ok := <-out:
			if !ok {
				// Dropped as slow, or the view shut down.
				conn.Close(websocket.StatusGoingAway, "stream ended")
				return
			}
			writeMsg(ctx, conn, types.Snapshot(snap.Version, snap.Seeded, snap.Candidates))
		}
	}
}

func writeMsg(parent context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

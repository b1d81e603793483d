package controllers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mfigueroa/stockroom-backend/api/middleware"
	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/config"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients cannot set custom headers on websocket upgrades,
	// so origin enforcement happens at the edge.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Websocket upgrades the request and pumps inbound frames into the hub
// until the client disconnects. A bearer token binds the identity up
// front; anonymous clients register over the wire instead.
func Websocket(hub *realtime.Hub, cfg config.RealtimeConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure.
			if logg != nil {
				logg.Warn(ctx, "ws.upgrade_failed")
			}
			return
		}

		sock := realtime.NewGorillaSocket(conn, cfg.WriteTimeout)
		attached, err := hub.Attach(ctx, sock)
		if err != nil {
			sock.Close()
			return
		}

		if logg != nil {
			ctx = logg.WithConnectionID(ctx, attached.ID.String())
			logg.Info(ctx, "ws.connected")
		}

		if userID := middleware.UserIDFromContext(ctx); userID != "" {
			role := middleware.RoleFromContext(ctx)
			frame := fmt.Sprintf(`{"type":"register","data":{"id":%q,"role":%q}}`, userID, role)
			hub.Inbound(ctx, attached.ID, []byte(frame))
		}

		for {
			_, raw, readErr := conn.ReadMessage()
			if readErr != nil {
				break
			}
			hub.Inbound(ctx, attached.ID, raw)
		}

		hub.Detach(ctx, attached.ID)
		if logg != nil {
			logg.Info(ctx, "ws.disconnected")
		}
	}
}

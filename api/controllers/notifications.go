package controllers

import (
	"net/http"
	"strings"

	"github.com/mfigueroa/stockroom-backend/api/responses"
	"github.com/mfigueroa/stockroom-backend/api/validators"
	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/stockroom-backend/pkg/errors"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

type broadcastRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Message string `json:"message" validate:"required,max=2000"`
	Type    string `json:"type" validate:"omitempty,oneof=order_update payment_update low_stock out_of_stock system"`
}

// BroadcastNotification pushes an announcement to every open connection.
func BroadcastNotification(hub *realtime.Hub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "realtime hub unavailable"))
			return
		}

		var req broadcastRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind := enums.NotificationTypeSystem
		if raw := strings.TrimSpace(req.Type); raw != "" {
			parsed, err := enums.ParseNotificationType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification type"))
				return
			}
			kind = parsed
		}

		n := realtime.NewNotification(kind, strings.TrimSpace(req.Title), strings.TrimSpace(req.Message))
		hub.Broadcast(r.Context(), n)

		responses.WriteSuccessStatus(w, http.StatusAccepted, n)
	}
}

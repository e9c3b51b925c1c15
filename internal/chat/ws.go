package chat

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	myMiddleware "autohub-chat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin; browser origins are enforced by CORS on the REST side.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func WithSendBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithMaxMessageSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// ServeWs upgrades the request and starts the client pumps. The connect-time
// identity comes from the identity middleware.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id := myMiddleware.IdentityFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := newClient(h, conn, Identity{UserID: id.UserID, PartnerID: id.PartnerID})
	h.log.WithFields(logrus.Fields{
		"conn_id":    client.id,
		"user_id":    id.UserID,
		"partner_id": id.PartnerID,
	}).Debug("websocket connected")

	// The request context ends when ServeWs returns; pumps outlive it.
	go client.writePump()
	go client.readPump(context.Background())
}

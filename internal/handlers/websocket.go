package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/admission"
	"github.com/arefkin/peercall/internal/signaling"
)

// WSHandler upgrades realtime connections and walks them through admission
// before handing them to the hub.
type WSHandler struct {
	hub      *signaling.Hub
	gate     *admission.Gate
	upgrader websocket.Upgrader
	log      logging.LeveledLogger
}

// NewWSHandler builds the websocket entrypoint. The gate's origin policy
// doubles as the upgrader's CheckOrigin.
func NewWSHandler(hub *signaling.Hub, gate *admission.Gate, log logging.LeveledLogger) *WSHandler {
	return &WSHandler{
		hub:  hub,
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     gate.CheckOrigin,
		},
		log: log,
	}
}

// Serve runs the admission sequence for one connection: throttle before the
// upgrade, origin during it, token after it.
func (h *WSHandler) Serve(c *gin.Context) {
	addr := c.ClientIP()

	// Throttled sources get no protocol exchange at all.
	if err := h.gate.AllowAttempt(c.Request.Context(), addr); err != nil {
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error (including origin
		// rejections).
		h.log.Debugf("upgrade failed: addr=%s err=%v", addr, err)
		return
	}

	session, err := h.gate.Admit(c.Request.Context(), addr, c.Query("token"))
	if err != nil {
		if errors.Is(err, admission.ErrInvalidToken) {
			// Explicit error event before disconnecting.
			conn.WriteJSON(struct {
				Event signaling.Event      `json:"event"`
				Data  signaling.ErrorEvent `json:"data"`
			}{signaling.EventError, signaling.ErrorEvent{Message: "invalid or expired token"}})
		}
		conn.Close()
		return
	}

	client := signaling.NewClient(h.hub, conn, session)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

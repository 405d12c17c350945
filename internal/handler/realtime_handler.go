package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/studycal-api/internal/realtime"
)

// RealtimeHandler upgrades authenticated requests to the per-user status stream.
type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler constructs the handler. An empty allowedOrigins accepts any origin.
func NewRealtimeHandler(hub *realtime.Hub, allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &RealtimeHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Stream godoc
// @Summary Status stream
// @Description Websocket carrying integration, analysis, calendar and sync events for the caller.
// @Tags Realtime
// @Param access_token query string false "Bearer token for clients that cannot set headers"
// @Router /ws [get]
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.hub.Serve(conn, userID)
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arefkin/peercall/internal/handlers"
)

// APIEndpoints registers the REST surface and the websocket entry point.
func APIEndpoints(router *gin.Engine, roomH *handlers.RoomHandler, wsH *handlers.WSHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	api := router.Group("/api")
	{
		api.POST("/generate-room-token", roomH.GenerateRoomToken)
		api.POST("/verify-room-password", roomH.VerifyRoomPassword)
		api.GET("/room-info/:roomID", roomH.RoomInfo)
	}

	router.GET("/ws", wsH.Serve)
}

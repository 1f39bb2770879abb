package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haven-health/consult-signaling/internal/session"
)

// RoomStatus reports the live state of a room from the in-memory
// registry: whether it is waiting for its second member or active, and
// how many members it holds. Rooms are created by the first join and
// vanish on close, so a 404 means no call is in progress.
func RoomStatus(coordinator *session.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
			return
		}

		status, ok := coordinator.Status(roomID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

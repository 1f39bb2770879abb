package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/session"
)

type nopSink struct{}

func (nopSink) Deliver(event.Envelope) error { return nil }

func newStatusRouter(coordinator *session.Coordinator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/rooms/:roomId", RoomStatus(coordinator))
	return r
}

func TestRoomStatusWaiting(t *testing.T) {
	coordinator := session.NewCoordinator(session.NewRegistry(), nil, time.Minute, zerolog.Nop())
	require.NoError(t, coordinator.Join("R1", "U1", nopSink{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/R1", nil)
	newStatusRouter(coordinator).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status session.RoomStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "R1", status.RoomID)
	assert.Equal(t, session.StateOneJoined, status.State)
	assert.Equal(t, 1, status.Members)
}

func TestRoomStatusNotFound(t *testing.T) {
	coordinator := session.NewCoordinator(session.NewRegistry(), nil, time.Minute, zerolog.Nop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/nope", nil)
	newStatusRouter(coordinator).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

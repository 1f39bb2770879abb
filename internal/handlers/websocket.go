package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/invite"
	"github.com/haven-health/consult-signaling/internal/middleware"
	"github.com/haven-health/consult-signaling/internal/presence"
	"github.com/haven-health/consult-signaling/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Server is the websocket edge: it authenticates connections, binds them
// into presence, and dispatches inbound events to the broker, the
// coordinator and the relay.
type Server struct {
	coordinator *session.Coordinator
	broker      *invite.Broker
	tracker     *presence.Tracker
	jwtSecret   string
	log         zerolog.Logger
}

func NewServer(coordinator *session.Coordinator, broker *invite.Broker, tracker *presence.Tracker, jwtSecret string, log zerolog.Logger) *Server {
	return &Server{
		coordinator: coordinator,
		broker:      broker,
		tracker:     tracker,
		jwtSecret:   jwtSecret,
		log:         log.With().Str("component", "ws").Logger(),
	}
}

// HandleCall upgrades GET /ws/call?token=... into the client's persistent
// event channel. The identity comes from the token, never from the
// client's own envelopes. Browser websocket clients cannot set headers,
// hence the query parameter.
func (s *Server) HandleCall(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}
	claims, err := middleware.ParseToken(token, s.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	identity := claims.UserID
	connID := uuid.New().String()
	clog := s.log.With().Str("identity", identity).Str("conn", connID).Logger()
	client := newClient(identity, connID, conn, clog)

	// A reconnect supersedes the previous connection; close it so its
	// pumps exit. Its Unbind becomes a no-op because the handle no
	// longer matches.
	if prev := s.tracker.Bind(identity, client); prev != nil {
		if old, ok := prev.(*Client); ok {
			old.close()
		}
	}

	go client.writePump()
	client.readPump(s.dispatch)

	s.tracker.Unbind(identity, client)
}

// dispatch routes one inbound envelope. Protocol failures are reported
// back to the sender as an error event; none are fatal to the connection.
func (s *Server) dispatch(c *Client, env event.Envelope) {
	var err error
	switch env.Event {
	case event.NameRing:
		err = s.broker.Ring(c.identity, env.To, env.RoomID, env.DisplayName)

	case event.NameCallResponse:
		if !env.Decision.Valid() {
			c.log.Warn().Str("decision", string(env.Decision)).Msg("rejected call response with unknown decision")
			c.Deliver(event.Envelope{Event: event.NameError, RoomID: env.RoomID, ErrorKind: "invalid-decision"})
			return
		}
		err = s.broker.Respond(env.RoomID, c.identity, env.Decision)

	case event.NameJoinRoom:
		err = s.coordinator.Join(env.RoomID, c.identity, c)

	case event.NameSignal:
		if !env.Kind.Valid() {
			c.log.Warn().Str("kind", string(env.Kind)).Msg("rejected signal with unknown kind")
			c.Deliver(event.Envelope{Event: event.NameError, RoomID: env.RoomID, ErrorKind: "invalid-signal-kind"})
			return
		}
		err = s.coordinator.Relay(env.RoomID, c.identity, env.Kind, env.Payload)

	case event.NameLeaveRoom:
		err = s.coordinator.Leave(env.RoomID, c.identity)

	default:
		c.log.Warn().Str("event", string(env.Event)).Msg("unknown event")
		return
	}

	if err != nil {
		c.log.Info().Str("event", string(env.Event)).Str("room", env.RoomID).
			Str("kind", event.KindOf(err)).Msg("request failed")
		c.Deliver(event.Failure(env.RoomID, err))
	}
}

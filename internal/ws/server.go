package ws

import (
	"log"
	"net/http"

	"ogonyok/internal/auth"

	"github.com/gorilla/websocket"
)

type Server struct {
	verifier auth.Verifier
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(verifier auth.Verifier, hub *Hub) *Server {
	return &Server{
		verifier: verifier,
		hub:      hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections authenticates the handshake and runs the connection
// until it drops. Connections without a userId, or whose token does not
// resolve to that user, are rejected before the upgrade.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusUnauthorized)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("token")
	}
	verifiedID, err := s.verifier.Verify(token)
	if err != nil || verifiedID != userID {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, ws, userID)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("connection closed with error: %v", err)
	}
}

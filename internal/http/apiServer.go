package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"ogonyok/internal/api"
	"ogonyok/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	// Group lifecycle
	mux.HandleFunc("POST /api/groups", apiHandlers.RequireAuth(apiHandlers.CreateGroupHandler))
	mux.HandleFunc("GET /api/groups", apiHandlers.RequireAuth(apiHandlers.GroupsHandler))
	mux.HandleFunc("POST /api/groups/join", apiHandlers.RequireAuth(apiHandlers.JoinGroupHandler))
	mux.HandleFunc("POST /api/groups/join/invite/{token}", apiHandlers.RequireAuth(apiHandlers.JoinViaInviteHandler))
	mux.HandleFunc("POST /api/groups/{id}/invite", apiHandlers.RequireAuth(apiHandlers.GenerateInviteHandler))
	mux.HandleFunc("PATCH /api/groups/{id}/extend", apiHandlers.RequireAuth(apiHandlers.ExtendGroupHandler))
	mux.HandleFunc("DELETE /api/groups/{id}", apiHandlers.RequireAuth(apiHandlers.EndGroupHandler))

	// History and directory
	mux.HandleFunc("GET /api/messages/{kind}/{chatId}", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))

	// Media
	mux.HandleFunc("POST /api/upload/image", apiHandlers.RequireAuth(apiHandlers.UploadImageHandler))
	mux.HandleFunc("GET /api/images/{id}", apiHandlers.GetImageHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}

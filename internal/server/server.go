// Package server is the optional read-only monitor: health, a status snapshot
// and a WebSocket mirror of the controller's event bus.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"ledstrip-controller/internal/core"
)

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	httpServer *http.Server
	router     chi.Router
	getStatus  func() interface{}

	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new server instance. getStatus must be safe for concurrent use.
func NewServer(port string, allowedOrigins []string, getStatus func() interface{}) *Server {
	s := &Server{
		Hub:            NewHub(),
		getStatus:      getStatus,
		allowedOrigins: allowedOrigins,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("[Monitor] WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
			return false
		},
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	router.Get("/healthz", s.handleHealth)
	router.Get("/api/state", s.handleState)
	router.Get("/ws", s.handleWebSocket)
	s.router = router

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Forward mirrors every bus event to WebSocket clients until ctx ends.
func (s *Server) Forward(ctx context.Context, eb *core.EventBus) {
	sub := eb.Subscribe(core.AllEvents...)
	defer eb.Unsubscribe(sub, core.AllEvents...)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			s.Hub.Broadcast(NewMessage(string(ev.Type), ev.Payload))
		}
	}
}

// ListenAndServe runs the hub and the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.Hub.Run(ctx)
	log.Printf("[Monitor] Listening on http://localhost%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.getStatus())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Monitor] Failed to encode response: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Monitor] WebSocket upgrade error: %v", err)
		return
	}

	if err := conn.WriteJSON(NewMessage("state", s.getStatus())); err != nil {
		conn.Close()
		return
	}

	if !s.Hub.add(conn) {
		conn.Close()
		return
	}
	defer s.Hub.remove(conn)

	// Тільки читання: вхідні фрейми відкидаються, цикл лише помічає закриття.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

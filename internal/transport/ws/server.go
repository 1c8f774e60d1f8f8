package ws

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

type ServerConfig struct {
	Address string
}

type Server struct {
	hub        *Hub
	httpServer *http.Server
	config     ServerConfig
	log        zerolog.Logger
}

func NewServer(hub *Hub, config ServerConfig, log zerolog.Logger) *Server {
	return &Server{hub: hub, config: config, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: s.Handler(),
	}
	s.log.Info().Str("address", s.config.Address).Msg("WebSocket server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Package status exposes the read-only HTTP status endpoint: overall
// process health, messaging-channel connectivity, and uptime.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"blastbot/internal/channel"
	"blastbot/pkg/logx"
)

type Config struct {
	Addr string
}

type payload struct {
	Status  string `json:"status"`
	Channel string `json:"channel"`
	Uptime  string `json:"uptime"`
}

// Server manages lifecycle for the status HTTP listener.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	conn *channel.Connectivity

	srv     *http.Server
	ln      net.Listener
	addr    string
	started time.Time
}

func NewServer(log logx.Logger, conn *channel.Connectivity) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log, conn: conn}
}

func (s *Server) Start(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)

	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{Handler: r}
	s.ln = ln
	s.addr = ln.Addr().String()
	s.started = time.Now()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("status endpoint listening", logx.String("addr", s.addr))
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	state := channel.StateDisconnected
	if s.conn != nil {
		state = s.conn.State()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload{
		Status:  "ok",
		Channel: state.String(),
		Uptime:  time.Since(started).Round(time.Second).String(),
	})
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return
	}
	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("status shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
}

package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/eval-studio/internal/config"
	"github.com/stellarlinkco/eval-studio/internal/run"
	"github.com/stellarlinkco/eval-studio/internal/store"
)

type Server struct {
	router *gin.Engine
	store  store.Store
	orch   *run.Orchestrator
	worker *run.Worker
	config *config.Config
}

func NewServer(cfg *config.Config, st store.Store, orch *run.Orchestrator, worker *run.Worker) (*Server, error) {
	r := gin.New()
	s := &Server{
		router: r,
		store:  st,
		orch:   orch,
		worker: worker,
		config: cfg,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}

// Package server assembles the gateway HTTP surface.
package server

import (
	"log/slog"
	"net/http"

	"github.com/voxprep/voxprep/pkg/gateway/config"
	"github.com/voxprep/voxprep/pkg/gateway/handlers"
	"github.com/voxprep/voxprep/pkg/gateway/mw"
	"github.com/voxprep/voxprep/pkg/gateway/report"
	"github.com/voxprep/voxprep/pkg/gateway/store"
	"github.com/voxprep/voxprep/pkg/gateway/tokens"
	"github.com/voxprep/voxprep/pkg/interview"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
}

// Deps are the collaborators the handlers run on. The caller owns their
// lifecycles; the server only routes to them.
type Deps struct {
	Store     store.Store
	Minter    tokens.Minter
	Reports   report.Writer
	Questions []interview.Question
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes(deps)
	return s
}

func (s *Server) routes(deps Deps) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Store: deps.Store})

	session := handlers.SessionHandler{
		Config:    s.cfg,
		Store:     deps.Store,
		Minter:    deps.Minter,
		Reports:   deps.Reports,
		Questions: deps.Questions,
		Logger:    s.logger,
	}
	s.mux.HandleFunc("/v1/session/init", session.Init)
	s.mux.HandleFunc("/v1/session/flush", session.Flush)
	s.mux.HandleFunc("/v1/session/answer", session.Answer)
	s.mux.HandleFunc("/v1/session/complete", session.Complete)
	s.mux.HandleFunc("/v1/session/report", session.Report)
	s.mux.HandleFunc("/v1/session/reset", session.Reset)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

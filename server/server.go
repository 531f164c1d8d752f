package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/tagview/asset"
)

var log = commonlog.GetLogger("tagview.server")

// InspectServiceName is the fully-qualified service name.
const InspectServiceName = "tagview.v1.InspectService"

// Procedure paths served by InspectService.
const (
	StatsProcedure            = "/" + InspectServiceName + "/Stats"
	ListEntriesProcedure      = "/" + InspectServiceName + "/ListEntries"
	ReadTagProcedure          = "/" + InspectServiceName + "/ReadTag"
	LoadTechniqueProcedure    = "/" + InspectServiceName + "/LoadTechnique"
	DisassembleProcedure      = "/" + InspectServiceName + "/Disassemble"
	EvaluateProcedure         = "/" + InspectServiceName + "/Evaluate"
	ReleaseHandleProcedure    = "/" + InspectServiceName + "/ReleaseHandle"
	DiagnosticsProcedure      = "/" + InspectServiceName + "/Diagnostics"
	ClearDiagnosticsProcedure = "/" + InspectServiceName + "/ClearDiagnostics"
	ExternsProcedure          = "/" + InspectServiceName + "/Externs"
	SetExternProcedure        = "/" + InspectServiceName + "/SetExtern"
	SetChannelProcedure       = "/" + InspectServiceName + "/SetChannel"
)

// Server serves the inspection service over Connect, gRPC and gRPC-Web on
// one port.
type Server struct {
	worker  *RenderWorker
	handles *HandleStore
	inspect *InspectService
	mux     *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*config)

type config struct {
	sweepInterval time.Duration
	handleTTL     time.Duration
	state         *RenderState
}

// WithHandleTTL sets how long an unused technique handle survives and how
// often idle handles are swept.
func WithHandleTTL(interval, ttl time.Duration) Option {
	return func(c *config) {
		c.sweepInterval = interval
		c.handleTTL = ttl
	}
}

// WithRenderState starts the render worker from an existing state.
func WithRenderState(s *RenderState) Option {
	return func(c *config) { c.state = s }
}

// New creates a Server over the given loader and type registry.
func New(l *asset.Loader, types *asset.Types, opts ...Option) *Server {
	cfg := &config{
		sweepInterval: 5 * time.Minute,
		handleTTL:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.state == nil {
		cfg.state = NewRenderState()
	}

	worker := NewRenderWorker(cfg.state)
	handles := NewHandleStore()
	s := &Server{
		worker:  worker,
		handles: handles,
		inspect: NewInspectService(l, types, worker, handles),
		mux:     http.NewServeMux(),
	}
	s.register()
	s.stopSweeper = handles.StartSweeper(cfg.sweepInterval, cfg.handleTTL)
	return s
}

func (s *Server) register() {
	svc := s.inspect
	s.mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, svc.Stats))
	s.mux.Handle(ListEntriesProcedure, connect.NewUnaryHandler(ListEntriesProcedure, svc.ListEntries))
	s.mux.Handle(ReadTagProcedure, connect.NewUnaryHandler(ReadTagProcedure, svc.ReadTag))
	s.mux.Handle(LoadTechniqueProcedure, connect.NewUnaryHandler(LoadTechniqueProcedure, svc.LoadTechnique))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble))
	s.mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, svc.Evaluate))
	s.mux.Handle(ReleaseHandleProcedure, connect.NewUnaryHandler(ReleaseHandleProcedure, svc.ReleaseHandle))
	s.mux.Handle(DiagnosticsProcedure, connect.NewUnaryHandler(DiagnosticsProcedure, svc.Diagnostics))
	s.mux.Handle(ClearDiagnosticsProcedure, connect.NewUnaryHandler(ClearDiagnosticsProcedure, svc.ClearDiagnostics))
	s.mux.Handle(ExternsProcedure, connect.NewUnaryHandler(ExternsProcedure, svc.Externs))
	s.mux.Handle(SetExternProcedure, connect.NewUnaryHandler(SetExternProcedure, svc.SetExtern))
	s.mux.Handle(SetChannelProcedure, connect.NewUnaryHandler(SetChannelProcedure, svc.SetChannel))
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler { return s.mux }

// Inspect returns the service implementation.
func (s *Server) Inspect() *InspectService { return s.inspect }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Noticef("tagview inspection server listening on %s", addr)
	log.Infof("  Connect (HTTP/JSON): http://%s%s", addr, StatsProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the sweeper and the render worker.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}

// Package server exposes the simulation over HTTP for debugging: agent and
// tree inspection, Prometheus metrics, and a websocket trace stream.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/zeusync/npcbrain/internal/assets"
	"github.com/zeusync/npcbrain/internal/core/agents"
	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
	"github.com/zeusync/npcbrain/internal/core/observability/metrics"
	"github.com/zeusync/npcbrain/pkg/generic"
)

// maxPooledBuffer bounds response buffers kept for reuse.
const maxPooledBuffer = 64 << 10

// Server is the debug HTTP surface of a running simulation.
type Server struct {
	ctx     context.Context
	agents  *agents.Manager
	trees   *assets.Library
	metrics *metrics.Metrics
	tracer  *Tracer
	log     log.Log
	buffers *generic.Pool[*bytes.Buffer]

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a server. Agents spawned over HTTP inherit ctx. metrics and
// tracer may be nil.
func New(ctx context.Context, mgr *agents.Manager, lib *assets.Library, m *metrics.Metrics, tracer *Tracer, logger log.Log) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{
		ctx:     ctx,
		agents:  mgr,
		trees:   lib,
		metrics: m,
		tracer:  tracer,
		log:     logger.Named("server"),
		buffers: generic.NewPool(
			func() *bytes.Buffer { return new(bytes.Buffer) },
			generic.WithReset(func(b *bytes.Buffer) { b.Reset() }),
			generic.WithKeep(func(b *bytes.Buffer) bool { return b.Cap() <= maxPooledBuffer }),
			generic.WithWarm[*bytes.Buffer](4),
		),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	if s.tracer != nil {
		r.Handle("/ws", s.tracer)
	}

	r.Route("/trees", func(r chi.Router) {
		r.Get("/", s.listTrees)
		r.Get("/{name}", s.getTree)
	})
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Post("/", s.spawnAgent)
		r.Get("/{id}", s.getAgent)
		r.Delete("/{id}", s.despawnAgent)
		r.Post("/{id}/events", s.publishEvent)
	})
	return r
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ErrServerAlreadyRunning
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", log.Error(err))
		}
	}()
	s.log.Info("debug server listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address while running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotRunning
	}
	return srv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		s.log.Error("encode response", log.Error(err))
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type treeSummary struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Stats       *bt.Stats `json:"stats,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NodeView is one row of a flattened tree.
type NodeView struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Skip  int    `json:"skip"`
	Depth int    `json:"depth"`
}

// Flatten lists the nodes of t in pre-order.
func Flatten(t *bt.CompiledTree) []NodeView {
	out := make([]NodeView, t.Len())
	for i := range out {
		n := t.Node(i)
		out[i] = NodeView{Index: i, Type: n.Type, Skip: n.Skip, Depth: n.Depth}
	}
	return out
}

func (s *Server) listTrees(w http.ResponseWriter, _ *http.Request) {
	names := s.trees.Names()
	out := make([]treeSummary, 0, len(names))
	for _, name := range names {
		doc, _ := s.trees.Document(name)
		sum := treeSummary{Name: name, Description: doc.Description}
		if tree, err := s.trees.Tree(name); err != nil {
			sum.Error = err.Error()
		} else {
			stats := tree.Stats()
			sum.Stats = &stats
		}
		out = append(out, sum)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tree, err := s.trees.Tree(name)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, assets.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Name  string     `json:"name"`
		Stats bt.Stats   `json:"stats"`
		Nodes []NodeView `json:"nodes"`
	}{name, tree.Stats(), Flatten(tree)})
}

func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	list := s.agents.List()
	out := make([]agents.Info, 0, len(list))
	for _, a := range list {
		out = append(out, a.Info())
	}
	s.writeJSON(w, http.StatusOK, out)
}

type spawnRequest struct {
	Tree string         `json:"tree"`
	Vars map[string]any `json:"vars"`
}

func (s *Server) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tree == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: expected {\"tree\": name}", ErrInvalidRequest))
		return
	}
	vars := make(map[string]any)
	if doc, ok := s.trees.Document(req.Tree); ok {
		for k, v := range doc.Variables {
			vars[k] = v
		}
	}
	for k, v := range req.Vars {
		vars[k] = v
	}
	a, err := s.agents.Spawn(s.ctx, req.Tree, vars)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, assets.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a.Info())
}

func (s *Server) agent(w http.ResponseWriter, r *http.Request) (*agents.Agent, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: bad agent id", ErrInvalidRequest))
		return nil, false
	}
	a, ok := s.agents.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, agents.ErrAgentNotFound)
		return nil, false
	}
	return a, true
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	vars := make(map[string]any)
	for _, k := range a.Memory.Keys() {
		vars[k.Name()] = a.Memory.Get(k)
	}
	s.writeJSON(w, http.StatusOK, struct {
		agents.Info
		Memory map[string]any `json:"memory"`
	}{a.Info(), vars})
}

func (s *Server) despawnAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	if err := s.agents.Despawn(a.ID); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventRequest struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// publishEvent delivers an event on the agent's topic, where Event
// conditions listen.
func (s *Server) publishEvent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: expected {\"type\": event}", ErrInvalidRequest))
		return
	}
	ev := bus.NewEvent(req.Type, "http", req.Data)
	if err := s.agents.Session().Events().PublishToTopic(a.ID.String(), ev); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

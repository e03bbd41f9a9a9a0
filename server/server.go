package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/pipeline"
)

// Options configures a Server
type Options struct {
	Pipeline       *pipeline.Pipeline
	Logger         *zap.SugaredLogger
	AllowedOrigins []string
	// MutationsPerSecond limits approve/reject/regenerate/start requests; 0 disables the limit
	MutationsPerSecond float64
}

// Server exposes runs and their gates over HTTP and streams gate events over /ws
type Server struct {
	pipeline       *pipeline.Pipeline
	logger         *zap.SugaredLogger
	allowedOrigins []string
	limiter        *rate.Limiter
	mux            *http.ServeMux

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	httpServer *http.Server

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
	state          atomic.Int32
}

// New creates a server. Call Start or Handler to serve it.
func New(opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		pipeline:       opts.Pipeline,
		logger:         logger.OrNop(opts.Logger),
		allowedOrigins: opts.AllowedOrigins,
		limiter:        rate.NewLimiter(limitFor(opts.MutationsPerSecond), burstFor(opts.MutationsPerSecond)),
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		ctx:            ctx,
		cancel:         cancel,
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.New(pipeline.Config{Logger: opts.Logger})
	}
	s.setupHTTPRoutes()
	return s
}

func limitFor(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func burstFor(perSecond float64) int {
	if perSecond < 1 {
		return 1
	}
	return int(perSecond)
}

// SetMutationRate changes the mutation rate limit of a running server
func (s *Server) SetMutationRate(perSecond float64) {
	s.limiter.SetLimit(limitFor(perSecond))
	s.limiter.SetBurst(burstFor(perSecond))
	s.logger.Infow("Mutation rate limit updated", "per_second", perSecond)
}

// Pipeline returns the pipeline behind the server
func (s *Server) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Handler returns the server's routes
func (s *Server) Handler() http.Handler { return s.mux }

// Run is the client hub. It forwards every gate event to connected clients
// until the server is stopped.
func (s *Server) Run() {
	events, unsubscribe := s.pipeline.Manager().Subscribe(eventBuffer)
	defer unsubscribe()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case ev := <-events:
			s.broadcastEvent(ev)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Client limit reached, rejecting connection",
			"client_id", client.id,
			"limit", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", total,
	)
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client]
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	if ok {
		client.close()
		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", total,
		)
	}
}

// clientCount returns the number of connected websocket clients
func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nileneb/growdash/internal/agent"
	"github.com/Nileneb/growdash/internal/events"
	"github.com/Nileneb/growdash/internal/infrastructure/config"
	"github.com/Nileneb/growdash/internal/infrastructure/logging"
	"github.com/Nileneb/growdash/internal/registry"
	"github.com/Nileneb/growdash/internal/supervisor"
)

const gracefulShutdownTimeout = 10 * time.Second

// Inventory is the registry view the handlers need.
type Inventory interface {
	All() []registry.Entry
	Refresh(ctx context.Context) error
	DefaultPort() (string, bool)
	SerialPorts() []registry.Entry
}

// Sessions is the supervisor view the handlers need.
type Sessions interface {
	Handles() []supervisor.HandleInfo
	SessionFor(port string) (supervisor.Session, bool)
}

// FrameProvider serves camera snapshots and frame streams by registry path.
type FrameProvider interface {
	Snapshot(key string) ([]byte, error)
	Stream(ctx context.Context, key string) <-chan []byte
}

// EventLister pages through the persisted device event journal.
type EventLister interface {
	List(ctx context.Context, f events.Filter) (*events.ListResult, error)
}

// Deps carries everything the HTTP surface depends on. Camera and Journal
// may be nil, in which case the related endpoints return 404.
type Deps struct {
	Config     *config.Config
	Logger     *logging.Logger
	Registry   Inventory
	Supervisor Sessions
	Executor   *agent.Executor
	Camera     FrameProvider
	Journal    EventLister
	Version    string
}

// Server is the HTTP API server.
//
// Thread Safety: Start and Close may be called from different goroutines.
// Handlers run concurrently on the http.Server's goroutines.
type Server struct {
	deps       Deps
	httpServer *http.Server
}

// New validates deps and builds a server. It does not start listening.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("api: config is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("api: registry is required")
	}
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("api: supervisor is required")
	}
	if deps.Executor == nil {
		deps.Executor = agent.NewExecutor(5 * time.Second)
	}

	s := &Server{deps: deps}
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", deps.Config.API.Host, deps.Config.API.Port),
		Handler:     s.buildRouter(),
		ReadTimeout: deps.Config.ReadTimeout(),
		// Write timeout must stay zero when MJPEG streaming is in use,
		// otherwise long-lived streams are cut off mid-frame.
		WriteTimeout: deps.Config.WriteTimeout(),
		IdleTimeout:  deps.Config.IdleTimeout(),
	}
	return s, nil
}

// Start runs the HTTP listener until it fails or Close is called.
// It blocks, so callers usually run it on its own goroutine.
func (s *Server) Start() error {
	s.deps.Logger.Info("api server starting", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close drains in-flight requests with a bounded grace period.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	s.deps.Logger.Info("api server stopping")
	return s.httpServer.Shutdown(ctx)
}

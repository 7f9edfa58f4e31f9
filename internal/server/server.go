// Package server orchestrates all components: COMMS client, handler registry,
// dispatcher, event publisher and the HTTP adapter.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/apiview-dispatcher/internal/builtin"
	"github.com/morezero/apiview-dispatcher/internal/config"
	"github.com/morezero/apiview-dispatcher/pkg/commsutil"
	"github.com/morezero/apiview-dispatcher/pkg/dispatcher"
	"github.com/morezero/apiview-dispatcher/pkg/events"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

const logPrefix = "server:server"

// Server is the apiview-dispatcher orchestrator.
type Server struct {
	cfg     *config.Config
	nc      *comms.Conn
	reg     *fetcher.Registry
	fetch   *fetcher.Fetcher
	disp    *dispatcher.Dispatcher
	comms   *commsState
	started time.Time
}

// commsState tracks the COMMS connection reported by commsutil so /ready can
// refuse traffic while the dispatcher is reconnecting.
type commsState struct {
	down atomic.Bool
}

func (c *commsState) set(state commsutil.State) {
	c.down.Store(state != commsutil.StateReconnected)
}

func (c *commsState) ready() bool {
	return !c.down.Load()
}

// NewServerParams holds parameters for NewServer.
type NewServerParams struct {
	Config *config.Config
	// Registry holds the handlers; builtin handlers are added to it.
	Registry *fetcher.Registry
	// Conn is optional; without it the server only serves HTTP.
	Conn      *comms.Conn
	Publisher events.EventPublisher
	// Prefix overrides the MS_PATH lookup of the fetcher.
	Prefix func() string
}

// NewServer wires the registry, fetcher and dispatcher.
func NewServer(params NewServerParams) *Server {
	cfg := params.Config
	reg := params.Registry
	if reg == nil {
		reg = fetcher.NewRegistry()
	}
	started := time.Now()
	builtin.Register(reg, cfg.HandlerPrefix, builtin.Info{Service: cfg.COMMSName, Started: started})

	var opts []fetcher.Option
	if params.Prefix != nil {
		opts = append(opts, fetcher.WithPrefix(params.Prefix))
	}
	f := fetcher.New(reg, opts...)

	return &Server{
		cfg:   cfg,
		nc:    params.Conn,
		reg:   reg,
		fetch: f,
		disp: dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
			Fetcher:    f,
			Generation: cfg.HandlerGeneration(),
			Publisher:  params.Publisher,
		}),
		comms:   &commsState{},
		started: started,
	}
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.disp
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	SetupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting %s (generation %s)", logPrefix, cfg.COMMSName, cfg.Generation))

	state := &commsState{}
	opts := cfg.CommsOptions()
	opts.OnStateChange = state.set
	nc, err := commsutil.Connect(cfg.COMMSURL, opts)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.PublishEvents {
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.DispatchEventSubject})
		slog.Info(fmt.Sprintf("%s - Publishing dispatched events on %s", logPrefix, cfg.DispatchEventSubject))
	}

	s := NewServer(NewServerParams{
		Config:    cfg,
		Registry:  fetcher.NewRegistry(),
		Conn:      nc,
		Publisher: publisher,
	})
	s.comms = state

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx)
}

// Serve subscribes to the dispatch subject (when connected) and runs the HTTP
// adapter until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	var sub *comms.Subscription
	if s.nc != nil {
		var err error
		sub, err = s.Subscribe(ctx)
		if err != nil {
			s.nc.Close()
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthCheckTimeout)
		defer cancel()

		var err error
		if sub != nil {
			err = multierr.Append(err, sub.Unsubscribe())
		}
		err = multierr.Append(err, httpServer.Shutdown(shutdownCtx))
		if s.nc != nil {
			err = multierr.Append(err, s.nc.Drain())
		}
		return err
	})

	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, s.cfg.COMMSName))
	err := g.Wait()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// SetupLogging installs the default slog logger at the named level.
func SetupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)})))
}

// ParseLevel maps a LOG_LEVEL value to a slog level; unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

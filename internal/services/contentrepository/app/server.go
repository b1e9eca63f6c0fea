package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/contentgraph/internal/platform/metrics"
	"github.com/louisbranch/contentgraph/internal/platform/timeouts"
)

// HealthService is the health check name reported for the repository.
const HealthService = "contentgraph.v1.ContentRepository"

// Server hosts a Repository.
type Server struct {
	listener        net.Listener
	grpcServer      *grpc.Server
	health          *health.Server
	metricsServer   *http.Server
	metricsListener net.Listener
	repo            *Repository
	catchUpInterval time.Duration
}

// NewServer listens on the configured addresses and serves repo. A blank
// metrics address disables the metrics endpoint. The server owns repo.
func NewServer(cfg Config, repo *Repository) (*Server, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	s := &Server{
		listener:        listener,
		grpcServer:      grpcServer,
		health:          healthServer,
		repo:            repo,
		catchUpInterval: cfg.CatchUpInterval,
	}
	if cfg.MetricsAddr != "" {
		metricsListener, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("listen on %s: %w", cfg.MetricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsListener = metricsListener
		s.metricsServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: timeouts.ReadHeader,
		}
	}
	return s, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MetricsAddr returns the metrics listener address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	if s == nil || s.metricsListener == nil {
		return ""
	}
	return s.metricsListener.Addr().String()
}

// Run opens the repository named by cfg and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	repo, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	server, err := NewServer(cfg, repo)
	if err != nil {
		_ = repo.Close()
		return err
	}
	return server.Serve(ctx)
}

// Serve catches up the projections, reports SERVING and blocks until the
// servers stop or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeRepository()

	if err := s.repo.CatchUp(ctx); err != nil {
		_ = s.listener.Close()
		if s.metricsListener != nil {
			_ = s.metricsListener.Close()
		}
		return err
	}
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	log.Printf("contentgraph listening at %v", s.listener.Addr())
	serveErr := make(chan error, 2)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	if s.metricsServer != nil {
		log.Printf("metrics listening at %v", s.metricsListener.Addr())
		go func() {
			serveErr <- s.metricsServer.Serve(s.metricsListener)
		}()
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.catchUpLoop(loopCtx)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	stopLoop()
	<-loopDone
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.closeMetrics(context.Background())
	log.Printf("contentgraph stopped")
	return handleErr(err)
}

// catchUpLoop picks up events written by other processes sharing the event
// store.
func (s *Server) catchUpLoop(ctx context.Context) {
	if s.catchUpInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.catchUpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.repo.CatchUp(ctx); err != nil && ctx.Err() == nil {
				log.Printf("periodic catch-up: %v", err)
			}
		}
	}
}

func (s *Server) closeMetrics(ctx context.Context) {
	if s.metricsServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeouts.Shutdown)
	defer cancel()
	if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown metrics server: %v", err)
	}
}

func (s *Server) closeRepository() {
	if s == nil || s.repo == nil {
		return
	}
	if err := s.repo.Close(); err != nil {
		log.Printf("close repository: %v", err)
	}
}

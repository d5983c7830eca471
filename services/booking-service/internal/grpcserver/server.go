// Package grpcserver serves the standard gRPC health service, reporting the
// same dependency checks as /readyz.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/grpcx"
	"github.com/md-rashed-zaman/primetable/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name clients can query in addition to "".
const ServiceName = "primetable.booking"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	checks []runtime.ReadyCheck
	every  time.Duration
	logger *slog.Logger
}

func New(logger *slog.Logger, every time.Duration, checks ...runtime.ReadyCheck) *Server {
	if every <= 0 {
		every = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpcx.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return &Server{grpc: srv, health: hs, checks: checks, every: every, logger: logger}
}

// Probe runs every check once and publishes the result.
func (s *Server) Probe(ctx context.Context) bool {
	ok := true
	for _, c := range s.checks {
		if c.Check == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			ok = false
			s.logger.Warn("dependency not ready", "check", c.Name, "err", err)
		}
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return ok
}

// Serve probes dependencies on a ticker and serves until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)
	go func() {
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				s.Probe(ctx)
			}
		}
	}()
	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

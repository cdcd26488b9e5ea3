package grpc

import (
	"context"
	"fmt"
	"net"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	cfg    *cfg.GRPCConfig
	logger logger.Logger
}

func NewGRPCServer(cfg *cfg.GRPCConfig, logger logger.Logger) *GRPCServer {
	s := &GRPCServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		cfg:    cfg,
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.server, s.health)

	return s
}

// Health возвращает сервер grpc.health.v1 для публикации состояния.
func (s *GRPCServer) Health() *health.Server {
	return s.health
}

func (s *GRPCServer) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	lis, err := net.Listen(s.cfg.NetworkMode, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.server.Serve(lis)
}

func (s *GRPCServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infof("gRPC server stopped gracefully")
		return nil
	case <-ctx.Done():
		s.server.Stop()
		s.logger.Warnf("gRPC server forced to stop after timeout")
		return ctx.Err()
	}
}

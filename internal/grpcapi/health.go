// Package grpcapi exposes the standard grpc.health.v1 service, answering
// SERVING while the ledger network responds.
package grpcapi

import (
	"context"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/aidecisionlog/server/internal/decisionlog/service"
)

// ServiceName is the name clients may ask about besides the empty
// whole-server name.
const ServiceName = "decisionlog"

type HealthServer struct {
	healthpb.UnimplementedHealthServer
	health *service.HealthService
}

func NewHealthServer(h *service.HealthService) *HealthServer {
	return &HealthServer{health: h}
}

func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.health.Check(ctx).LedgerConnected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: st}, nil
}

type Server struct {
	grpcServer *grpc.Server
	logger     *log.Logger
	addr       string
}

func NewServer(addr string, h *service.HealthService, logger *log.Logger) *Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, NewHealthServer(h))
	return &Server{grpcServer: gs, logger: logger, addr: addr}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Printf("grpc health listening on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

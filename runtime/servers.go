package runtime

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"pixel-chat/contract"

	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

var (
	_ contract.Worker = (*HTTPServer)(nil)
	_ contract.Worker = (*GRPCServer)(nil)
)

// HTTPServer serves handler on addr until the context is done.
type HTTPServer struct {
	addr    string
	handler http.Handler
	log     *slog.Logger
}

func NewHTTPServer(addr string, handler http.Handler, log *slog.Logger) *HTTPServer {
	return &HTTPServer{addr: addr, handler: handler, log: log}
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// GRPCServer serves a prepared grpc.Server on addr until the context is done.
type GRPCServer struct {
	addr   string
	server *grpc.Server
	log    *slog.Logger
}

func NewGRPCServer(addr string, server *grpc.Server, log *slog.Logger) *GRPCServer {
	return &GRPCServer{addr: addr, server: server, log: log}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gRPC server listening", "addr", s.addr)
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
		stopped := make(chan struct{})
		go func() {
			s.server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			s.server.Stop()
		}
		return nil
	}
}

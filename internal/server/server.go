package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"FinLedger/internal/core"
	"FinLedger/internal/observability"
	"FinLedger/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server hosts the gRPC endpoint (health + reflection) and the
// HTTP/JSON query surface on a gateway runtime mux.
type Server struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	grpcAddr   string
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// Deps holds everything the handlers need. Core is optional; without
// it only the query surface is served.
type Deps struct {
	Core         *core.Core
	QueryService *query.Service
	Health       *observability.HealthChecker
	Metrics      *observability.Metrics
	Log          zerolog.Logger
}

func New(grpcAddr, httpAddr string, deps Deps) (*Server, error) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	mux := runtime.NewServeMux()
	s := &Server{
		grpcServer: grpcServer,
		grpcAddr:   grpcAddr,
		health:     deps.Health,
		metrics:    deps.Metrics,
		log:        deps.Log,
	}

	if err := s.registerRoutes(mux, deps.QueryService); err != nil {
		return nil, err
	}
	if deps.Core != nil {
		if err := s.registerIngestRoutes(mux, deps.Core); err != nil {
			return nil, err
		}
	}

	root := http.NewServeMux()
	root.Handle("/v1/", mux)
	root.Handle("/metrics", promhttp.Handler())
	root.HandleFunc("/healthz", deps.Health.LivenessHandler)
	root.HandleFunc("/readyz", deps.Health.ReadinessHandler)

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes(mux *runtime.ServeMux, qs *query.Service) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/positions/{position_id}", s.instrument("get_position", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			id, err := uuid.Parse(params["position_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			return qs.GetPosition(r.Context(), id)
		})},
		{"GET", "/v1/owners/{owner_id}/positions", s.instrument("list_positions", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			owner, err := uuid.Parse(params["owner_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			return qs.ListPositionsByOwner(r.Context(), owner)
		})},
		{"GET", "/v1/positions/{position_id}/liquidations", s.instrument("list_liquidations", func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error) {
			id, err := uuid.Parse(params["position_id"])
			if err != nil {
				return nil, badRequest(err)
			}
			return qs.ListLiquidations(r.Context(), id)
		})},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

type handlerFn func(w http.ResponseWriter, r *http.Request, params map[string]string) (any, error)

type httpError struct {
	code int
	err  error
}

func (e httpError) Error() string { return e.err.Error() }

func badRequest(err error) error { return httpError{code: http.StatusBadRequest, err: err} }

// instrument wraps a handler with metrics and uniform JSON encoding.
func (s *Server) instrument(endpoint string, fn handlerFn) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()

		result, err := fn(w, r, params)

		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			code := http.StatusInternalServerError
			var he httpError
			switch {
			case errors.As(err, &he):
				code = he.code
			case errors.Is(err, query.ErrNotFound):
				code = http.StatusNotFound
			}
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(result)
	}
}

// Start serves gRPC and HTTP until either listener fails.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		s.log.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
		errCh <- s.grpcServer.Serve(lis)
	}()
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return <-errCh
}

// Shutdown stops both servers gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.grpcServer.GracefulStop()
	return s.httpServer.Shutdown(ctx)
}

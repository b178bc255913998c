package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/flightsim/api"
	"github.com/Domenick1991/flightsim/config"
	bookingsapi "github.com/Domenick1991/flightsim/internal/api/bookings_service_api"
	flightsapi "github.com/Domenick1991/flightsim/internal/api/flights_service_api"
	"github.com/Domenick1991/flightsim/internal/logger"
	"github.com/Domenick1991/flightsim/internal/service/booking"
	"github.com/Domenick1991/flightsim/internal/service/flights"
	"github.com/Domenick1991/flightsim/internal/service/passengers"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	swaggerDocPath  = "/swagger/doc.json"
	shutdownTimeout = 5 * time.Second
)

// Services are the use cases served over HTTP and gRPC.
type Services struct {
	Flights    flights.FlightUseCase
	Bookings   booking.BookingUseCase
	Passengers passengers.PassengerUseCase
	// Health lists dependencies reported by GET /health.
	Health map[string]api.Pinger
}

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	gatewayCC  *grpc.ClientConn
	health     *health.Server
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or
// a server fails.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger, svc Services) error {
	s, err := newServers(cfg, log, svc)
	if err != nil {
		return err
	}
	defer s.gatewayCC.Close()

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC server started", zap.String("address", cfg.GRPC.Address))
		errCh <- s.grpcServer.Serve(lis)
	}()
	go func() {
		log.Info("HTTP server started", zap.String("address", cfg.HTTP.Address))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.grpcServer.Stop()
		return err
	case <-ctx.Done():
		log.Info("shutting down servers")
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.grpcServer.GracefulStop()
		return nil
	}
}

func newServers(cfg *config.Config, log *zap.Logger, svc Services) (*Servers, error) {
	grpcSrv := NewGRPCServer(log, svc)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	conn, err := grpc.NewClient(dialTarget(cfg.GRPC.Address), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial gRPC for gateway: %w", err)
	}
	gateway, err := NewGateway(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           NewRouter(log, svc, gateway, cfg.HTTP.SwaggerFile),
			ReadHeaderTimeout: 10 * time.Second,
		},
		gatewayCC: conn,
		health:    healthSrv,
	}, nil
}

// NewGRPCServer registers the flight and booking services with call logging.
func NewGRPCServer(log *zap.Logger, svc Services) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logger.UnaryServerInterceptor(log)))
	flightsapi.RegisterFlightServiceServer(srv, flightsapi.NewServer(svc.Flights))
	bookingsapi.RegisterBookingServiceServer(srv, bookingsapi.NewServer(svc.Bookings))
	return srv
}

// NewRouter assembles the HTTP surface: the JSON API under /api, the gRPC
// gateway under /v1, health and the swagger UI.
func NewRouter(log *zap.Logger, svc Services, gateway http.Handler, swaggerFile string) *gin.Engine {
	router := gin.New()
	router.Use(logger.Recovery(log), logger.RequestLogger(log))

	api.NewHealthHandler(svc.Health).Register(router)

	group := router.Group("/api")
	api.NewFlightHandler(svc.Flights).Register(group)
	api.NewBookingHandler(svc.Bookings).Register(group)
	api.NewPassengerHandler(svc.Passengers).Register(group)

	if gateway != nil {
		router.Any("/v1/*path", gin.WrapH(gateway))
	}

	if swaggerFile != "" {
		router.StaticFile(swaggerDocPath, swaggerFile)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(swaggerDocPath))))
	}
	return router
}

// dialTarget turns a listen address like ":9090" into something dialable.
func dialTarget(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

package flights_service_api

import (
	"context"
	"time"

	"github.com/Domenick1991/flightsim/internal/api/rpc"
	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/service/flights"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "flightsim.v1.FlightService"

type FlightServiceServer interface {
	ListFlights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchFlights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetFlight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPrice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetFareHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FlightServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method(ServiceName, "ListFlights", FlightServiceServer.ListFlights),
		rpc.Method(ServiceName, "SearchFlights", FlightServiceServer.SearchFlights),
		rpc.Method(ServiceName, "GetFlight", FlightServiceServer.GetFlight),
		rpc.Method(ServiceName, "GetPrice", FlightServiceServer.GetPrice),
		rpc.Method(ServiceName, "GetFareHistory", FlightServiceServer.GetFareHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flightsim/v1/flights.proto",
}

func RegisterFlightServiceServer(s grpc.ServiceRegistrar, srv FlightServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements FlightServiceServer on top of the flight use case.
type Server struct {
	flights flights.FlightUseCase
}

var _ FlightServiceServer = (*Server)(nil)

func NewServer(flights flights.FlightUseCase) *Server {
	return &Server{flights: flights}
}

func (s *Server) ListFlights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.flights.List(ctx, int(rpc.Int(req, "skip")), int(rpc.Int(req, "limit")))
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(map[string]any{"flights": viewList(list)})
}

func (s *Server) SearchFlights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.flights.Search(ctx, flights.SearchQuery{
		Origin:      rpc.String(req, "origin"),
		Destination: rpc.String(req, "destination"),
		Date:        rpc.String(req, "date"),
		SortBy:      rpc.String(req, "sort_by"),
		Order:       rpc.String(req, "order"),
		Skip:        int(rpc.Int(req, "skip")),
		Limit:       int(rpc.Int(req, "limit")),
	})
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(map[string]any{"flights": viewList(list)})
}

func (s *Server) GetFlight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := s.flights.GetByID(ctx, rpc.Int(req, "id"))
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(map[string]any{"flight": flightFields(*f)})
}

func (s *Server) GetPrice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := s.flights.Price(ctx, rpc.Int(req, "id"))
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(map[string]any{
		"flight_id":           q.FlightID,
		"flight_number":       q.FlightNumber,
		"dynamic_price_cents": q.DynamicPriceCents,
		"base_fare_cents":     q.BaseFareCents,
		"available_seats":     q.AvailableSeats,
		"factors": map[string]any{
			"sold_ratio":        q.Factors.SoldRatio,
			"seat_factor":       q.Factors.SeatFactor,
			"days_to_departure": q.Factors.DaysToDeparture,
			"time_factor":       q.Factors.TimeFactor,
			"demand":            q.Factors.Demand,
			"tier":              q.Factors.Tier,
			"jitter":            q.Factors.Jitter,
		},
	})
}

func (s *Server) GetFareHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	samples, err := s.flights.FareHistory(ctx, rpc.Int(req, "id"), int(rpc.Int(req, "limit")))
	if err != nil {
		return nil, rpc.Status(err)
	}
	items := make([]any, len(samples))
	for i, smp := range samples {
		items[i] = map[string]any{
			"price_cents": smp.PriceCents,
			"recorded_at": smp.RecordedAt.Format(time.RFC3339),
		}
	}
	return rpc.Reply(map[string]any{"samples": items})
}

func viewList(views []flights.FlightView) []any {
	items := make([]any, len(views))
	for i, v := range views {
		fields := flightFields(v.Flight)
		fields["dynamic_price_cents"] = v.DynamicPriceCents
		items[i] = fields
	}
	return items
}

func flightFields(f domain.Flight) map[string]any {
	return map[string]any{
		"id":               f.ID,
		"flight_number":    f.FlightNumber,
		"airline":          f.Airline,
		"origin":           f.FromAirport,
		"destination":      f.ToAirport,
		"departure":        f.DepartureTime.Format(time.RFC3339),
		"arrival":          f.ArrivalTime.Format(time.RFC3339),
		"duration_minutes": int(f.Duration().Minutes()),
		"base_fare_cents":  f.BaseFareCents,
		"total_seats":      f.TotalSeats,
		"available_seats":  f.AvailableSeats,
	}
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListFlights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "ListFlights", in, opts...)
}

func (c *Client) SearchFlights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "SearchFlights", in, opts...)
}

func (c *Client) GetFlight(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "GetFlight", in, opts...)
}

func (c *Client) GetPrice(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "GetPrice", in, opts...)
}

func (c *Client) GetFareHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "GetFareHistory", in, opts...)
}

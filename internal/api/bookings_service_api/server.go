package bookings_service_api

import (
	"context"
	"time"

	"github.com/Domenick1991/flightsim/internal/api/rpc"
	"github.com/Domenick1991/flightsim/internal/domain"
	"github.com/Domenick1991/flightsim/internal/service/booking"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "flightsim.v1.BookingService"

// BookingServiceServer is the gRPC surface for bookings.
type BookingServiceServer interface {
	CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	PayBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Method(ServiceName, "CreateBooking", BookingServiceServer.CreateBooking),
		rpc.Method(ServiceName, "GetBooking", BookingServiceServer.GetBooking),
		rpc.Method(ServiceName, "ListBookings", BookingServiceServer.ListBookings),
		rpc.Method(ServiceName, "PayBooking", BookingServiceServer.PayBooking),
		rpc.Method(ServiceName, "CancelBooking", BookingServiceServer.CancelBooking),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flightsim/v1/bookings.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements BookingServiceServer on top of the booking use case.
type Server struct {
	bookings booking.BookingUseCase
}

var _ BookingServiceServer = (*Server)(nil)

func NewServer(bookings booking.BookingUseCase) *Server {
	return &Server{bookings: bookings}
}

func (s *Server) CreateBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input := booking.CreateBookingInput{
		PassengerID:      rpc.Int(req, "passenger_id"),
		FlightID:         rpc.Int(req, "flight_id"),
		ReturnFlightID:   rpc.OptionalInt(req, "return_flight_id"),
		SeatNumber:       int(rpc.Int(req, "seat_number")),
		ReturnSeatNumber: int(rpc.Int(req, "return_seat_number")),
	}
	for _, t := range rpc.Structs(req, "travelers") {
		input.Travelers = append(input.Travelers, booking.TravelerInput{
			FullName:         rpc.String(t, "full_name"),
			Age:              int(rpc.Int(t, "age")),
			Gender:           rpc.String(t, "gender"),
			SeatNumber:       int(rpc.Int(t, "seat_number")),
			ReturnSeatNumber: int(rpc.Int(t, "return_seat_number")),
		})
	}

	created, err := s.bookings.CreateBooking(ctx, input)
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(bookingFields(created))
}

func (s *Server) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	b, err := s.bookings.GetBooking(ctx, rpc.String(req, "reference"))
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(bookingFields(b))
}

func (s *Server) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.bookings.ListBookings(ctx, rpc.OptionalInt(req, "passenger_id"))
	if err != nil {
		return nil, rpc.Status(err)
	}
	items := make([]any, len(list))
	for i := range list {
		items[i] = bookingFields(&list[i])
	}
	return rpc.Reply(map[string]any{"bookings": items})
}

func (s *Server) PayBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.bookings.PayBooking(ctx, rpc.String(req, "reference"))
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(map[string]any{
		"booking": bookingFields(res.Booking),
		"success": res.Success,
		"message": res.Message,
	})
}

func (s *Server) CancelBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.bookings.CancelBooking(ctx, rpc.String(req, "reference"))
	if err != nil {
		return nil, rpc.Status(err)
	}
	return rpc.Reply(map[string]any{
		"booking":           bookingFields(res.Booking),
		"already_cancelled": res.AlreadyCancelled,
	})
}

func bookingFields(b *domain.Booking) map[string]any {
	travelers := make([]any, len(b.Travelers))
	for i, t := range b.Travelers {
		travelers[i] = map[string]any{
			"full_name":          t.FullName,
			"age":                t.Age,
			"gender":             t.Gender,
			"seat_number":        t.SeatNumber,
			"return_seat_number": t.ReturnSeatNumber,
		}
	}
	fields := map[string]any{
		"booking_id":         b.ID,
		"pnr":                b.Reference,
		"passenger_id":       b.PassengerID,
		"flight_id":          b.FlightID,
		"trip_type":          string(b.TripType),
		"seat_number":        b.SeatNumber,
		"return_seat_number": b.ReturnSeatNumber,
		"fare_paid_cents":    b.FarePaidCents,
		"status":             string(b.Status),
		"travelers":          travelers,
		"booking_date":       b.CreatedAt.Format(time.RFC3339),
	}
	if b.ReturnFlightID != nil {
		fields["return_flight_id"] = *b.ReturnFlightID
	}
	return fields
}

// Client calls BookingService over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "CreateBooking", in, opts...)
}

func (c *Client) GetBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "GetBooking", in, opts...)
}

func (c *Client) ListBookings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "ListBookings", in, opts...)
}

func (c *Client) PayBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "PayBooking", in, opts...)
}

func (c *Client) CancelBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return rpc.Invoke(ctx, c.cc, ServiceName, "CancelBooking", in, opts...)
}

package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	bookingsapi "github.com/Domenick1991/flightsim/internal/api/bookings_service_api"
	flightsapi "github.com/Domenick1991/flightsim/internal/api/flights_service_api"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type unaryCall func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

// route maps one gateway path onto a gRPC method. Path parameters and the
// listed query parameters become request fields; numeric names are parsed
// as integers.
type route struct {
	method  string
	pattern string
	call    unaryCall
	query   []string
	numeric []string
	body    bool
}

// NewGateway exposes the gRPC services as JSON under /v1 by calling them
// over conn.
func NewGateway(conn grpc.ClientConnInterface) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	fl := flightsapi.NewClient(conn)
	bk := bookingsapi.NewClient(conn)

	routes := []route{
		{method: http.MethodGet, pattern: "/v1/flights", call: fl.ListFlights,
			query: []string{"skip", "limit"}, numeric: []string{"skip", "limit"}},
		{method: http.MethodGet, pattern: "/v1/flights:search", call: fl.SearchFlights,
			query:   []string{"origin", "destination", "date", "sort_by", "order", "skip", "limit"},
			numeric: []string{"skip", "limit"}},
		{method: http.MethodGet, pattern: "/v1/flights/{id}", call: fl.GetFlight, numeric: []string{"id"}},
		{method: http.MethodGet, pattern: "/v1/flights/{id}/price", call: fl.GetPrice, numeric: []string{"id"}},
		{method: http.MethodGet, pattern: "/v1/flights/{id}/fare-history", call: fl.GetFareHistory,
			query: []string{"limit"}, numeric: []string{"id", "limit"}},
		{method: http.MethodPost, pattern: "/v1/bookings", call: bk.CreateBooking, body: true},
		{method: http.MethodGet, pattern: "/v1/bookings", call: bk.ListBookings,
			query: []string{"passenger_id"}, numeric: []string{"passenger_id"}},
		{method: http.MethodGet, pattern: "/v1/bookings/{reference}", call: bk.GetBooking},
		{method: http.MethodPost, pattern: "/v1/bookings/{reference}/pay", call: bk.PayBooking},
		{method: http.MethodPost, pattern: "/v1/bookings/{reference}/cancel", call: bk.CancelBooking},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler(mux)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func (rt route) handler(mux *runtime.ServeMux) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx := r.Context()
		inbound, outbound := runtime.MarshalerForRequest(mux, r)

		in, err := rt.request(r, params, inbound)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Error(codes.InvalidArgument, err.Error()))
			return
		}
		out, err := rt.call(ctx, in)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, out)
	}
}

func (rt route) request(r *http.Request, params map[string]string, inbound runtime.Marshaler) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if rt.body {
		if err := inbound.NewDecoder(r.Body).Decode(in); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		if in.Fields == nil {
			in.Fields = map[string]*structpb.Value{}
		}
	}

	raw := make(map[string]string, len(params)+len(rt.query))
	q := r.URL.Query()
	for _, name := range rt.query {
		if v := q.Get(name); v != "" {
			raw[name] = v
		}
	}
	for k, v := range params {
		raw[k] = v
	}

	numeric := make(map[string]bool, len(rt.numeric))
	for _, name := range rt.numeric {
		numeric[name] = true
	}
	for k, v := range raw {
		if !numeric[k] {
			in.Fields[k] = structpb.NewStringValue(v)
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer", k)
		}
		in.Fields[k] = structpb.NewNumberValue(float64(n))
	}
	return in, nil
}

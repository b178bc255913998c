// Package rpc holds the plumbing shared by the gRPC services. Messages are
// google.protobuf.Struct documents so the services need no generated stubs.
package rpc

import (
	"context"
	"errors"
	"math"

	"github.com/Domenick1991/flightsim/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// UnaryFunc is a service method bound to its server implementation S.
type UnaryFunc[S any] func(srv S, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// Method builds the grpc.MethodDesc for a Struct-in, Struct-out unary call.
func Method[S any](service, name string, fn UnaryFunc[S]) grpc.MethodDesc {
	fullMethod := FullMethod(service, name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func FullMethod(service, name string) string {
	return "/" + service + "/" + name
}

// Invoke performs a unary call against service/method on cc.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, service, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(service, method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Status converts a domain error into a gRPC status error.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrInvalidCredentials):
		code = codes.Unauthenticated
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrConflict):
		code = codes.AlreadyExists
	default:
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, err.Error())
}

// Int reads a whole number field. Missing or fractional values read as 0.
func Int(s *structpb.Struct, key string) int64 {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
		return 0
	}
	return int64(n)
}

// OptionalInt is Int for fields that may be absent or null.
func OptionalInt(s *structpb.Struct, key string) *int64 {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil
	}
	n := Int(s, key)
	return &n
}

func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Structs returns the object elements of a list field.
func Structs(s *structpb.Struct, key string) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if st := v.GetStructValue(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// Reply wraps structpb.NewStruct, reporting conversion failures as Internal.
func Reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

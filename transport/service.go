package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName    = "rhpman.v1.Datagram"
	deliverMethod  = "/" + serviceName + "/Deliver"
	fromEndpointMD = "x-rhpman-from"
)

// datagramServer receives frames pushed by neighbors.
type datagramServer interface {
	Deliver(ctx context.Context, frame *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

type deliverHandler struct {
	router *router
}

func (h *deliverHandler) Deliver(ctx context.Context, frame *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var from string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(fromEndpointMD); len(v) > 0 {
			from = v[0]
		}
	}
	h.router.handle(from, frame.GetValue())
	return &emptypb.Empty{}, nil
}

func deliverUnary(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(datagramServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(datagramServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var datagramServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*datagramServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverUnary},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rhpman/v1/datagram.proto",
}

package device

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "irrigation.DeviceService"

// DeviceServiceServer is the server side of irrigation.DeviceService.
// Requests and replies use the well-known Struct and StringValue messages.
type DeviceServiceServer interface {
	StartIrrigation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopIrrigation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetZone(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	WatchZone(*wrapperspb.StringValue, WatchZoneServer) error
}

// WatchZoneServer is the server stream of WatchZone.
type WatchZoneServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchZoneServer struct {
	grpc.ServerStream
}

func (s *watchZoneServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func unary(method string, newReq func() any, call func(DeviceServiceServer, context.Context, any) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(DeviceServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req)
			})
		},
	}
}

func newStruct() any { return new(structpb.Struct) }

func watchZoneHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DeviceServiceServer).WatchZone(in, &watchZoneServer{stream})
}

// ServiceDesc describes irrigation.DeviceService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartIrrigation", newStruct, func(s DeviceServiceServer, ctx context.Context, in any) (any, error) {
			return s.StartIrrigation(ctx, in.(*structpb.Struct))
		}),
		unary("StopIrrigation", newStruct, func(s DeviceServiceServer, ctx context.Context, in any) (any, error) {
			return s.StopIrrigation(ctx, in.(*structpb.Struct))
		}),
		unary("GetZone", func() any { return new(wrapperspb.StringValue) }, func(s DeviceServiceServer, ctx context.Context, in any) (any, error) {
			return s.GetZone(ctx, in.(*wrapperspb.StringValue))
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchZone",
			Handler:       watchZoneHandler,
			ServerStreams: true,
		},
	},
	Metadata: "irrigation/device.proto",
}

func RegisterDeviceServiceServer(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// CommandResult is the decoded reply of Start/StopIrrigation.
type CommandResult struct {
	Success   bool
	Message   string
	TicketID  string
	Delivered bool
}

// Client calls irrigation.DeviceService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StartIrrigation turns the zone pump on; durationMin > 0 schedules the
// automatic stop.
func (c *Client) StartIrrigation(ctx context.Context, zoneID string, durationMin float64, opts ...grpc.CallOption) (CommandResult, error) {
	fields := map[string]any{"area_id": zoneID}
	if durationMin > 0 {
		fields["duration_min"] = durationMin
	}
	return c.command(ctx, "StartIrrigation", fields, opts...)
}

func (c *Client) StopIrrigation(ctx context.Context, zoneID string, opts ...grpc.CallOption) (CommandResult, error) {
	return c.command(ctx, "StopIrrigation", map[string]any{"area_id": zoneID}, opts...)
}

func (c *Client) command(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (CommandResult, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return CommandResult{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return CommandResult{}, err
	}
	f := out.GetFields()
	return CommandResult{
		Success:   f["success"].GetBoolValue(),
		Message:   f["message"].GetStringValue(),
		TicketID:  f["ticket_id"].GetStringValue(),
		Delivered: f["delivered"].GetBoolValue(),
	}, nil
}

// GetZone returns the zone snapshot as decoded JSON.
func (c *Client) GetZone(ctx context.Context, zoneID string, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetZone", wrapperspb.String(zoneID), out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// WatchZone streams snapshots of zoneID to fn until the stream ends, ctx is
// cancelled or fn returns an error.
func (c *Client) WatchZone(ctx context.Context, zoneID string, fn func(map[string]any) error, opts ...grpc.CallOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/WatchZone", opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(wrapperspb.String(zoneID)); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(out.AsMap()); err != nil {
			return err
		}
	}
}

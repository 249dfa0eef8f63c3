// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pixelshell.Factory"

const (
	convertMethod = "/" + ServiceName + "/Convert"
	buildMethod   = "/" + ServiceName + "/Build"
	inspectMethod = "/" + ServiceName + "/Inspect"
)

// FactoryServer is the server API for the Factory service. Requests and
// responses are free-form structs; see the Factory methods for their fields.
type FactoryServer interface {
	Convert(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
	Build(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
	Inspect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func convertHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err //nolint:wrapcheck // Already a gRPC error.
	}

	return srv.(FactoryServer).Convert(req, //nolint:forcetypeassert // Registered type.
		&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

func buildHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err //nolint:wrapcheck // Already a gRPC error.
	}

	return srv.(FactoryServer).Build(req, //nolint:forcetypeassert // Registered type.
		&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

func inspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(FactoryServer).Inspect(ctx, req) //nolint:forcetypeassert // Registered type.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: inspectMethod,
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FactoryServer).Inspect(ctx, req.(*structpb.Struct)) //nolint:forcetypeassert // Decoded above.
	}

	return interceptor(ctx, req, info, handler)
}

// ServiceDesc describes the Factory service to grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{ //nolint:gochecknoglobals // Like generated code.
	ServiceName: ServiceName,
	HandlerType: (*FactoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Inspect", Handler: inspectHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Convert", Handler: convertHandler, ServerStreams: true},
		{StreamName: "Build", Handler: buildHandler, ServerStreams: true},
	},
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv FactoryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls a Factory service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) serverStream(ctx context.Context, desc *grpc.StreamDesc, method string,
	req *structpb.Struct, opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already a gRPC error.
	}

	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}

	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err //nolint:wrapcheck // Already a gRPC error.
	}

	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err //nolint:wrapcheck // Already a gRPC error.
	}

	return x, nil
}

// Convert starts a conversion and streams its status.
func (c *Client) Convert(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return c.serverStream(ctx, &ServiceDesc.Streams[0], convertMethod, req, opts...)
}

// Build starts a batch of builds and streams their status.
func (c *Client) Build(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return c.serverStream(ctx, &ServiceDesc.Streams[1], buildMethod, req, opts...)
}

// Inspect describes an archive or codec stream.
func (c *Client) Inspect(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, inspectMethod, req, out, opts...); err != nil {
		return nil, err //nolint:wrapcheck // Already a gRPC error.
	}

	return out, nil
}

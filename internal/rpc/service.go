// Package rpc describes the rentchat.v1.Documents gRPC service. Messages are
// google.protobuf.Struct values so the wire stays schemaless like the
// documents it carries.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "rentchat.v1.Documents"

// UserMetadataKey carries the caller's user id on every request.
const UserMetadataKey = "x-rentchat-user"

const (
	ListFullMethod         = "/rentchat.v1.Documents/List"
	GetFullMethod          = "/rentchat.v1.Documents/Get"
	CreateFullMethod       = "/rentchat.v1.Documents/Create"
	UpdateFullMethod       = "/rentchat.v1.Documents/Update"
	DeleteFullMethod       = "/rentchat.v1.Documents/Delete"
	SubscribeFullMethod    = "/rentchat.v1.Documents/Subscribe"
	FileURLFullMethod      = "/rentchat.v1.Documents/FileURL"
	RegisterFileFullMethod = "/rentchat.v1.Documents/RegisterFile"
	StatusFullMethod       = "/rentchat.v1.Documents/Status"
)

// DocumentsServer is the server API for the Documents service.
type DocumentsServer interface {
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
	FileURL(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDocumentsServer registers srv on s.
func RegisterDocumentsServer(s grpc.ServiceRegistrar, srv DocumentsServer) {
	s.RegisterService(&DocumentsServiceDesc, srv)
}

type unaryCall func(DocumentsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DocumentsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DocumentsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DocumentsServer).Subscribe(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// DocumentsServiceDesc is the grpc.ServiceDesc for the Documents service.
var DocumentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: unary(ListFullMethod, DocumentsServer.List)},
		{MethodName: "Get", Handler: unary(GetFullMethod, DocumentsServer.Get)},
		{MethodName: "Create", Handler: unary(CreateFullMethod, DocumentsServer.Create)},
		{MethodName: "Update", Handler: unary(UpdateFullMethod, DocumentsServer.Update)},
		{MethodName: "Delete", Handler: unary(DeleteFullMethod, DocumentsServer.Delete)},
		{MethodName: "FileURL", Handler: unary(FileURLFullMethod, DocumentsServer.FileURL)},
		{MethodName: "RegisterFile", Handler: unary(RegisterFileFullMethod, DocumentsServer.RegisterFile)},
		{MethodName: "Status", Handler: unary(StatusFullMethod, DocumentsServer.Status)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rentchat/v1/documents.proto",
}

// DocumentsClient is the client API for the Documents service.
type DocumentsClient struct {
	cc grpc.ClientConnInterface
}

// NewDocumentsClient wraps a connection.
func NewDocumentsClient(cc grpc.ClientConnInterface) *DocumentsClient {
	return &DocumentsClient{cc: cc}
}

func (c *DocumentsClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentsClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ListFullMethod, in, opts...)
}

func (c *DocumentsClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetFullMethod, in, opts...)
}

func (c *DocumentsClient) Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, CreateFullMethod, in, opts...)
}

func (c *DocumentsClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, UpdateFullMethod, in, opts...)
}

func (c *DocumentsClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, DeleteFullMethod, in, opts...)
}

func (c *DocumentsClient) FileURL(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FileURLFullMethod, in, opts...)
}

func (c *DocumentsClient) RegisterFile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RegisterFileFullMethod, in, opts...)
}

func (c *DocumentsClient) Status(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, StatusFullMethod, in, opts...)
}

// Subscribe opens the server stream of realtime events.
func (c *DocumentsClient) Subscribe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &DocumentsServiceDesc.Streams[0], SubscribeFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

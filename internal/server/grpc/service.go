package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the messaging service.
const ServiceName = "gophtalk.messaging.v1.MessagingService"

// Method names. Requests and responses are google.protobuf.Struct values.
const (
	MethodPing                   = "Ping"
	MethodGetOrCreateGeneralRoom = "GetOrCreateGeneralRoom"
	MethodCreatePrivateRoom      = "CreatePrivateRoom"
	MethodCreateGroupRoom        = "CreateGroupRoom"
	MethodListRooms              = "ListRooms"
	MethodPostMessage            = "PostMessage"
	MethodListMessages           = "ListMessages"
	MethodMarkRoomRead           = "MarkRoomRead"
	MethodUploadAttachment       = "UploadAttachment"
	MethodDownloadAttachment     = "DownloadAttachment"
)

// FullMethod returns the wire path of method, e.g. for ClientConn.Invoke.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MessagingServer is the server side of the messaging service.
type MessagingServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrCreateGeneralRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreatePrivateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateGroupRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRooms(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PostMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkRoomRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UploadAttachment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DownloadAttachment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(MessagingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessagingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessagingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodPing, MessagingServer.Ping),
		unaryHandler(MethodGetOrCreateGeneralRoom, MessagingServer.GetOrCreateGeneralRoom),
		unaryHandler(MethodCreatePrivateRoom, MessagingServer.CreatePrivateRoom),
		unaryHandler(MethodCreateGroupRoom, MessagingServer.CreateGroupRoom),
		unaryHandler(MethodListRooms, MessagingServer.ListRooms),
		unaryHandler(MethodPostMessage, MessagingServer.PostMessage),
		unaryHandler(MethodListMessages, MessagingServer.ListMessages),
		unaryHandler(MethodMarkRoomRead, MessagingServer.MarkRoomRead),
		unaryHandler(MethodUploadAttachment, MessagingServer.UploadAttachment),
		unaryHandler(MethodDownloadAttachment, MessagingServer.DownloadAttachment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophtalk/messaging/v1/messaging.proto",
}

package grpc

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps service errors to gRPC status codes. Unclassified errors are
// logged and reported without detail.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, common.ErrorAccessDenied):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) reply(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	return out, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	return s.reply(ctx, MethodPing, map[string]any{"status": "OK"})

}

func (s *GRPCServer) GetOrCreateGeneralRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetOrCreateGeneralRoom(ctx, actor)
	if err != nil {
		return nil, s.toStatus(ctx, MethodGetOrCreateGeneralRoom, err)
	}

	return s.reply(ctx, MethodGetOrCreateGeneralRoom, map[string]any{"room": roomToMap(room)})
}

func (s *GRPCServer) CreatePrivateRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.CreatePrivateRoom(ctx, actor, stringField(req, "user_id"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodCreatePrivateRoom, err)
	}

	return s.reply(ctx, MethodCreatePrivateRoom, map[string]any{"room": roomToMap(room)})
}

func (s *GRPCServer) CreateGroupRoom(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.CreateGroupRoom(ctx, actor, stringField(req, "name"), stringListField(req, "participant_ids"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodCreateGroupRoom, err)
	}

	return s.reply(ctx, MethodCreateGroupRoom, map[string]any{"room": roomToMap(room)})
}

func (s *GRPCServer) ListRooms(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	summaries, err := s.rooms.ListRooms(ctx, actor)
	if err != nil {
		return nil, s.toStatus(ctx, MethodListRooms, err)
	}

	rooms := make([]any, 0, len(summaries))
	for _, rs := range summaries {
		m := roomToMap(&rs.Room)
		m["unread_count"] = rs.UnreadCount
		m["last_read_at"] = formatTime(rs.LastReadAt)
		m["last_read_message_id"] = formatID(rs.LastReadMessageID)
		rooms = append(rooms, m)
	}

	return s.reply(ctx, MethodListRooms, map[string]any{"rooms": rooms})
}

func (s *GRPCServer) PostMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	replyTo, err := idField(req, "reply_to")
	if err != nil {
		return nil, s.toStatus(ctx, MethodPostMessage, err)
	}

	msg, err := s.messages.Post(ctx, actor, stringField(req, "room_id"), stringField(req, "text"),
		stringListField(req, "mentions"), replyTo)
	if err != nil {
		return nil, s.toStatus(ctx, MethodPostMessage, err)
	}

	return s.reply(ctx, MethodPostMessage, map[string]any{"message": messageToMap(msg)})
}

func (s *GRPCServer) ListMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	limit, err := intField(req, "limit")
	if err != nil {
		return nil, s.toStatus(ctx, MethodListMessages, err)
	}
	before, err := idField(req, "before")
	if err != nil {
		return nil, s.toStatus(ctx, MethodListMessages, err)
	}
	var cursor int64
	if before != nil {
		cursor = *before
	}

	views, err := s.messages.List(ctx, actor, stringField(req, "room_id"), limit, cursor)
	if err != nil {
		return nil, s.toStatus(ctx, MethodListMessages, err)
	}

	out := make([]any, 0, len(views))
	for _, v := range views {
		out = append(out, messageToMap(v))
	}

	return s.reply(ctx, MethodListMessages, map[string]any{"messages": out})
}

func (s *GRPCServer) MarkRoomRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.messages.MarkRoomRead(ctx, actor, stringField(req, "room_id"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodMarkRoomRead, err)
	}

	return s.reply(ctx, MethodMarkRoomRead, map[string]any{
		"room_id":              p.RoomID,
		"unread_count":         p.UnreadCount,
		"last_read_at":         formatTime(p.LastReadAt),
		"last_read_message_id": formatID(p.LastReadMessageID),
	})
}

func (s *GRPCServer) UploadAttachment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	messageID, err := idField(req, "message_id")
	if err != nil {
		return nil, s.toStatus(ctx, MethodUploadAttachment, err)
	}
	data, err := bytesField(req, "data")
	if err != nil {
		return nil, s.toStatus(ctx, MethodUploadAttachment, err)
	}

	meta, err := s.attachments.Upload(ctx, actor, stringField(req, "room_id"), messageID,
		stringField(req, "file_name"), stringField(req, "mime_type"), data)
	if err != nil {
		return nil, s.toStatus(ctx, MethodUploadAttachment, err)
	}

	return s.reply(ctx, MethodUploadAttachment, map[string]any{"attachment": attachmentToMap(meta)})
}

func (s *GRPCServer) DownloadAttachment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	content, err := s.attachments.Download(ctx, actor, stringField(req, "attachment_id"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodDownloadAttachment, err)
	}

	return s.reply(ctx, MethodDownloadAttachment, map[string]any{
		"file_name": content.FileName,
		"mime_type": content.MimeType,
		"data":      base64.StdEncoding.EncodeToString(content.Data),
	})
}

var _ MessagingServer = (*GRPCServer)(nil)

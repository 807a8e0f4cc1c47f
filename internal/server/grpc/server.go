package grpc

import (
	"context"
	"encoding/base64"
	"net"

	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"google.golang.org/grpc"
)

// RoomService is the room directory as seen by the transport.
type RoomService interface {
	GetOrCreateGeneralRoom(ctx context.Context, actor models.Actor) (*models.Room, error)
	CreatePrivateRoom(ctx context.Context, actor models.Actor, otherUserID string) (*models.Room, error)
	CreateGroupRoom(ctx context.Context, actor models.Actor, name string, participantIDs []string) (*models.Room, error)
	ListRooms(ctx context.Context, actor models.Actor) ([]*models.RoomSummary, error)
}

// MessageService is the message ledger as seen by the transport.
type MessageService interface {
	Post(ctx context.Context, actor models.Actor, roomID, text string, mentions []string, replyTo *int64) (*models.MessageView, error)
	List(ctx context.Context, actor models.Actor, roomID string, limit int, before int64) ([]*models.MessageView, error)
	MarkRoomRead(ctx context.Context, actor models.Actor, roomID string) (*models.Participant, error)
}

// AttachmentService is the attachment store as seen by the transport.
type AttachmentService interface {
	Upload(ctx context.Context, actor models.Actor, roomID string, messageID *int64, fileName, mimeType string, data []byte) (*models.AttachmentMeta, error)
	Download(ctx context.Context, actor models.Actor, attachmentID string) (*models.AttachmentContent, error)
}

const (
	// defaultMessageLimit matches the gRPC default receive limit.
	defaultMessageLimit = 4 << 20
	// requestHeadroom covers struct framing and the non-data fields of an upload.
	requestHeadroom = 64 << 10
)

// MessageLimit returns the message size limit needed to carry an attachment of
// maxAttachmentSize bytes as base64 text. Requests up to twice that size are
// accepted so oversize uploads reach validation instead of being cut off by
// the transport.
func MessageLimit(maxAttachmentSize int64) int {
	n := base64.StdEncoding.EncodedLen(int(2*maxAttachmentSize)) + requestHeadroom
	return max(n, defaultMessageLimit)
}

type GRPCServer struct {
	address     string
	rooms       RoomService
	messages    MessageService
	attachments AttachmentService
	logger      logging.Logger
	jwtSecret   []byte
	msgLimit    int
}

func NewGRPCServer(a string, l logging.Logger, rs RoomService, ms MessageService, as AttachmentService, secretKey string, maxAttachmentSize int64) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		rooms:       rs,
		messages:    ms,
		attachments: as,
		jwtSecret:   []byte(secretKey),
		msgLimit:    MessageLimit(maxAttachmentSize),
	}
}

// newServer builds a gRPC server with the messaging service registered.
func (s *GRPCServer) newServer(opts ...grpc.ServerOption) *grpc.Server {
	limit := s.msgLimit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(limit),
		grpc.MaxSendMsgSize(limit),
	}, opts...)
	opts = append(opts, grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

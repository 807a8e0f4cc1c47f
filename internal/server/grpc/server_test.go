package grpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/auth"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", nopLogger{}, &fakeRooms{}, &fakeMessages{}, &fakeAttachments{}, "secret", 10<<20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", nopLogger{}, &fakeRooms{}, &fakeMessages{}, &fakeAttachments{}, "secret", 10<<20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

// dialBufconn serves s over an in-memory listener and returns a client.
func dialBufconn(t *testing.T, s *GRPCServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := s.newServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEndToEnd_PingAndPost(t *testing.T) {
	msgs := &fakeMessages{postOut: &models.MessageView{ID: 7, RoomID: "r1", SenderID: "u1", Text: "hi"}}
	s := NewGRPCServer("", nopLogger{}, &fakeRooms{}, msgs, &fakeAttachments{}, "secret", 10<<20)
	conn := dialBufconn(t, s)

	ctx := context.Background()

	pong := &structpb.Struct{}
	if err := conn.Invoke(ctx, FullMethod(MethodPing), &structpb.Struct{}, pong); err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	if got := pong.GetFields()["status"].GetStringValue(); got != "OK" {
		t.Fatalf("unexpected ping status: %q", got)
	}

	req, _ := structpb.NewStruct(map[string]any{"room_id": "r1", "text": "hi"})

	err := conn.Invoke(ctx, FullMethod(MethodPostMessage), req, &structpb.Struct{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without token, got %v", err)
	}

	tok, err := auth.GenerateToken(models.Actor{UserID: "u1", OrgID: "o1"}, []byte("secret"), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	authed := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, tok)

	out := &structpb.Struct{}
	if err := conn.Invoke(authed, FullMethod(MethodPostMessage), req, out); err != nil {
		t.Fatalf("PostMessage error: %v", err)
	}
	msg := out.GetFields()["message"].GetStructValue().GetFields()
	if msg["id"].GetStringValue() != "7" || msg["text"].GetStringValue() != "hi" {
		t.Fatalf("unexpected message: %v", out)
	}
	if msgs.gotActor != (models.Actor{UserID: "u1", OrgID: "o1"}) {
		t.Fatalf("actor not propagated: %+v", msgs.gotActor)
	}
}

func uploadOverBufconn(t *testing.T, atts *fakeAttachments, size int) (*structpb.Struct, error) {
	t.Helper()

	s := NewGRPCServer("", nopLogger{}, &fakeRooms{}, &fakeMessages{}, atts, "secret", 10<<20)
	conn := dialBufconn(t, s)

	tok, err := auth.GenerateToken(models.Actor{UserID: "u1", OrgID: "o1"}, []byte("secret"), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)

	req, err := structpb.NewStruct(map[string]any{
		"room_id":   "r1",
		"file_name": "report.pdf",
		"mime_type": "application/pdf",
		"data":      base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x25}, size)),
	})
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}

	out := &structpb.Struct{}
	err = conn.Invoke(ctx, FullMethod(MethodUploadAttachment), req, out)
	return out, err
}

func TestUploadAttachment_LargeFileOverTransport(t *testing.T) {
	atts := &fakeAttachments{
		meta:    &models.AttachmentMeta{ID: "a1", RoomID: "r1", OriginalFileName: "report.pdf", MimeType: "application/pdf", ByteSize: 3 << 20},
		maxSize: 10 << 20,
	}

	out, err := uploadOverBufconn(t, atts, 3<<20)
	if err != nil {
		t.Fatalf("UploadAttachment error: %v", err)
	}
	if len(atts.gotData) != 3<<20 {
		t.Fatalf("service received %d bytes, want %d", len(atts.gotData), 3<<20)
	}
	if got := out.GetFields()["attachment"].GetStructValue().GetFields()["id"].GetStringValue(); got != "a1" {
		t.Fatalf("unexpected attachment id: %q", got)
	}
}

func TestUploadAttachment_OversizeIsInvalidArgument(t *testing.T) {
	atts := &fakeAttachments{maxSize: 10 << 20}

	_, err := uploadOverBufconn(t, atts, 11<<20)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if len(atts.gotData) != 11<<20 {
		t.Fatalf("oversize upload did not reach the service: got %d bytes", len(atts.gotData))
	}
}

func TestMessageLimit(t *testing.T) {
	cases := []struct {
		name string
		max  int64
		want int
	}{
		{"small attachments keep default", 1 << 10, defaultMessageLimit},
		{"ten megabytes", 10 << 20, base64.StdEncoding.EncodedLen(20<<20) + requestHeadroom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MessageLimit(tc.max); got != tc.want {
				t.Fatalf("MessageLimit(%d) = %d, want %d", tc.max, got, tc.want)
			}
		})
	}

	if MessageLimit(10<<20) < base64.StdEncoding.EncodedLen(10<<20) {
		t.Fatal("limit must fit a base64 attachment of the configured size")
	}
}

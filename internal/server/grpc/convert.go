package grpc

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"google.golang.org/protobuf/types/known/structpb"
)

func stringField(req *structpb.Struct, key string) string {
	if v, ok := req.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func stringListField(req *structpb.Struct, key string) []string {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil
	}
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func intField(req *structpb.Struct, key string) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, fmt.Errorf("%w: %s must be a number", common.ErrorValidation, key)
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", common.ErrorValidation, key)
	}
	return int(n), nil
}

// idField reads a message id. Ids travel as decimal strings; an absent or
// empty field yields nil.
func idField(req *structpb.Struct, key string) (*int64, error) {
	s := strings.TrimSpace(stringField(req, key))
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: %s must be a positive decimal id", common.ErrorValidation, key)
	}
	return &id, nil
}

func bytesField(req *structpb.Struct, key string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(stringField(req, key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be base64", common.ErrorValidation, key)
	}
	return data, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func stringsToList(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func roomToMap(r *models.Room) map[string]any {
	return map[string]any{
		"id":         r.ID,
		"org_id":     r.OrgID,
		"type":       string(r.Type),
		"name":       r.Name,
		"created_by": r.CreatedBy,
		"created_at": formatTime(r.CreatedAt),
		"updated_at": formatTime(r.UpdatedAt),
	}
}

func messageToMap(m *models.MessageView) map[string]any {
	out := map[string]any{
		"id":            formatID(m.ID),
		"room_id":       m.RoomID,
		"sender_id":     m.SenderID,
		"text":          m.Text,
		"undecryptable": m.Undecryptable,
		"mentions":      stringsToList(m.MentionedUserIDs),
		"created_at":    formatTime(m.CreatedAt),
	}
	if m.ReplyToMessageID != nil {
		out["reply_to"] = formatID(*m.ReplyToMessageID)
	}
	return out
}

func attachmentToMap(a *models.AttachmentMeta) map[string]any {
	out := map[string]any{
		"id":          a.ID,
		"room_id":     a.RoomID,
		"uploaded_by": a.UploadedBy,
		"file_name":   a.OriginalFileName,
		"mime_type":   a.MimeType,
		"byte_size":   a.ByteSize,
		"uploaded_at": formatTime(a.UploadedAt),
	}
	if a.MessageID != nil {
		out["message_id"] = formatID(*a.MessageID)
	}
	return out
}

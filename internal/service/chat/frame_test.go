package chat

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatstream/internal/models"
)

func TestEncodeFrameKeepsTrailingDelimiter(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame, err := EncodeFrame(models.MessageView{ID: 7, Role: models.RoleBot, Content: "Hi", CreatedAt: created})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `[{"id":7,"role":"bot","content":"Hi","created_at":"2024-05-01T12:00:00Z"}]` + Delimiter
	if string(frame) != want {
		t.Fatalf("unexpected frame:\nwant %s\ngot  %s", want, frame)
	}
}

func TestFrameWriterFlushesEachFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	fw := NewFrameWriter(rec)
	views := []models.MessageView{
		{ID: 1, Role: models.RoleUser, Content: "Hello from test!"},
		{ID: 2, Role: models.RoleBot, Content: "Hello"},
		{ID: 2, Role: models.RoleBot, Content: "Hello from"},
	}
	for _, v := range views {
		if err := fw.WriteFrame(v); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if !rec.Flushed {
		t.Fatalf("expected writer to flush")
	}
	if fw.Frames() != 3 {
		t.Fatalf("frame count: %d", fw.Frames())
	}
	body := rec.Body.String()
	if !strings.HasSuffix(body, Delimiter) || strings.Count(body, Delimiter) != 3 {
		t.Fatalf("every frame must end with the delimiter: %q", body)
	}

	got, err := DecodeFrames(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 || got[2].Content != "Hello from" || got[0].Role != models.RoleUser {
		t.Fatalf("unexpected decoded frames: %+v", got)
	}
}

func TestDecodeFramesRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	if err := fw.WriteFrame(models.MessageView{ID: 1, Role: models.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf.WriteString(`[{"id":2,"role":"bot"`)

	views, err := DecodeFrames(buf.Bytes())
	if err == nil {
		t.Fatalf("expected incomplete frame error")
	}
	if len(views) != 1 {
		t.Fatalf("complete frames should still decode, got %d", len(views))
	}
}

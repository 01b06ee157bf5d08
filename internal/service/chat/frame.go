package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chatstream/internal/models"
)

// Delimiter terminates every frame on the wire, including the last one.
const Delimiter = "<==Split==>"

// EncodeFrame renders v as a one-element JSON array followed by Delimiter.
func EncodeFrame(v models.MessageView) ([]byte, error) {
	data, err := json.Marshal([]models.MessageView{v})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(data, Delimiter...), nil
}

// FrameWriter writes frames to a response and flushes after each one.
type FrameWriter struct {
	w       io.Writer
	flusher http.Flusher
	frames  int
}

// NewFrameWriter wraps w. Flushing is skipped when w cannot flush.
func NewFrameWriter(w io.Writer) *FrameWriter {
	fw := &FrameWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

func (fw *FrameWriter) WriteFrame(v models.MessageView) error {
	frame, err := EncodeFrame(v)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(frame); err != nil {
		return err
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	fw.frames++
	return nil
}

// Frames reports how many frames were written.
func (fw *FrameWriter) Frames() int {
	return fw.frames
}

// DecodeFrames splits a streamed body back into the views it carried, in order.
// Text after the last delimiter is an incomplete frame and is returned as an error.
func DecodeFrames(body []byte) ([]models.MessageView, error) {
	var views []models.MessageView
	parts := bytes.Split(body, []byte(Delimiter))
	for i, part := range parts {
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		if i == len(parts)-1 {
			return views, fmt.Errorf("incomplete frame at offset %d", len(body)-len(part))
		}
		var batch []models.MessageView
		if err := json.Unmarshal(part, &batch); err != nil {
			return views, fmt.Errorf("decode frame %d: %w", i, err)
		}
		views = append(views, batch...)
	}
	return views, nil
}

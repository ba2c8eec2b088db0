package conversations

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/totalrecall/pkg/models"
)

// Codec serializes conversations for storage. With Compress set, records are
// written as base64-encoded gzip of the JSON form.
//
// Decode does not consult Compress: a plain JSON record always starts with '{'
// while a base64 payload never does, so records written under either setting
// stay readable after the flag is flipped.
type Codec struct {
	Compress bool
}

func (c Codec) Encode(conv *models.Conversation) ([]byte, error) {
	raw, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if !c.Compress {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress conversation: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress conversation: %w", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

func (c Codec) Decode(data []byte) (*models.Conversation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty conversation record")
	}

	raw := data
	if data[0] != '{' {
		compressed := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
		n, err := base64.StdEncoding.Decode(compressed, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode compressed conversation: %w", err)
		}
		zr, err := gzip.NewReader(bytes.NewReader(compressed[:n]))
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed conversation: %w", err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress conversation: %w", err)
		}
	}

	var conv models.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if conv.Tags == nil {
		conv.Tags = []string{}
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return &conv, nil
}

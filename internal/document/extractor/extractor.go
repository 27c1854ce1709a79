// Package extractor adapts external OCR/LLM services that turn a document
// image into raw key/value fields.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"certverify/internal/normalize"
)

type Request struct {
	DocumentType normalize.DocumentType
	ContentType  string
	Data         []byte
}

// Result holds raw, un-normalized fields and the extractor's confidence.
type Result struct {
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
}

type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// decodeResult accepts the JSON payload both adapters produce. Field values
// may be strings, numbers or null; everything is rendered as a string.
func decodeResult(raw []byte) (*Result, error) {
	var payload struct {
		Fields     map[string]any `json:"fields"`
		Confidence float64        `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode extraction result: %w", err)
	}
	if len(payload.Fields) == 0 {
		return nil, fmt.Errorf("extraction returned no fields")
	}
	res := &Result{Fields: make(map[string]string, len(payload.Fields)), Confidence: clamp(payload.Confidence)}
	for k, v := range payload.Fields {
		switch val := v.(type) {
		case nil:
		case string:
			res.Fields[k] = val
		default:
			res.Fields[k] = strings.TrimSpace(fmt.Sprint(val))
		}
	}
	return res, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package extractor

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"certverify/internal/normalize"
)

const vertexSystemPrompt = `You read Indian identity documents.
Return only JSON of the form {"fields": {...}, "confidence": <0..1>}.
Use snake_case keys. Dates as printed on the card. Omit fields you cannot read.`

var vertexFieldHints = map[normalize.DocumentType]string{
	normalize.DocumentTypeAadhaar: "Extract name, date_of_birth, gender, aadhaar_number and address from this Aadhaar card.",
	normalize.DocumentTypePAN:     "Extract name, father_name, date_of_birth and pan_number from this PAN card.",
}

// VertexExtractor asks a Gemini model on Vertex AI to read the document.
type VertexExtractor struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewVertexExtractor(ctx context.Context, project, location, modelName string) (*VertexExtractor, error) {
	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(vertexSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	return &VertexExtractor{client: client, model: model}, nil
}

func (e *VertexExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	hint, ok := vertexFieldHints[req.DocumentType]
	if !ok {
		return nil, fmt.Errorf("no extraction prompt for document type %q", req.DocumentType)
	}
	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: req.ContentType, Data: req.Data},
		genai.Text(hint),
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("model returned an empty response")
	}
	return decodeResult([]byte(stripCodeFence(text)))
}

func (e *VertexExtractor) Close() error {
	return e.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// stripCodeFence removes a ```json fence some model versions add despite
// the JSON response type.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

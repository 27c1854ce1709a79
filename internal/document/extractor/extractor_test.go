package extractor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/normalize"
)

func TestHTTPExtractor_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		assert.Equal(t, "pan", r.URL.Query().Get("documentType"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "img", string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fields":{"name":"RAHUL SHARMA","pan":"abcde1234f","age":34,"blank":null},"confidence":0.91}`))
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(srv.URL, time.Second)
	res, err := ex.Extract(context.Background(), Request{
		DocumentType: normalize.DocumentTypePAN,
		ContentType:  "image/png",
		Data:         []byte("img"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.91, res.Confidence)
	assert.Equal(t, "RAHUL SHARMA", res.Fields["name"])
	assert.Equal(t, "34", res.Fields["age"])
	assert.NotContains(t, res.Fields, "blank")
}

func TestHTTPExtractor_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		},
		"bad json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"fields":`))
		},
		"no fields": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"fields":{},"confidence":0.5}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewHTTPExtractor(srv.URL, time.Second).Extract(context.Background(), Request{DocumentType: normalize.DocumentTypeAadhaar})
			assert.Error(t, err)
		})
	}
}

func TestHTTPExtractor_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPExtractor(srv.URL, time.Minute).Extract(ctx, Request{DocumentType: normalize.DocumentTypePAN})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDecodeResult_ClampsConfidence(t *testing.T) {
	res, err := decodeResult([]byte(`{"fields":{"name":"A"},"confidence":1.7}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("```json\n{\"fields\":{\"name\":\"Asha\"},"),
				genai.Text("\"confidence\":0.8}\n```"),
			}},
		}},
	}
	res, err := decodeResult([]byte(stripCodeFence(responseText(resp))))
	require.NoError(t, err)
	assert.Equal(t, "Asha", res.Fields["name"])
	assert.Equal(t, 0.8, res.Confidence)

	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
}

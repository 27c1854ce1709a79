package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	docmodels "certverify/internal/document/models"
	"certverify/internal/matching"
	reviewmodels "certverify/internal/review/models"
	vmodels "certverify/internal/verification/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/middleware/auth"
)

// apiError is the error envelope the server writes on failure.
type apiError struct {
	Status      int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *apiError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// apiClient talks to a certverify server. Verifier endpoints authenticate
// with a bearer token when one is set, else with the verifier header.
type apiClient struct {
	baseURL  string
	http     *http.Client
	token    string
	verifier string
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type uploadResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *apiClient) Upload(ctx context.Context, docType, path string, file io.Reader) (*uploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	var out uploadResult
	err = c.do(ctx, http.MethodPost, "/document-processing/"+docType+"/upload", mw.FormDataContentType(), &body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Document(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error) {
	var out docmodels.Document
	if err := c.getJSON(ctx, "/document-processing/"+docID.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) MatchPANAadhaar(ctx context.Context, panID, aadhaarID string) (*matching.Result, error) {
	var out matching.Result
	err := c.postJSON(ctx, "/document-processing/match/pan-aadhaar", map[string]string{
		"panId":     panID,
		"aadhaarId": aadhaarID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Verification(ctx context.Context, vid string) (*vmodels.Verification, error) {
	var out vmodels.Verification
	if err := c.getJSON(ctx, "/verifications/"+url.PathEscape(vid), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Queue(ctx context.Context, query url.Values) ([]*reviewmodels.Review, error) {
	path := "/verifier/queue"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out struct {
		Reviews []*reviewmodels.Review `json:"reviews"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload), out)
}

func (c *apiClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.verifier != "":
		req.Header.Set(auth.VerifierHeader, c.verifier)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

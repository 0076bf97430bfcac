// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPService is the default Service implementation, talking to a
// local embedding model server over HTTP (one request per text, in
// the shape of Ollama's /api/embeddings endpoint).
type HTTPService struct {
	baseURL  string
	identity Identity
	client   *http.Client
}

// NewHTTPService constructs an HTTPService bound to a model name and
// declared vector dimensionality.
func NewHTTPService(baseURL, model string, dimensions int) *HTTPService {
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		identity: Identity{
			Name:       model,
			Version:    "latest",
			Dimensions: dimensions,
		},
		client: &http.Client{},
	}
}

func (s *HTTPService) Identity() Identity { return s.identity }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed requests one vector per text, in order. A single failing text
// fails the whole batch call; Client retries transient failures, and
// Swatching excludes empty/whitespace-only cuts before calling Embed.
func (s *HTTPService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("embedding: text %d: %w", i, ErrEmptyInput)
		}

		vec, err := s.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding: text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (s *HTTPService) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: s.identity.Name, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrModelLoadFailed
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrGenerationFailed, err)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ Service = (*HTTPService)(nil)

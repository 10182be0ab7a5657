// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm provides the chat client used by every layer agent. All calls
// go through a process-wide concurrency gate and are retried on transient
// provider failures.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/httpclient"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the normalized provider response.
type ChatResult struct {
	Content      string
	FinishReason string
	Usage        Usage
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type chatOptions struct {
	model       string
	temperature float64
	maxTokens   *int
	jsonMode    bool
}

type ChatOption func(*chatOptions)

func WithModel(model string) ChatOption {
	return func(o *chatOptions) { o.model = model }
}

func WithTemperature(t float64) ChatOption {
	return func(o *chatOptions) { o.temperature = t }
}

func WithMaxTokens(n int) ChatOption {
	return func(o *chatOptions) { o.maxTokens = &n }
}

// WithJSONMode requests structured JSON output from the provider.
func WithJSONMode() ChatOption {
	return func(o *chatOptions) { o.jsonMode = true }
}

// Client is the OpenAI-compatible chat client. A single instance is shared
// by all agents; its semaphore bounds in-flight provider calls process-wide.
type Client struct {
	cfg        config.LLMConfig
	httpClient *httpclient.Client
	sem        *semaphore.Weighted
}

func New(cfg config.LLMConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay*float64(time.Second))),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &Client{
		cfg:        cfg,
		httpClient: hc,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Chat performs one chat completion. The concurrency permit is held for the
// whole duration of the call, retries included.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (*ChatResult, error) {
	options := chatOptions{
		model:       c.cfg.Model,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire llm permit: %w", err)
	}
	defer c.sem.Release(1)

	slog.Debug("chat request", "model", options.model, "est_prompt_tokens", CountMessageTokens(messages))

	request := chatRequest{
		Model:       options.model,
		Messages:    messages,
		Temperature: options.temperature,
		MaxTokens:   options.maxTokens,
	}
	if options.jsonMode {
		request.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return &ChatResult{
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
		Usage:        parsed.Usage,
	}, nil
}

// ChatJSON performs a JSON-mode chat call and decodes the content into a
// generic map. Degradation contract: a transport or provider failure yields
// {"error": msg}, an empty completion yields {"error": "empty_response"},
// and undecodable content yields {"raw": content}. Callers must tolerate
// all three shapes; none of them is an error.
func (c *Client) ChatJSON(ctx context.Context, messages []Message, opts ...ChatOption) map[string]interface{} {
	opts = append(opts, WithJSONMode())

	result, err := c.Chat(ctx, messages, opts...)
	if err != nil {
		slog.Warn("llm call failed", "error", err)
		return map[string]interface{}{"error": err.Error()}
	}

	content := strings.TrimSpace(result.Content)
	if content == "" {
		return map[string]interface{}{"error": "empty_response"}
	}

	// Some providers wrap JSON output in markdown fences even in JSON mode.
	content = stripCodeFence(content)

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		slog.Warn("llm returned non-JSON content in JSON mode", "error", err)
		return map[string]interface{}{"raw": result.Content}
	}
	return decoded
}

// Translate is a thin convenience wrapper for direct translation calls.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	messages := []Message{
		{Role: "system", Content: fmt.Sprintf(
			"You are a professional translator. Translate the user text from %s to %s. Provide only the translation.",
			sourceLang, targetLang)},
		{Role: "user", Content: text},
	}
	result, err := c.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

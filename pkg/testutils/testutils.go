// Package testutils provides the deterministic stub LLM server used by
// pipeline tests: an OpenAI-compatible endpoint whose completions are
// scripted per prompt marker, so multi-agent workflows run end to end
// without a provider.
package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/kadirpekel/legalmt/pkg/config"
)

type rule struct {
	marker  string
	content string
}

// StubLLM is a scripted chat-completions server. Rules match a
// substring anywhere in the request messages; the first match wins.
// Unmatched requests get the default completion.
type StubLLM struct {
	server *httptest.Server

	mu             sync.Mutex
	rules          []rule
	defaultContent string
	requests       []string
}

func NewStubLLM() *StubLLM {
	s := &StubLLM{defaultContent: "stub completion"}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// On scripts a completion for requests whose messages contain marker.
func (s *StubLLM) On(marker, content string) *StubLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{marker: marker, content: content})
	return s
}

// Default sets the completion for unmatched requests.
func (s *StubLLM) Default(content string) *StubLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultContent = content
	return s
}

// Requests returns the concatenated message text of every request seen.
func (s *StubLLM) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *StubLLM) URL() string { return s.server.URL }

func (s *StubLLM) Close() { s.server.Close() }

// Config returns an llm client configuration pointed at the stub, with
// retries tightened so failure tests stay fast.
func (s *StubLLM) Config() config.LLMConfig {
	return config.LLMConfig{
		APIKey:        "test-key",
		BaseURL:       s.server.URL,
		Model:         "stub-model",
		Timeout:       5,
		MaxRetries:    2,
		RetryDelay:    0.001,
		MaxConcurrent: 10,
	}
}

func (s *StubLLM) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var joined strings.Builder
	for _, m := range req.Messages {
		joined.WriteString(m.Content)
		joined.WriteString("\n")
	}
	prompt := joined.String()

	s.mu.Lock()
	s.requests = append(s.requests, prompt)
	content := s.defaultContent
	for _, rule := range s.rules {
		if strings.Contains(prompt, rule.marker) {
			content = rule.content
			break
		}
	}
	s.mu.Unlock()

	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

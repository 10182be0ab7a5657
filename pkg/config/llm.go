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

package config

import (
	"fmt"
)

// LLMConfig holds connection settings for the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	Timeout       int     `yaml:"timeout"`         // seconds
	MaxRetries    int     `yaml:"max_retries"`     //
	RetryDelay    float64 `yaml:"retry_delay"`     // seconds, base for exponential backoff
	MaxConcurrent int     `yaml:"max_concurrent"`  // in-flight provider calls
}

// EmbeddingConfig holds settings for the embeddings endpoint.
type EmbeddingConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Dim     int    `yaml:"dim"` // vector dimension, required for Milvus collections
}

// LLMConfigFromEnv reads the chat endpoint configuration from the environment.
func LLMConfigFromEnv() LLMConfig {
	return LLMConfig{
		APIKey:        envOr("OPENAI_API_KEY", ""),
		BaseURL:       envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:         envOr("OPENAI_API_MODEL", "gpt-4o-mini"),
		Timeout:       envIntOr("LLM_TIMEOUT", 300),
		MaxRetries:    envIntOr("LLM_MAX_RETRIES", 3),
		RetryDelay:    envFloatOr("LLM_RETRY_DELAY", 1.0),
		MaxConcurrent: envIntOr("LLM_MAX_CONCURRENT", 10),
	}
}

// EmbeddingConfigFromEnv reads the embedding endpoint configuration from the
// environment. Dim is zero when EMBEDDING_DIM is unset; collection creation
// must refuse to proceed in that case.
func EmbeddingConfigFromEnv() EmbeddingConfig {
	return EmbeddingConfig{
		APIKey:  envOr("OPENAI_API_KEY", ""),
		BaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:   envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		Dim:     envIntOr("EMBEDDING_DIM", 0),
	}
}

// Validate checks startup requirements. A missing API key is a fatal
// configuration error.
func (c LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %d", c.Timeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("llm max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("llm max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}

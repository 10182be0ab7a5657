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

// Package agents implements the LLM agents behind each translation layer:
// terminology extraction and evaluation, syntax pattern analysis and
// refinement, discourse-level refinement, candidate selection, and the
// flat baseline translator.
//
// Agents never fail the pipeline on a bad model response. Each one decodes
// the degraded-response shapes the llm client produces and falls back to a
// neutral result, so a single flaky call costs quality, not the run.
package agents

// jsonObj is the decoded shape of a JSON-mode completion.
type jsonObj = map[string]interface{}

func objString(m jsonObj, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func objFloat(m jsonObj, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func objBool(m jsonObj, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func objSlice(m jsonObj, key string) []interface{} {
	if v, ok := m[key].([]interface{}); ok {
		return v
	}
	return nil
}

func objMap(m jsonObj, key string) jsonObj {
	if v, ok := m[key].(jsonObj); ok {
		return v
	}
	return nil
}

// objFailed reports whether a ChatJSON result is one of the degraded
// shapes rather than the structure the prompt asked for.
func objFailed(m jsonObj) bool {
	if m == nil {
		return true
	}
	if _, ok := m["error"]; ok {
		return true
	}
	if _, ok := m["raw"]; ok {
		return true
	}
	return false
}

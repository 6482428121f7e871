// Package autoload registers every built-in LLM provider.
package autoload

import (
	_ "polymath/pkg/llm/anthropic"
	_ "polymath/pkg/llm/gemini"
	_ "polymath/pkg/llm/ollama"
	_ "polymath/pkg/llm/openailm"
)

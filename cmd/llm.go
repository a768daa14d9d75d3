package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/crev/internal/llm"
	"github.com/joescharf/crev/internal/sandbox"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model")).
		WithMaxTokens(viper.GetInt64("anthropic.max_tokens"))
}

// newExecutor creates the sandbox executor selected by sandbox.mode.
func newExecutor() (sandbox.Executor, error) {
	switch mode := viper.GetString("sandbox.mode"); mode {
	case "", "local":
		return sandbox.NewLocalExecutor(viper.GetString("sandbox.interpreter")), nil
	case "http":
		url := viper.GetString("sandbox.url")
		if url == "" {
			return nil, fmt.Errorf("sandbox.mode is http but sandbox.url is not set")
		}
		return sandbox.NewHTTPExecutor(url, viper.GetString("sandbox.api_key")), nil
	default:
		return nil, fmt.Errorf("unknown sandbox.mode %q (want local or http)", mode)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// DefaultLLM is the provider group list used when config.json has no 'llm' entry:
// Gemma 2 served through Groq's OpenAI-compatible endpoint.
const DefaultLLM = `[{"type":"openai","base_url":"https://api.groq.com/openai/v1","models":["gemma2-9b-it"],"options":{"temperature":0}}]`

// DefaultChannels serves only the web page, on port 8501.
const DefaultChannels = `{"web":{"port":8501}}`

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings: page texts, LLM provider choices, channels
// and tool parameters. The API credential is deliberately absent; it is
// typed by the user into each session.
type Config struct {
	// Title is the page heading shown above the chat.
	Title string `json:"title"`
	// Subtitle is the small line rendered below the title.
	Subtitle string `json:"subtitle"`
	// Greeting is the synthetic assistant message every new transcript starts with.
	Greeting string `json:"greeting"`
	// CredentialLabel names the API key the user must provide (e.g. "Groq API Key").
	CredentialLabel string `json:"credential_label"`
	// CredentialHelpURL is linked below the credential field.
	CredentialHelpURL string `json:"credential_help_url"`
	// QuestionPlaceholder is the hint shown inside the empty question field.
	QuestionPlaceholder string `json:"question_placeholder"`
	// DefaultQuestion pre-fills the question field.
	DefaultQuestion string `json:"default_question"`
	// Footer is the line rendered at the bottom of the page.
	Footer string `json:"footer"`
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the list of provider groups in raw JSON; the llm package parses it.
	LLM jsoniter.RawMessage `json:"llm"`
	// Wikipedia configures the knowledge lookup tool.
	Wikipedia WikipediaConfig `json:"wikipedia"`
	// Agent configures the reasoning loop.
	Agent AgentConfig `json:"agent"`
}

// WikipediaConfig configures the lookup tool's MediaWiki backend.
type WikipediaConfig struct {
	BaseURL     string `json:"base_url"`      // Full api.php endpoint; derived from Lang when empty
	Lang        string `json:"lang"`          // Wikipedia language edition
	TopKResults int    `json:"top_k_results"` // Number of pages summarized per query
	MaxChars    int    `json:"max_chars"`     // Hard cap on the returned text
}

// AgentConfig configures the zero-shot agent.
type AgentConfig struct {
	MaxIterations       int   `json:"max_iterations"`
	HandleParsingErrors *bool `json:"handle_parsing_errors,omitempty"`
}

// ParsingErrorsHandled reports whether malformed agent output is fed back to
// the model instead of aborting the run. Defaults to true.
func (a AgentConfig) ParsingErrorsHandled() bool {
	return a.HandleParsingErrors == nil || *a.HandleParsingErrors
}

// DefaultConfig returns the application config used when config.json is absent.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills every empty field with its built-in value.
func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = "🧠 Text to Math Problem Solver & Data Search Assistant"
	}
	if c.Subtitle == "" {
		c.Subtitle = "Powered by Google Gemma 2"
	}
	if c.Greeting == "" {
		c.Greeting = "👋 Hello! I am your math and data assistant. Ask me anything!"
	}
	if c.CredentialLabel == "" {
		c.CredentialLabel = "Groq API Key"
	}
	if c.CredentialHelpURL == "" {
		c.CredentialHelpURL = "https://console.groq.com/"
	}
	if c.QuestionPlaceholder == "" {
		c.QuestionPlaceholder = "e.g. What is 25 * 13 or Who discovered gravity?"
	}
	if c.Footer == "" {
		c.Footer = "Made with ❤️ in Go"
	}
	if len(c.LLM) == 0 {
		c.LLM = jsoniter.RawMessage(DefaultLLM)
	}
	if len(c.Channels) == 0 {
		var channels map[string]jsoniter.RawMessage
		_ = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(DefaultChannels), &channels)
		c.Channels = channels
	}
	if c.Wikipedia.Lang == "" {
		c.Wikipedia.Lang = "en"
	}
	if c.Wikipedia.BaseURL == "" {
		c.Wikipedia.BaseURL = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", c.Wikipedia.Lang)
	}
	if c.Wikipedia.TopKResults <= 0 {
		c.Wikipedia.TopKResults = 3
	}
	if c.Wikipedia.MaxChars <= 0 {
		c.Wikipedia.MaxChars = 4000
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 15
	}
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	if c.Greeting == "" {
		return fmt.Errorf("greeting must not be empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the assistant.
type SystemConfig struct {
	// MaxRetries is the number of times a provider is asked again after a
	// transient error before the next provider group is tried.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for one whole
	// agent run. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// HTTPTimeoutMs bounds each request made by the lookup tool.
	HTTPTimeoutMs int `json:"http_timeout_ms"`
	// ShowThoughts streams the agent's intermediate steps to the user.
	ShowThoughts bool `json:"show_thoughts"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// SessionIdleTimeoutMs is how long an untouched session (and its
	// transcript and credential) is kept in memory.
	SessionIdleTimeoutMs int `json:"session_idle_timeout_ms"`
	// StreamBufferSize is the capacity of the channel that carries the
	// agent's thoughts from the handler to a channel.
	StreamBufferSize int `json:"stream_buffer_size"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:           3,
		RetryDelayMs:         500,
		LLMTimeoutMs:         120000,
		HTTPTimeoutMs:        15000,
		ShowThoughts:         true,
		LogLevel:             "info",
		SessionIdleTimeoutMs: 3600000,
		StreamBufferSize:     100,
		TelegramMessageLimit: 4000,
	}
}

// Default file names, looked up in the working directory.
const (
	DefaultConfigFile = "config.json"
	DefaultSystemFile = "system.json"
)

// Load reads the application config from appPath and the system config from
// systemPath. A missing application file is not fatal: the built-in defaults
// describe a complete Groq-backed assistant. A present but malformed file is
// an error.
func Load(appPath, systemPath string) (*Config, *SystemConfig, error) {
	cfg, err := LoadConfig(appPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, LoadSystemConfig(systemPath), nil
}

// LoadConfig reads one application config file, applying defaults to absent
// fields. Files ending in .yaml or .yml are read as YAML, anything else as JSON.
func LoadConfig(path string) (*Config, error) {
	appFile, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		if appFile, err = yamlToJSON(appFile); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document as JSON so the raw provider and
// channel sections keep their JSON form.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(doc)
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	return cfg
}

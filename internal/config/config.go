package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Slack    SlackConfig    `toml:"slack"`
	OpenAI   OpenAIConfig   `toml:"openai"`
	Engine   EngineConfig   `toml:"engine"`
	MCP      MCPConfig      `toml:"mcp"`
	Observer ObserverConfig `toml:"observer"`
}

type SlackConfig struct {
	BotToken string `toml:"bot_token"`
	AppToken string `toml:"app_token"`
	TeamID   string `toml:"team_id"`
}

type OpenAIConfig struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	TranscribeModel string `toml:"transcribe_model"`
}

type EngineConfig struct {
	Development     bool     `toml:"development"`
	HandlerLimit    int64    `toml:"handler_limit"`
	AllowedChannels []string `toml:"allowed_channels"`
	AllowedUsers    []string `toml:"allowed_users"`
	TextModel       string   `toml:"text_model"`
	VisionModel     string   `toml:"vision_model"`
	ReasonerModel   string   `toml:"reasoner_model"`
}

type MCPConfig struct {
	GatewayURL  string            `toml:"gateway_url"`
	Credentials map[string]string `toml:"credentials"`
}

type ObserverConfig struct {
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			HandlerLimit:  5,
			TextModel:     "gpt-4.1",
			VisionModel:   "gpt-4o",
			ReasonerModel: "o3",
		},
		MCP: MCPConfig{Credentials: map[string]string{}},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "livia.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}
	if cfg.MCP.Credentials == nil {
		cfg.MCP.Credentials = map[string]string{}
	}

	// Env overrides
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_APP_TOKEN"); v != "" {
		cfg.Slack.AppToken = v
	}
	if v := os.Getenv("SLACK_TEAM_ID"); v != "" {
		cfg.Slack.TeamID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("LIVIA_ENV"); v != "" {
		cfg.Engine.Development = v == "development" || v == "dev"
	}
	if v := os.Getenv("LIVIA_HANDLER_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Engine.HandlerLimit = n
		}
	}
	if v := os.Getenv("LIVIA_MCP_GATEWAY_URL"); v != "" {
		cfg.MCP.GatewayURL = v
	}

	// Gateway bearer tokens are secrets; LIVIA_MCP_TOKEN_TIME_TRACKER
	// overrides the credential for slug "time-tracker".
	const tokenPrefix = "LIVIA_MCP_TOKEN_"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" || !strings.HasPrefix(k, tokenPrefix) {
			continue
		}
		slug := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, tokenPrefix)), "_", "-")
		cfg.MCP.Credentials[slug] = v
	}

	return cfg
}

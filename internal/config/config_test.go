package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Engine.TextModel != "gpt-4.1" {
		t.Errorf("expected gpt-4.1, got %s", cfg.Engine.TextModel)
	}
	if cfg.Engine.VisionModel != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %s", cfg.Engine.VisionModel)
	}
	if cfg.Engine.ReasonerModel != "o3" {
		t.Errorf("expected o3, got %s", cfg.Engine.ReasonerModel)
	}
	if cfg.Engine.HandlerLimit != 5 {
		t.Errorf("expected handler limit 5, got %d", cfg.Engine.HandlerLimit)
	}
	if cfg.Engine.Development {
		t.Error("expected production mode by default")
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[slack]
bot_token = "xoxb-file"
team_id = "T123"

[engine]
development = true
allowed_channels = ["C1", "C2"]
text_model = "gpt-4.1-mini"

[mcp]
gateway_url = "https://gateway.example.com"

[mcp.credentials]
time-tracker = "tok-file"
`), 0644)

	cfg := Load(path)
	if cfg.Slack.BotToken != "xoxb-file" {
		t.Errorf("expected xoxb-file, got %s", cfg.Slack.BotToken)
	}
	if cfg.Slack.TeamID != "T123" {
		t.Errorf("expected T123, got %s", cfg.Slack.TeamID)
	}
	if !cfg.Engine.Development {
		t.Error("expected development mode from file")
	}
	if len(cfg.Engine.AllowedChannels) != 2 || cfg.Engine.AllowedChannels[0] != "C1" {
		t.Errorf("expected [C1 C2], got %v", cfg.Engine.AllowedChannels)
	}
	if cfg.Engine.TextModel != "gpt-4.1-mini" {
		t.Errorf("expected gpt-4.1-mini, got %s", cfg.Engine.TextModel)
	}
	if cfg.MCP.Credentials["time-tracker"] != "tok-file" {
		t.Errorf("expected tok-file, got %s", cfg.MCP.Credentials["time-tracker"])
	}
	// Defaults preserved
	if cfg.Engine.VisionModel != "gpt-4o" {
		t.Errorf("default should be preserved, got %s", cfg.Engine.VisionModel)
	}
	if cfg.Engine.HandlerLimit != 5 {
		t.Errorf("default should be preserved, got %d", cfg.Engine.HandlerLimit)
	}
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[slack]
bot_token = "xoxb-file"

[engine]
handler_limit = 3
`), 0644)

	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("SLACK_APP_TOKEN", "xapp-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("LIVIA_ENV", "development")
	t.Setenv("LIVIA_HANDLER_LIMIT", "12")

	cfg := Load(path)
	if cfg.Slack.BotToken != "xoxb-env" {
		t.Errorf("env should beat file, got %s", cfg.Slack.BotToken)
	}
	if cfg.Slack.AppToken != "xapp-env" {
		t.Errorf("expected xapp-env, got %s", cfg.Slack.AppToken)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Errorf("expected sk-env, got %s", cfg.OpenAI.APIKey)
	}
	if !cfg.Engine.Development {
		t.Error("LIVIA_ENV=development should enable development mode")
	}
	if cfg.Engine.HandlerLimit != 12 {
		t.Errorf("env should beat file, got %d", cfg.Engine.HandlerLimit)
	}
}

func TestEnvProductionMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[engine]
development = true
`), 0644)

	t.Setenv("LIVIA_ENV", "production")

	cfg := Load(path)
	if cfg.Engine.Development {
		t.Error("LIVIA_ENV=production should disable development mode")
	}
}

func TestMCPTokenEnv(t *testing.T) {
	t.Setenv("LIVIA_MCP_TOKEN_TIME_TRACKER", "tok-env")
	t.Setenv("LIVIA_MCP_TOKEN_MAIL", "tok-mail")

	cfg := Load("/nonexistent/path.toml")
	if cfg.MCP.Credentials["time-tracker"] != "tok-env" {
		t.Errorf("expected tok-env, got %s", cfg.MCP.Credentials["time-tracker"])
	}
	if cfg.MCP.Credentials["mail"] != "tok-mail" {
		t.Errorf("expected tok-mail, got %s", cfg.MCP.Credentials["mail"])
	}
}

func TestInvalidHandlerLimitIgnored(t *testing.T) {
	t.Setenv("LIVIA_HANDLER_LIMIT", "zero")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Engine.HandlerLimit != 5 {
		t.Errorf("bad value should keep default, got %d", cfg.Engine.HandlerLimit)
	}
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port          int     `koanf:"port"`
		ChatRateLimit float64 `koanf:"chat_rate_limit"`
	} `koanf:"server"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	AI struct {
		Provider       string  `koanf:"provider"`
		APIKey         string  `koanf:"api_key"`
		Model          string  `koanf:"model"`
		BaseURL        string  `koanf:"base_url"`
		MaxTokens      int     `koanf:"max_tokens"`
		Temperature    float64 `koanf:"temperature"`
		TimeoutSeconds int     `koanf:"timeout_seconds"`
	} `koanf:"ai"`

	Chat struct {
		DefaultReply string `koanf:"default_reply"`
		HistoryLimit int    `koanf:"history_limit"`
	} `koanf:"chat"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":            8888,
		"server.chat_rate_limit": 20,
		"ai.provider":            "openai",
		"ai.model":               "gpt-3.5-turbo",
		"ai.max_tokens":          150,
		"ai.temperature":         0.7,
		"ai.timeout_seconds":     20,
		"chat.history_limit":     10,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./telexbot.toml", "$HOME/.telexbot.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix TELEXBOT_
	k.Load(env.Provider("TELEXBOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TELEXBOT_")), "_", ".", 1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// The original deployment configured OpenAI through OPENAI_API_KEY.
	if config.AI.APIKey == "" {
		config.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Telexbot Configuration

[server]
port = 8888
# Sustained requests per second allowed on the chat endpoints
chat_rate_limit = 20

[database]
# Also read from DATABASE_URL or a .env file when empty
url = ""

[ai]
provider = "openai"
api_key = ""
model = "gpt-3.5-turbo"
max_tokens = 150
temperature = 0.7
timeout_seconds = 20

[chat]
# Reply used when no rule matches and generation is unavailable
default_reply = ""
history_limit = 10
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}

	if config.Server.ChatRateLimit <= 0 {
		return fmt.Errorf("chat rate limit must be positive")
	}

	switch config.AI.Provider {
	case "", "openai":
	default:
		return fmt.Errorf("unsupported AI provider %q", config.AI.Provider)
	}

	if config.Chat.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative")
	}

	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/phd59fr/mailbridge/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Defaults applied when the YAML file leaves a field unset.
const (
	DefaultCheckInterval    = 60 * time.Second
	DefaultMaxPreviewLength = 600
	DefaultDatabasePath     = "data/mailbridge.db"
)

// defaultSpamKeywords flag the usual newsletter and auto-reply noise when
// the configuration does not provide its own list.
var defaultSpamKeywords = []string{
	"unsubscribe", "no-reply", "noreply", "auto-reply", "automatic reply",
	"out of office", "vacation", "away from office",
}

// Load reads the configuration from the specified YAML file, overlays
// environment variables (a .env file is honored when present) and
// validates the result.
func Load(filepath string) (*models.Config, error) {
	_ = godotenv.Load()

	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	if config.CheckInterval <= 0 {
		config.CheckInterval = models.Duration(DefaultCheckInterval)
	}
	if config.MaxPreviewLength <= 0 {
		config.MaxPreviewLength = DefaultMaxPreviewLength
	}
	if config.DatabasePath == "" {
		config.DatabasePath = DefaultDatabasePath
	}
	if len(config.SpamKeywords) == 0 {
		config.SpamKeywords = defaultSpamKeywords
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		config.DatabasePath = v
	}
	config.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	config.LogLevel = os.Getenv("LOG_LEVEL")

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *models.Config) error {
	if config.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if len(config.Accounts) == 0 {
		return fmt.Errorf("no email accounts configured")
	}
	for i, account := range config.Accounts {
		if account.Label == "" {
			return fmt.Errorf("account %d: label cannot be empty", i)
		}
		if account.Email == "" || account.Password == "" {
			return fmt.Errorf("account %q: email and password are required", account.Label)
		}
		if account.Server == "" {
			return fmt.Errorf("account %q: server is required", account.Label)
		}
	}
	return nil
}

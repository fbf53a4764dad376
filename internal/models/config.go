package models

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the application configuration. It is loaded once at
// startup and treated as an immutable snapshot for the process lifetime.
type Config struct {
	Accounts         []Account `yaml:"accounts"`
	SpamKeywords     []string  `yaml:"spamKeywords"`
	MaxPreviewLength int       `yaml:"maxPreviewLength"`
	CheckInterval    Duration  `yaml:"checkInterval"`
	DatabasePath     string    `yaml:"databasePath"`

	// Loaded from the environment, not from YAML.
	BotToken string `yaml:"-"`
	LogLevel string `yaml:"-"`
}

// Account represents one watched IMAP mailbox
type Account struct {
	Label    string `yaml:"label"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	UseIdle  *bool  `yaml:"useIdle"`
	MailBox  string `yaml:"mailbox"`
}

// Idle reports whether the account prefers IMAP IDLE. Unset defaults to true.
func (a Account) Idle() bool {
	return a.UseIdle == nil || *a.UseIdle
}

// Mailbox returns the folder to watch, defaulting to INBOX.
func (a Account) Mailbox() string {
	if a.MailBox == "" {
		return "INBOX"
	}
	return a.MailBox
}

// Addr returns the host:port dial address for the account's IMAP server, defaulting to port 993.
func (a Account) Addr() string {
	port := a.Port
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", a.Server, port)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// ErrMissingCredentials is returned by Validate when the mail account
// username or password is not set. It is a fatal configuration error:
// the process must exit before attempting any connection.
var ErrMissingCredentials = errors.New("EMAIL_USER and EMAIL_PASSWORD are required")

// Config is the top-level application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Monitored mail account.
	Protocol string `yaml:"protocol"` // "imap" or "pop3"
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"`

	// Downstream message-store API.
	APIBaseURL string `yaml:"api_base_url"`

	AttachmentsDir      string `yaml:"attachments_dir"`
	PidFile             string `yaml:"pid_file"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// PollInterval returns the poll interval as a time.Duration, defaulting to 30s.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// GetProtocol returns the mail-store protocol, defaulting to "imap".
func (c *Config) GetProtocol() string {
	if c.Protocol == "" {
		return "imap"
	}
	return c.Protocol
}

// GetPort returns the server port, defaulting to the standard secure
// port for the configured protocol (993 for IMAPS, 995 for POP3S).
func (c *Config) GetPort() int {
	if c.Port > 0 {
		return c.Port
	}
	if c.GetProtocol() == "pop3" {
		return 995
	}
	return 993
}

// GetMailbox returns the monitored mailbox name, defaulting to "INBOX".
func (c *Config) GetMailbox() string {
	if c.Mailbox == "" {
		return "INBOX"
	}
	return c.Mailbox
}

// GetAttachmentsDir returns the attachment directory, defaulting to
// data/email-attachments.
func (c *Config) GetAttachmentsDir() string {
	if c.AttachmentsDir == "" {
		return "data/email-attachments"
	}
	return c.AttachmentsDir
}

// GetPidFile returns the pidfile path used by the stop subcommand.
func (c *Config) GetPidFile() string {
	if c.PidFile == "" {
		return "data/mailwatch.pid"
	}
	return c.PidFile
}

// Load reads an optional YAML configuration file, applies environment
// overrides, and validates the result. A missing file is not an error
// when defaultPath is true: the environment alone can carry a complete
// configuration.
func Load(path string, defaultPath bool) (*Config, error) {
	cfg := &Config{
		LogLevel:   "info",
		Server:     "imap.gmail.com",
		APIBaseURL: "http://localhost:5000/api",
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err) && defaultPath:
		// Environment alone can carry a complete configuration.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables. The
// environment wins so credentials can stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("IMAP_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("EMAIL_USER"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
}

// Validate checks the configuration once at startup. Credential values
// are never included in returned errors.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if p := c.GetProtocol(); p != "imap" && p != "pop3" {
		return fmt.Errorf("protocol must be imap or pop3, got %q", p)
	}
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	return nil
}

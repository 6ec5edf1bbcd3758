// Package config provides YAML-based configuration loading for cadence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/cadence/internal/timeline"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from cadence.yaml.
type Config struct {
	Database       DatabaseConfig      `yaml:"database"`
	Sweep          SweepConfig         `yaml:"sweep"`
	NoShow         NoShowConfig        `yaml:"no_show"`
	Classification timeline.Thresholds `yaml:"classification"`
	Sequences      timeline.Table      `yaml:"sequences"`
	Content        ContentConfig       `yaml:"content"`
	Transport      TransportConfig     `yaml:"transport"`
	Redis          RedisConfig         `yaml:"redis"`
	Alerts         AlertsConfig        `yaml:"alerts"`
	Server         ServerConfig        `yaml:"server"`
	Intake         IntakeConfig        `yaml:"intake"`
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite file
}

// SweepConfig tunes the executor.
type SweepConfig struct {
	Schedule   string        `yaml:"schedule"`
	BatchSize  int           `yaml:"batch_size"`
	ClaimLease time.Duration `yaml:"claim_lease"`
	MaxRetries int           `yaml:"max_retries"`
}

// NoShowConfig controls the overdue-booking check. A booking marked NO_SHOW
// is final, so a contact joining later than Grace cannot be completed;
// deployments with habitually late joiners should raise Grace or turn
// MarkStatus off.
type NoShowConfig struct {
	Grace      time.Duration `yaml:"grace"`
	MarkStatus *bool         `yaml:"mark_status"`
}

// MarksStatus reports whether overdue bookings are moved to NO_SHOW.
func (n NoShowConfig) MarksStatus() bool {
	return n.MarkStatus == nil || *n.MarkStatus
}

// ContentConfig holds values interpolated into message templates.
type ContentConfig struct {
	Company   string `yaml:"company"`
	Host      string `yaml:"host"`
	RebookURL string `yaml:"rebook_url"`
}

// TransportConfig configures outbound delivery per channel.
type TransportConfig struct {
	FromEmail string         `yaml:"from_email"`
	FromSMS   string         `yaml:"from_sms"`
	Email     ProviderConfig `yaml:"email"`
	SMS       ProviderConfig `yaml:"sms"`
}

// ProviderConfig describes one delivery provider.
type ProviderConfig struct {
	Type    string        `yaml:"type"` // "webhook", "log", or "" (disabled)
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	OAuth2  *OAuth2Config `yaml:"oauth2"`
}

// OAuth2Config enables client-credentials auth against a provider.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// RedisConfig enables the transport dedup cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// AlertsConfig routes operator alerts to chat.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// ServerConfig configures the HTTP intake server.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	SweepToken string `yaml:"sweep_token"`
}

// IntakeConfig configures broker-based booking intake.
type IntakeConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
}

// AMQPConfig enables the AMQP consumer when URL is set.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// scheduleParser matches the parser the sweep daemon runs with.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads a YAML config file from path and returns a validated Config.
// A .env file beside the config is loaded first (if present) so ${VAR}
// references in the YAML can resolve to secrets kept out of the file.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "cadence.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "cadence"
		}
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "* * * * *"
	}
	if c.Sweep.BatchSize == 0 {
		c.Sweep.BatchSize = 25
	}
	if c.Sweep.ClaimLease == 0 {
		c.Sweep.ClaimLease = 5 * time.Minute
	}
	if c.Sweep.MaxRetries == 0 {
		c.Sweep.MaxRetries = 3
	}
	if c.NoShow.Grace == 0 {
		c.NoShow.Grace = 5 * time.Minute
	}
	def := timeline.DefaultThresholds()
	if c.Classification.SameDayWithin == 0 {
		c.Classification.SameDayWithin = def.SameDayWithin
	}
	if c.Classification.NextDayWithin == 0 {
		c.Classification.NextDayWithin = def.NextDayWithin
	}
	if len(c.Sequences) == 0 {
		c.Sequences = timeline.DefaultTable()
	}
	if c.Content.Company == "" {
		c.Content.Company = "our team"
	}
	if c.Transport.Email.Type == "" {
		c.Transport.Email.Type = "log"
	}
	if c.Redis.Addr != "" && c.Redis.TTL == 0 {
		c.Redis.TTL = 7 * 24 * time.Hour
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Intake.AMQP.URL != "" {
		if c.Intake.AMQP.Exchange == "" {
			c.Intake.AMQP.Exchange = "bookings"
		}
		if c.Intake.AMQP.Queue == "" {
			c.Intake.AMQP.Queue = "cadence.bookings"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if _, err := scheduleParser.Parse(c.Sweep.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("sweep.schedule %q: %v", c.Sweep.Schedule, err))
	}
	if c.Sweep.BatchSize < 0 {
		errs = append(errs, "sweep.batch_size must be > 0")
	}
	if c.Sweep.ClaimLease < 0 {
		errs = append(errs, "sweep.claim_lease must be > 0")
	}
	if c.Sweep.MaxRetries < 0 {
		errs = append(errs, "sweep.max_retries must be > 0")
	}
	if c.NoShow.Grace < 0 {
		errs = append(errs, "no_show.grace must not be negative")
	}
	if c.Classification.SameDayWithin >= c.Classification.NextDayWithin {
		errs = append(errs, "classification.same_day_within must be below classification.next_day_within")
	}
	if err := c.Sequences.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	providers := []struct {
		name string
		p    ProviderConfig
	}{{"email", c.Transport.Email}, {"sms", c.Transport.SMS}}
	for _, pc := range providers {
		name, p := pc.name, pc.p
		switch p.Type {
		case "", "log":
		case "webhook":
			if p.URL == "" {
				errs = append(errs, fmt.Sprintf("transport.%s.url is required for webhook providers", name))
			}
			if p.OAuth2 != nil && (p.OAuth2.TokenURL == "" || p.OAuth2.ClientID == "") {
				errs = append(errs, fmt.Sprintf("transport.%s.oauth2 needs token_url and client_id", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("transport.%s.type %q must be webhook or log", name, p.Type))
		}
	}
	if c.Alerts.Slack.Token != "" && c.Alerts.Slack.Channel == "" {
		errs = append(errs, "alerts.slack.channel is required with a token")
	}
	if c.Alerts.Discord.Token != "" && c.Alerts.Discord.ChannelID == "" {
		errs = append(errs, "alerts.discord.channel_id is required with a token")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

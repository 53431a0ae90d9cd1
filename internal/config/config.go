package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        int    `yaml:"port"`
		APIKey      string `yaml:"api_key"`
		HealthPort  int    `yaml:"health_port"`
		MetricsPort int    `yaml:"metrics_port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Booking struct {
		CancellationWindowHours int `yaml:"cancellation_window_hours"`
		RescheduleWindowHours   int `yaml:"reschedule_window_hours"`
	} `yaml:"booking"`

	Reminders struct {
		Enabled              bool   `yaml:"enabled"`
		SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
		OffsetsHours         []int  `yaml:"offsets_hours"`
		MatchWindowMinutes   int    `yaml:"match_window_minutes"`
		Channel              string `yaml:"channel"`
	} `yaml:"reminders"`

	Notifications struct {
		GatewayURL    string  `yaml:"gateway_url"`
		APIKey        string  `yaml:"api_key"`
		RatePerSecond float64 `yaml:"rate_per_second"`
	} `yaml:"notifications"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		ExportPath    string `yaml:"export_path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/turnero.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ServerPort() int {
	if c.Server.Port <= 0 {
		return 8080
	}
	return c.Server.Port
}

func (c *Config) HealthPort() int {
	if c.Server.HealthPort <= 0 {
		return 8081
	}
	return c.Server.HealthPort
}

func (c *Config) MetricsPort() int {
	if c.Server.MetricsPort <= 0 {
		return 9090
	}
	return c.Server.MetricsPort
}

func (c *Config) CancellationWindow() time.Duration {
	if c.Booking.CancellationWindowHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Booking.CancellationWindowHours) * time.Hour
}

func (c *Config) RescheduleWindow() time.Duration {
	if c.Booking.RescheduleWindowHours <= 0 {
		return 4 * time.Hour
	}
	return time.Duration(c.Booking.RescheduleWindowHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	if c.Reminders.SweepIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Reminders.SweepIntervalMinutes) * time.Minute
}

func (c *Config) ReminderMatchWindow() time.Duration {
	if c.Reminders.MatchWindowMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.MatchWindowMinutes) * time.Minute
}

func (c *Config) ReminderOffsets() []int {
	if len(c.Reminders.OffsetsHours) == 0 {
		return []int{24, 2}
	}
	return c.Reminders.OffsetsHours
}

func (c *Config) BackupPath() string {
	if c.Backup.Path == "" {
		return "data/backups"
	}
	return c.Backup.Path
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) AuditRetention() time.Duration {
	if c.Audit.RetentionDays <= 0 {
		return 365 * 24 * time.Hour
	}
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

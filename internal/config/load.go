package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "PURR"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches for
// config.yaml in the working directory; a missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{
		"database.url",
		"worker.suites",
		"worker.log_file",
		"supabase.url",
		"supabase.key",
		"supabase.email",
		"supabase.password",
		"dna.file",
		"status.addr",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.UsesSupabase() && (cfg.Supabase.URL == "" || cfg.Supabase.Key == "") {
		return fmt.Errorf("config validation failed: supabase.url and supabase.key are required when events.source=%s or dna.source=%s",
			cfg.Events.Source, cfg.DNA.Source)
	}
	if cfg.DNA.Source == "file" && cfg.DNA.File == "" {
		return fmt.Errorf("config validation failed: dna.file is required when dna.source=file")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.id", defaultWorkerID())
	v.SetDefault("worker.log_level", "info")

	v.SetDefault("queue.work_pool_size", 4)
	v.SetDefault("queue.search_pool_size", 2)
	v.SetDefault("queue.queue_size", 1000)

	v.SetDefault("batch.default_chunk_size", 500)

	v.SetDefault("legacy.driver", "odbc")
	v.SetDefault("legacy.retry_attempts", 2)
	v.SetDefault("legacy.retry_delay", 500*time.Millisecond)

	v.SetDefault("events.source", "postgres")
	v.SetDefault("events.channel", "task_events")

	v.SetDefault("dna.source", "edge")

	v.SetDefault("reaper.stuck_task_age", 30*time.Minute)
	v.SetDefault("reaper.pending_age", 2*time.Minute)
	v.SetDefault("reaper.check_interval", 5*time.Minute)
	v.SetDefault("reaper.reset_to", "FAILED")
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return strings.ToLower(host)
}

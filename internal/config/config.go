package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Batch    BatchConfig    `mapstructure:"batch" validate:"required"`
	Legacy   LegacyConfig   `mapstructure:"legacy" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Events   EventsConfig   `mapstructure:"events" validate:"required"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	DNA      DNAConfig      `mapstructure:"dna" validate:"required"`
	Reaper   ReaperConfig   `mapstructure:"reaper" validate:"required"`
	Status   StatusConfig   `mapstructure:"status"`
}

// WorkerConfig identifies this worker and the suites it serves.
type WorkerConfig struct {
	// ID is compared against the worker field of every task. Defaults to the
	// lower-cased hostname.
	ID       string   `mapstructure:"id" validate:"required"`
	Suites   []string `mapstructure:"suites" validate:"required,min=1,dive,required"`
	LogLevel string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile, when set, receives a JSON copy of every log record.
	LogFile string `mapstructure:"log_file"`
}

// QueueConfig sizes the two queue managers.
type QueueConfig struct {
	WorkPoolSize   int `mapstructure:"work_pool_size" validate:"required,gt=0"`
	SearchPoolSize int `mapstructure:"search_pool_size" validate:"required,gt=0"`
	QueueSize      int `mapstructure:"queue_size" validate:"required,gt=0"`
}

// BatchConfig controls batch decomposition.
type BatchConfig struct {
	// DefaultChunkSize is used when an extract-batch body carries no chunk.
	DefaultChunkSize int `mapstructure:"default_chunk_size" validate:"required,gt=0"`
}

// LegacyConfig controls access to the legacy SQL Anywhere databases.
type LegacyConfig struct {
	Driver        string        `mapstructure:"driver" validate:"required"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"required,gt=0"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// EventsConfig selects where task change events come from.
type EventsConfig struct {
	Source  string `mapstructure:"source" validate:"required,oneof=postgres realtime"`
	Channel string `mapstructure:"channel" validate:"required"`
}

// SupabaseConfig holds the hosted project settings used by the realtime
// subscriber, the edge functions and the session.
type SupabaseConfig struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	Key      string `mapstructure:"key"`
	Email    string `mapstructure:"email" validate:"omitempty,email"`
	Password string `mapstructure:"password"`
}

// DNAConfig selects where extraction metadata is read from.
type DNAConfig struct {
	Source string `mapstructure:"source" validate:"required,oneof=edge file"`
	File   string `mapstructure:"file"`
}

// ReaperConfig controls the stuck task reaper.
type ReaperConfig struct {
	StuckTaskAge time.Duration `mapstructure:"stuck_task_age" validate:"required,gt=0"`
	// PendingAge is how long a task may sit PENDING before it is re-admitted.
	PendingAge    time.Duration `mapstructure:"pending_age" validate:"required,gt=0"`
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"required,gt=0"`
	ResetTo       string        `mapstructure:"reset_to" validate:"required,oneof=PENDING FAILED"`
}

// StatusConfig configures the HTTP status surface. An empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// UsesSupabase reports whether any configured component talks to Supabase.
func (c *Config) UsesSupabase() bool {
	return c.Events.Source == "realtime" || c.DNA.Source == "edge"
}

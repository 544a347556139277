package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is populated by
// viper from the config file, ITCH_* environment variables, and bound
// command-line flags, in ascending precedence.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Navigator NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
}

// LoggerConfig controls the zap logger and optional rotating log file.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless Chrome instances the
// session manager spawns. Each session gets a fresh profile; state never
// carries over between sessions.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	NoSandbox     bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableDevShm bool          `mapstructure:"disable_dev_shm" yaml:"disable_dev_shm"`
	ExecPath      string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	StartTimeout  time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	Args          []string      `mapstructure:"args" yaml:"args"`
}

// NavigatorConfig tunes page-load and interaction timing. LoadTimeout bounds
// the full navigate-and-ready wait; ActionTimeout bounds each scripted step.
type NavigatorConfig struct {
	LoadTimeout     time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ReadySelector   string        `mapstructure:"ready_selector" yaml:"ready_selector"`
	LookupAttempts  int           `mapstructure:"lookup_attempts" yaml:"lookup_attempts"`
	LookupBaseDelay time.Duration `mapstructure:"lookup_base_delay" yaml:"lookup_base_delay"`
	// PagesPerSecond rate-limits page loads per lane; zero disables limiting.
	PagesPerSecond float64 `mapstructure:"pages_per_second" yaml:"pages_per_second"`
}

// PipelineConfig configures the lane pool and task-level retry policy.
type PipelineConfig struct {
	Lanes          int           `mapstructure:"lanes" yaml:"lanes"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// OutputConfig selects the result sinks for a run. Images enables fetching
// download-flagged field URLs into <dir>/images.
type OutputConfig struct {
	Dir      string         `mapstructure:"dir" yaml:"dir"`
	File     string         `mapstructure:"file" yaml:"file"`
	Stdout   bool           `mapstructure:"stdout" yaml:"stdout"`
	Images   bool           `mapstructure:"images" yaml:"images"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig enables mirroring records into a Postgres table.
type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// SetDefaults registers the default value for every key on the given viper
// instance. Called before the config file and environment are read so that
// partial configs unmarshal into a complete Config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "itch")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.disable_dev_shm", true)
	v.SetDefault("browser.start_timeout", 30*time.Second)

	v.SetDefault("navigator.load_timeout", 45*time.Second)
	v.SetDefault("navigator.action_timeout", 10*time.Second)
	v.SetDefault("navigator.ready_selector", "body")
	v.SetDefault("navigator.lookup_attempts", 3)
	v.SetDefault("navigator.lookup_base_delay", 200*time.Millisecond)
	v.SetDefault("navigator.pages_per_second", 0.0)

	v.SetDefault("pipeline.lanes", 1)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("pipeline.retry_max_delay", 15*time.Second)
	v.SetDefault("pipeline.task_timeout", 2*time.Minute)

	v.SetDefault("output.dir", "raw_data")
	v.SetDefault("output.file", "records.jsonl")
	v.SetDefault("output.stdout", false)
	v.SetDefault("output.images", false)
	v.SetDefault("output.postgres.enabled", false)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.Lanes < 1 {
		return fmt.Errorf("pipeline.lanes must be at least 1, got %d", c.Pipeline.Lanes)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative, got %d", c.Pipeline.MaxRetries)
	}
	if c.Navigator.LoadTimeout <= 0 {
		return fmt.Errorf("navigator.load_timeout must be positive, got %s", c.Navigator.LoadTimeout)
	}
	if c.Navigator.ActionTimeout <= 0 {
		return fmt.Errorf("navigator.action_timeout must be positive, got %s", c.Navigator.ActionTimeout)
	}
	if c.Navigator.ActionTimeout > c.Navigator.LoadTimeout {
		return fmt.Errorf("navigator.action_timeout (%s) must not exceed navigator.load_timeout (%s)",
			c.Navigator.ActionTimeout, c.Navigator.LoadTimeout)
	}
	if c.Navigator.LookupAttempts < 1 {
		return fmt.Errorf("navigator.lookup_attempts must be at least 1, got %d", c.Navigator.LookupAttempts)
	}
	if c.Browser.StartTimeout <= 0 {
		return fmt.Errorf("browser.start_timeout must be positive, got %s", c.Browser.StartTimeout)
	}
	if c.Output.Postgres.Enabled && c.Output.Postgres.URL == "" {
		return fmt.Errorf("output.postgres.url is required when output.postgres.enabled is true")
	}
	return nil
}

// Default returns a standalone Config carrying the same defaults SetDefaults
// registers. Used by tests and as a base for programmatic construction.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are static; unmarshalling them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

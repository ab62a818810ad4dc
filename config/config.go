package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Source types
	SourceFile    = "file"
	SourceCommand = "command"

	// Export modes
	ModePushgateway = "pushgateway"
	ModeRemoteWrite = "remote_write"

	// Default source settings
	defaultSourceType = SourceFile
	defaultMaxPorts   = 8
	defaultMaxStreams = 256

	// Default export settings
	defaultExportMode    = ModePushgateway
	defaultJobName       = "ntexporter"
	defaultMetricsPrefix = "napatech"
	defaultExportPeriod  = time.Second
	defaultExportTimeout = 10 * time.Second

	// Default saver settings
	defaultSaverPeriod = 5 * time.Second

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete application configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Export  ExportConfig  `yaml:"export"`
	Saver   SaverConfig   `yaml:"saver"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig selects the stat stream and bounds how much of it is exported
type SourceConfig struct {
	// Type is "file" or "command"
	Type string `yaml:"type"`

	// Path is the snapshot document read by the file source
	Path string `yaml:"path"`

	// Command and Args are run by the command source
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// SSH runs Command on a remote host instead of locally
	SSH *SSHConfig `yaml:"ssh"`

	MaxPorts   int `yaml:"max_ports"`
	MaxStreams int `yaml:"max_streams"`
}

// SSHConfig holds SSH connection settings for the command source
type SSHConfig struct {
	Host           string `yaml:"host"`
	User           string `yaml:"user"`
	PrivateKeyFile string `yaml:"private_key_file"`
	KnownHostsFile string `yaml:"known_hosts_file"`
}

// ExportConfig holds push gateway settings
type ExportConfig struct {
	Mode           string        `yaml:"mode"`
	Address        string        `yaml:"address"`
	Job            string        `yaml:"job"`
	Instance       string        `yaml:"instance"`
	MetricsPrefix  string        `yaml:"metrics_prefix"`
	Period         time.Duration `yaml:"period"`
	Timeout        time.Duration `yaml:"timeout"`
	RuntimeMetrics bool          `yaml:"runtime_metrics"`
}

// SaverConfig holds local snapshot file settings
type SaverConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Period   time.Duration `yaml:"period"`
	Filename string        `yaml:"filename"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceFile:
		if c.Source.Path == "" {
			return fmt.Errorf("source path is required for the file source")
		}
	case SourceCommand:
		if c.Source.Command == "" {
			return fmt.Errorf("source command is required for the command source")
		}
		if c.Source.SSH != nil {
			if c.Source.SSH.Host == "" || c.Source.SSH.User == "" || c.Source.SSH.PrivateKeyFile == "" {
				return fmt.Errorf("ssh host, user and private_key_file are required")
			}
		}
	default:
		return fmt.Errorf("source type must be one of: %s", strings.Join([]string{SourceFile, SourceCommand}, ", "))
	}
	if c.Source.MaxPorts < 0 || c.Source.MaxStreams < 0 {
		return fmt.Errorf("max_ports and max_streams must not be negative")
	}

	validModes := []string{ModePushgateway, ModeRemoteWrite}
	if !slices.Contains(validModes, c.Export.Mode) {
		return fmt.Errorf("export mode must be one of: %s", strings.Join(validModes, ", "))
	}
	if c.Export.Address == "" {
		return fmt.Errorf("export address is required")
	}
	if c.Export.Job == "" {
		return fmt.Errorf("export job is required")
	}
	if c.Export.Period <= 0 {
		return fmt.Errorf("export period must be positive")
	}
	if c.Export.Timeout <= 0 {
		return fmt.Errorf("export timeout must be positive")
	}

	if c.Saver.Enabled {
		if c.Saver.Filename == "" {
			return fmt.Errorf("saver filename is required when the saver is enabled")
		}
		if c.Saver.Period < time.Second {
			return fmt.Errorf("saver period must be at least 1s")
		}
		if c.Saver.Period%time.Second != 0 {
			return fmt.Errorf("saver period must be a whole number of seconds, got %s", c.Saver.Period)
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = defaultSourceType
	}
	if c.Source.MaxPorts == 0 {
		c.Source.MaxPorts = defaultMaxPorts
	}
	if c.Source.MaxStreams == 0 {
		c.Source.MaxStreams = defaultMaxStreams
	}
	if c.Export.Mode == "" {
		c.Export.Mode = defaultExportMode
	}
	if c.Export.Job == "" {
		c.Export.Job = defaultJobName
	}
	if c.Export.MetricsPrefix == "" {
		c.Export.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Export.Period == 0 {
		c.Export.Period = defaultExportPeriod
	}
	if c.Export.Timeout == 0 {
		c.Export.Timeout = defaultExportTimeout
	}
	if c.Saver.Period == 0 {
		c.Saver.Period = defaultSaverPeriod
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
	// Instance is left empty here; the caller falls back to the hostname
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

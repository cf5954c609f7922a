// Package config loads and validates the on-disk configuration for the
// core: LLM provider credentials, the vault's data directory, cron job
// definitions, and scheduler tuning. Shape and loading idiom follow the
// teacher's internal/config package (versioned YAML, $include merging,
// env var expansion); narrowed here to the four subsystems this module
// actually has, dropping the channel/plugin/marketplace surface that
// belongs to a gateway product, not a core runtime.
package config

// Config is the top-level configuration document.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Vault     VaultConfig     `yaml:"vault"`
	Policy    PolicyConfig    `yaml:"policy"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cron      CronConfig      `yaml:"cron"`
}

// ServerConfig configures the aegisd control surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// VaultConfig configures the credential vault's on-disk location.
type VaultConfig struct {
	DataDir string `yaml:"data_dir"`
}

// PolicyConfig points at the policy rule definitions applied on top of
// the vault's stored policies (spec §4.5).
type PolicyConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig tunes the priority-lane task scheduler (spec §4.3).
type SchedulerConfig struct {
	LaneBuffer int `yaml:"lane_buffer"`
}

// CronConfig lists the cron-triggered jobs loaded at startup (spec §4.4).
type CronConfig struct {
	Jobs []CronJobConfig `yaml:"jobs"`
}

// CronJobConfig is one statically configured cron trigger.
type CronJobConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Command    string `yaml:"command"`
	Enabled    bool   `yaml:"enabled"`
}

// Default returns a Config with the defaults the teacher's own config
// applies when a field is left unset in the YAML document.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8787},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Vault:   VaultConfig{DataDir: "~/.aegis"},
		Scheduler: SchedulerConfig{
			LaneBuffer: 4096,
		},
	}
}

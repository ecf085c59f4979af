// Package config loads pteosal settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Kernel backends.
const (
	KernelSim  = "sim"
	KernelHost = "host"
)

// Config holds every tunable of the layer.
type Config struct {
	Kernel string `yaml:"kernel"`
	Debug  bool   `yaml:"debug"`

	// MaxTLS is the number of TLS keys the slot table supports.
	MaxTLS int `yaml:"max_tls"`

	// MinStackSize is the floor thread stack requests are raised to.
	MinStackSize int `yaml:"min_stack_size"`

	// TimerFreq is the kernel tick rate in Hz.
	TimerFreq uint64 `yaml:"timer_freq"`

	Priority Priorities `yaml:"priority"`

	// CancelPollInterval is how long a cancellable pend waits on its
	// semaphore before checking for cancellation again.
	CancelPollInterval time.Duration `yaml:"cancel_poll_interval"`

	Sim SimLimits `yaml:"sim"`
}

// Priorities is the fixed priority range reported to the threads layer.
type Priorities struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

// SimLimits configures fault injection in the simulated kernel. Zero means
// unlimited.
type SimLimits struct {
	MaxThreads    int `yaml:"max_threads"`
	MaxSemaphores int `yaml:"max_semaphores"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Kernel:       KernelSim,
		MaxTLS:       32,
		MinStackSize: 4096,
		TimerFreq:    100,
		Priority: Priorities{
			Min:     1,
			Max:     31,
			Default: 8,
		},
		CancelPollInterval: 10 * time.Millisecond,
	}
}

// Load reads path over the defaults, applies environment overrides, and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PTEOSAL_* environment variables.
func (c *Config) ApplyEnv() {
	c.Kernel = env.Str("PTEOSAL_KERNEL", c.Kernel)
	if env.Has("PTEOSAL_DEBUG") {
		c.Debug = env.Bool("PTEOSAL_DEBUG")
	}
	c.MaxTLS = env.Int("PTEOSAL_MAX_TLS", c.MaxTLS)
	c.MinStackSize = env.Int("PTEOSAL_MIN_STACK", c.MinStackSize)
	if hz := env.Int("PTEOSAL_TIMER_FREQ", int(c.TimerFreq)); hz > 0 {
		c.TimerFreq = uint64(hz)
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.Kernel {
	case KernelSim, KernelHost:
	default:
		return fmt.Errorf("unknown kernel %q (want %s or %s)", c.Kernel, KernelSim, KernelHost)
	}
	if c.MaxTLS <= 0 {
		return fmt.Errorf("max_tls must be positive, got %d", c.MaxTLS)
	}
	if c.MinStackSize <= 0 {
		return fmt.Errorf("min_stack_size must be positive, got %d", c.MinStackSize)
	}
	if c.TimerFreq == 0 {
		return fmt.Errorf("timer_freq must be positive")
	}
	p := c.Priority
	if !(p.Min < p.Max && p.Min <= p.Default && p.Default <= p.Max) {
		return fmt.Errorf("invalid priority range min=%d max=%d default=%d", p.Min, p.Max, p.Default)
	}
	if c.CancelPollInterval < time.Millisecond {
		return fmt.Errorf("cancel_poll_interval must be at least 1ms, got %s", c.CancelPollInterval)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

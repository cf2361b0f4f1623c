// Package config handles YAML configuration parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// WebhookURL is the automation-flow endpoint stress runs post to.
	WebhookURL string `yaml:"webhookUrl"`
	Run        Run    `yaml:"run,omitempty"`
	Store      Store  `yaml:"store,omitempty"`
	Server     Server `yaml:"server,omitempty"`
	// SampleMessages rotates across message waves. Defaults to the built-in
	// test phrases when empty.
	SampleMessages []string `yaml:"sampleMessages,omitempty"`
}

// Run holds the default stress-run parameters; the trigger request or CLI
// flags can override each one.
type Run struct {
	Users           int           `yaml:"users"`
	MessagesPerUser int           `yaml:"messagesPerUser"`
	WaveDelay       time.Duration `yaml:"waveDelay"`
	Deadline        time.Duration `yaml:"deadline"`
	Concurrency     int           `yaml:"concurrency"`
	RPS             int           `yaml:"rps"`
}

// Store selects and configures the message log backend.
type Store struct {
	// Backend is "redis" or "memory".
	Backend  string `yaml:"backend"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// KeyPrefix namespaces the log keys and the live feed channel.
	KeyPrefix string `yaml:"keyPrefix"`
}

// Server configures the HTTP trigger surface.
type Server struct {
	Listen string `yaml:"listen"`
}

// DefaultSampleMessages are the bodies rotated across waves when the config
// does not provide its own.
var DefaultSampleMessages = []string{
	"Hola! ¿Cómo estás?",
	"Probando el sistema",
	"Test de estrés en progreso",
	"¿Todo funciona bien?",
	"Mensaje de prueba número 1",
	"Mensaje de prueba número 2",
	"Sistema en ejecución",
	"Validando rendimiento",
	"Test completado",
	"Listo para producción",
}

// Load reads and parses a YAML configuration file, filling defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Run.Users == 0 {
		c.Run.Users = 100
	}
	if c.Run.MessagesPerUser == 0 {
		c.Run.MessagesPerUser = 1
	}
	if c.Run.Deadline == 0 {
		c.Run.Deadline = 10 * time.Minute
	}
	if c.Run.Concurrency == 0 {
		c.Run.Concurrency = 32
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Addr == "" {
		c.Store.Addr = "localhost:6379"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "wasim"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if len(c.SampleMessages) == 0 {
		c.SampleMessages = DefaultSampleMessages
	}
}

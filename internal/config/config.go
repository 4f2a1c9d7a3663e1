package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig is the server configuration.
type ServerConfig struct {
	Database struct {
		// Driver selects the store: "postgres" or "badger".
		Driver   string `yaml:"driver" validate:"oneof=postgres badger"`
		Host     string `yaml:"host" validate:"required_if=Driver postgres"`
		User     string `yaml:"user"`
		Dbname   string `yaml:"dbname" validate:"required_if=Driver postgres"`
		Password string `yaml:"password"`
		// Path is the badger data directory.
		Path     string `yaml:"path"`
		InMemory bool   `yaml:"in_memory"`
	} `yaml:"database"`
	WebServer struct {
		// Address of the worker gRPC endpoint.
		Address string `yaml:"address" validate:"required"`
	} `yaml:"web_server"`
	Admin struct {
		Address string `yaml:"address" validate:"required"`
	} `yaml:"admin"`
	Leases struct {
		TTL           time.Duration `yaml:"ttl" validate:"gt=0"`
		SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
		// Lease polls allowed per worker per second, and burst.
		PollRate  float64 `yaml:"poll_rate" validate:"gt=0"`
		PollBurst int     `yaml:"poll_burst" validate:"gte=1"`
		// MaxGames caps the games handed out in one lease.
		MaxGames int `yaml:"max_games" validate:"gte=2,lte=1048576"`
	} `yaml:"leases"`
	SPRT struct {
		Model      string  `yaml:"model" validate:"oneof=logistic normalized"`
		Confidence float64 `yaml:"confidence" validate:"gt=0,lt=1"`
	} `yaml:"sprt"`
	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=text json"`
	} `yaml:"log"`
}

// Config is the loaded server configuration.
var Config ServerConfig

var validate = validator.New()

// Defaults returns a configuration that runs against an in-memory store.
func Defaults() ServerConfig {
	var c ServerConfig
	c.Database.Driver = "badger"
	c.Database.InMemory = true
	c.WebServer.Address = ":9090"
	c.Admin.Address = ":8080"
	c.Leases.TTL = 15 * time.Minute
	c.Leases.SweepInterval = 30 * time.Second
	c.Leases.PollRate = 1
	c.Leases.PollBurst = 5
	c.Leases.MaxGames = 8192
	c.SPRT.Model = "logistic"
	c.SPRT.Confidence = 0.95
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(content []byte) (ServerConfig, error) {
	c := Defaults()
	if err := yaml.Unmarshal(content, &c); err != nil {
		return ServerConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if c.Database.Driver == "badger" && !c.Database.InMemory && c.Database.Path == "" {
		return ServerConfig{}, fmt.Errorf("database.path is required for a persistent badger store")
	}
	if err := validate.Struct(&c); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// LoadConfig reads path into Config.
func LoadConfig(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := Parse(content)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	Config = c
	return nil
}

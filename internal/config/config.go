// Package config provides configuration management for the kart timing ingestor.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Storage drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Feed     FeedConfig     `mapstructure:"feed" validate:"required"`
	Timing   TimingConfig   `mapstructure:"timing" validate:"required"`
	Points   PointsConfig   `mapstructure:"points" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Events   EventsConfig   `mapstructure:"events"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
	LogFormat   string `mapstructure:"log_format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// StorageConfig selects the durable store backing the repositories
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
}

// FeedConfig represents the timing feed transport configuration
type FeedConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"required,gt=0"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"required,gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"required,gt=0"`
}

// TimingConfig holds the lap plausibility band and crossing window length
type TimingConfig struct {
	MinLap         time.Duration `mapstructure:"min_lap" validate:"required,gt=0"`
	MaxLap         time.Duration `mapstructure:"max_lap" validate:"required,gt=0"`
	CrossingWindow time.Duration `mapstructure:"crossing_window" validate:"required,gt=0"`
}

// PointsConfig names the active point scheme
type PointsConfig struct {
	Scheme    string `mapstructure:"scheme" validate:"required"`
	FieldSize int    `mapstructure:"field_size" validate:"required,gt=0,lte=500"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `mapstructure:"path"`
}

// HealthConfig represents the health endpoint configuration
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// ScheduleConfig sets the background job intervals of the listener. Zero disables a job
type ScheduleConfig struct {
	WindowTick    time.Duration `mapstructure:"window_tick" validate:"gte=0"`
	StatsInterval time.Duration `mapstructure:"stats_interval" validate:"gte=0"`
}

// EventsConfig configures session status notifications
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesPostgres reports whether the postgres storage driver is selected
func (c *Config) UsesPostgres() bool {
	return c.Storage.Driver == StorageDriverPostgres
}

// GetDatabaseDSN returns the PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Address returns the host:port of the timing feed
func (f FeedConfig) Address() string {
	return net.JoinHostPort(f.Host, strconv.Itoa(f.Port))
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// BaseConfig holds settings shared by every binary
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds Postgres connection settings. URL wins over the parts.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// AuthConfig holds identity verification settings
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	Issuer       string        `mapstructure:"issuer"`
	OperatorKeys []string      `mapstructure:"operator_keys"`
	Leeway       time.Duration `mapstructure:"leeway"`
}

// LedgerConfig selects per-deployment ledger behavior
type LedgerConfig struct {
	TicketAddressing string `mapstructure:"ticket_addressing"`
	PurchasePayments bool   `mapstructure:"purchase_payments"`
}

// OracleConfig holds the trusted-oracle policy
type OracleConfig struct {
	DefaultIdentity   string `mapstructure:"default_identity"`
	AllowReResolution bool   `mapstructure:"allow_re_resolution"`
}

// NATSConfig holds NATS JetStream settings. An empty URL disables publishing.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// PolymarketConfig holds the market data API settings
type PolymarketConfig struct {
	GammaURL   string        `mapstructure:"gamma_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

// WorkerConfig holds oracle worker settings
type WorkerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Ledger     LedgerConfig   `mapstructure:"ledger"`
	Oracle     OracleConfig   `mapstructure:"oracle"`
	NATS       NATSConfig     `mapstructure:"nats"`
}

// OracleWorkerConfig holds configuration for the oracle worker
type OracleWorkerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.issuer", "ticket-ledger")
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("ledger.ticket_addressing", string(domain.AddressBySequence))
	v.SetDefault("ledger.purchase_payments", false)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOracleWorkerConfig loads configuration for the oracle worker
func LoadOracleWorkerConfig(configFile string, envPath string) (*OracleWorkerConfig, error) {
	v := configureViper("oracle-worker", configFile, envPath)

	setCommonDefaults(v)
	v.SetDefault("polymarket.gamma_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.timeout", "10s")
	v.SetDefault("polymarket.max_retries", 5)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.poll_interval", "1m")
	v.SetDefault("worker.batch_size", 100)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config OracleWorkerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields for the API server
func (c *APIConfig) Validate() error {
	var errs []error
	if c.Database.ConnString() == "" {
		errs = append(errs, errors.New("database.url or database.host is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if _, err := domain.ParseAddressingScheme(c.Ledger.TicketAddressing); err != nil {
		errs = append(errs, fmt.Errorf("ledger.ticket_addressing %q is not sequential or buyer", c.Ledger.TicketAddressing))
	}
	return errors.Join(errs...)
}

// Validate checks required fields for the oracle worker
func (c *OracleWorkerConfig) Validate() error {
	var errs []error
	if c.Database.ConnString() == "" {
		errs = append(errs, errors.New("database.url or database.host is required"))
	}
	if !domain.Identity(c.Oracle.DefaultIdentity).Valid() {
		errs = append(errs, errors.New("oracle.default_identity is required"))
	}
	if c.Worker.PoolSize <= 0 {
		errs = append(errs, errors.New("worker.pool_size must be positive"))
	}
	return errors.Join(errs...)
}

// ConnString returns a pgx connection string, or "" when nothing is set.
func (c *DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("oracle.allow_re_resolution", false)
	v.SetDefault("nats.stream_name", "LEDGER_EVENTS")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("TICKET_LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars makes keys without a file or default value visible to
// Unmarshal when they are only set in the environment.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.url",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_conns",
		"database.conn_max_lifetime",
		"database.run_migrations",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.shutdown_timeout",
		"server.allowed_origins",
		// Auth
		"auth.jwt_secret",
		"auth.issuer",
		"auth.operator_keys",
		"auth.leeway",
		// Ledger
		"ledger.ticket_addressing",
		"ledger.purchase_payments",
		// Oracle
		"oracle.default_identity",
		"oracle.allow_re_resolution",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Polymarket
		"polymarket.gamma_url",
		"polymarket.api_key",
		"polymarket.timeout",
		"polymarket.max_retries",
		// Worker
		"worker.pool_size",
		"worker.poll_interval",
		"worker.batch_size",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}
	if envPath == "" {
		envPath = "config/"
	}
	for _, envFile := range envFiles {
		_ = godotenv.Overload(filepath.Join(envPath, envFile))
	}
}

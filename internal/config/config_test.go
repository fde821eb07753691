package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAPIConfig(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		env        map[string]string
		wantErr    bool
		validate   func(t *testing.T, cfg *APIConfig)
	}{
		{
			name: "file with defaults",
			configYAML: `
database:
  url: postgres://ledger@localhost:5432/ledger
auth:
  jwt_secret: s3cret
oracle:
  default_identity: oracle-1
`,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.Equal(t, "postgres://ledger@localhost:5432/ledger", cfg.Database.ConnString())
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "ticket-ledger", cfg.Auth.Issuer)
				assert.Equal(t, "sequential", cfg.Ledger.TicketAddressing)
				assert.False(t, cfg.Ledger.PurchasePayments)
				assert.False(t, cfg.Oracle.AllowReResolution)
				assert.Equal(t, "oracle-1", cfg.Oracle.DefaultIdentity)
				assert.Equal(t, "LEDGER_EVENTS", cfg.NATS.StreamName)
				assert.True(t, cfg.Database.RunMigrations)
			},
		},
		{
			name: "environment overrides file",
			configYAML: `
database:
  host: db
  user: ledger
  password: pw
  dbname: ledger
auth:
  jwt_secret: from-file
`,
			env: map[string]string{
				"TICKET_LEDGER_AUTH_JWT_SECRET":          "from-env",
				"TICKET_LEDGER_SERVER_PORT":              "9090",
				"TICKET_LEDGER_LEDGER_TICKET_ADDRESSING": "buyer",
				"TICKET_LEDGER_LEDGER_PURCHASE_PAYMENTS": "true",
				"TICKET_LEDGER_NATS_URL":                 "nats://localhost:4222",
			},
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "buyer", cfg.Ledger.TicketAddressing)
				assert.True(t, cfg.Ledger.PurchasePayments)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, "postgres://ledger:pw@db:5432/ledger?sslmode=disable", cfg.Database.ConnString())
			},
		},
		{
			name: "operator keys list",
			configYAML: `
database:
  url: postgres://localhost/ledger
auth:
  jwt_secret: s3cret
  operator_keys: [k1, k2]
`,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.OperatorKeys)
			},
		},
		{
			name:       "missing required fields",
			configYAML: "debug: true\n",
			wantErr:    true,
		},
		{
			name: "unknown addressing scheme",
			configYAML: `
database:
  url: postgres://localhost/ledger
auth:
  jwt_secret: s3cret
ledger:
  ticket_addressing: random
`,
			wantErr: true,
		},
		{
			name:       "invalid yaml",
			configYAML: "database: [unclosed\n",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			configFile := writeConfig(t, tt.configYAML)

			cfg, err := LoadAPIConfig(configFile, t.TempDir())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadAPIConfig_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("TICKET_LEDGER_DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("TICKET_LEDGER_AUTH_JWT_SECRET", "s3cret")

	cfg, err := LoadAPIConfig(filepath.Join(t.TempDir(), "absent.yaml"), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadAPIConfig_DotEnv(t *testing.T) {
	envDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(envDir, ".env"),
		[]byte("TICKET_LEDGER_DATABASE_URL=postgres://localhost/ledger\nTICKET_LEDGER_AUTH_JWT_SECRET=base\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(envDir, ".env.api.local"),
		[]byte("TICKET_LEDGER_AUTH_JWT_SECRET=local\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("TICKET_LEDGER_DATABASE_URL")
		os.Unsetenv("TICKET_LEDGER_AUTH_JWT_SECRET")
	})

	cfg, err := LoadAPIConfig(writeConfig(t, ""), envDir)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Auth.JWTSecret)
}

func TestLoadOracleWorkerConfig(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		wantErr    bool
		validate   func(t *testing.T, cfg *OracleWorkerConfig)
	}{
		{
			name: "defaults",
			configYAML: `
database:
  url: postgres://localhost/ledger
oracle:
  default_identity: oracle-1
`,
			validate: func(t *testing.T, cfg *OracleWorkerConfig) {
				assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Polymarket.GammaURL)
				assert.Equal(t, 10*time.Second, cfg.Polymarket.Timeout)
				assert.Equal(t, uint64(5), cfg.Polymarket.MaxRetries)
				assert.Equal(t, 4, cfg.Worker.PoolSize)
				assert.Equal(t, time.Minute, cfg.Worker.PollInterval)
				assert.Equal(t, 100, cfg.Worker.BatchSize)
			},
		},
		{
			name: "custom worker",
			configYAML: `
sentry_dsn: https://key@sentry.example/1
database:
  url: postgres://localhost/ledger
oracle:
  default_identity: oracle-1
  allow_re_resolution: true
worker:
  pool_size: 8
  poll_interval: 30s
`,
			validate: func(t *testing.T, cfg *OracleWorkerConfig) {
				assert.Equal(t, "https://key@sentry.example/1", cfg.SentryDSN)
				assert.True(t, cfg.Oracle.AllowReResolution)
				assert.Equal(t, 8, cfg.Worker.PoolSize)
				assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
			},
		},
		{
			name: "oracle identity required",
			configYAML: `
database:
  url: postgres://localhost/ledger
`,
			wantErr: true,
		},
		{
			name: "pool size must be positive",
			configYAML: `
database:
  url: postgres://localhost/ledger
oracle:
  default_identity: oracle-1
worker:
  pool_size: 0
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadOracleWorkerConfig(writeConfig(t, tt.configYAML), t.TempDir())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

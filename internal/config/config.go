// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
// The same struct serves both the API server and the worker; each process
// reads the fields it needs.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`

	// TempDir is the staging area shared between the API and the workers.
	// Relative paths resolve against the process working directory (or the
	// container mount in Docker deployments).
	TempDir string `env:"TEMP_DIR" envDefault:"files/temp"`

	MaxUploadMB int64 `env:"MAX_UPLOAD_MB" envDefault:"50"`

	// TaskTTL bounds every task, status, and result record; after expiry the
	// task is unknown to the system.
	TaskTTL time.Duration `env:"TASK_TTL" envDefault:"24h"`
	// Worker settings.
	WorkerID            string        `env:"WORKER_ID"`
	ClaimTimeout        time.Duration `env:"CLAIM_TIMEOUT" envDefault:"1s"`
	HeartbeatInterval   time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"10s"`
	HealthcheckFile     string        `env:"HEALTHCHECK_FILE" envDefault:"/app/worker_healthcheck.txt"`
	WorkerIdleThreshold time.Duration `env:"WORKER_IDLE_THRESHOLD" envDefault:"300s"`

	// Scaling controller settings (env names follow the deployment manifests).
	MinWorkers           int           `env:"MIN_WORKERS" envDefault:"2"`
	MaxWorkers           int           `env:"MAX_WORKERS" envDefault:"10"`
	WorkerReplicas       int           `env:"WORKER_REPLICAS" envDefault:"3"`
	QueueHighThreshold   int           `env:"QUEUE_HIGH_THRESHOLD" envDefault:"20"`
	QueueLowThreshold    int           `env:"QUEUE_LOW_THRESHOLD" envDefault:"5"`
	ScalingInterval      time.Duration `env:"SCALING_INTERVAL" envDefault:"30s"`
	ScalingCooldown      time.Duration `env:"SCALING_COOLDOWN" envDefault:"60s"`
	ComposeWorkerService string        `env:"COMPOSE_WORKER_SERVICE" envDefault:"worker"`

	// TikaURL specifies the base URL for the Apache Tika server used for text
	// extraction (including OCR on image-only PDFs and scans).
	TikaURL string `env:"TIKA_URL" envDefault:"http://tika:9998"`

	// ModelURL points at the inference sidecar serving the learned classifier.
	// Empty means keyword-only classification.
	ModelURL     string        `env:"MODEL_URL"`
	ModelTimeout time.Duration `env:"MODEL_TIMEOUT" envDefault:"15s"`

	// KeywordsFile optionally overrides the embedded category keyword sets.
	KeywordsFile string `env:"KEYWORDS_FILE"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"file-classifier"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// RedisAddr returns the host:port address of the backing store.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c Config) MaxUploadBytes() int64 { return c.MaxUploadMB * 1024 * 1024 }

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

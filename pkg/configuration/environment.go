package configuration

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/logging"
)

const Production = "production"

const (
	IsolationReadCommitted = "read_committed"
	IsolationSerializable  = "serializable"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files. Files missing from the working directory are looked up
// in the nearest ancestor containing go.mod.
func LoadEnv(envFiles []string) (int, error) {
	root := findModuleRoot()
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if root == "" || filepath.IsAbs(file) {
			continue
		}
		if candidate := filepath.Join(root, file); fileExists(candidate) {
			existingFiles = append(existingFiles, candidate)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"autopeca"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"attendance"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type OutboxOptions struct {
	RelayEnabled         bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	RelayTables          string        `env:"OUTBOX_RELAY_TABLES" envDefault:"public.attendance_outbox"`
	RelayPollInterval    time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL         time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts     int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`
	RelaySingleActive    bool          `env:"OUTBOX_RELAY_SINGLE_ACTIVE" envDefault:"true"`
	RelayDispatchTimeout time.Duration `env:"OUTBOX_RELAY_DISPATCH_TIMEOUT" envDefault:"30s"`

	LastErrorMaxBytes int `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled       bool          `env:"OUTBOX_CLEANER_ENABLED" envDefault:"true"`
	CleanerTables        string        `env:"OUTBOX_CLEANER_TABLES" envDefault:"public.attendance_outbox"`
	CleanerInterval      time.Duration `env:"OUTBOX_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention     time.Duration `env:"OUTBOX_CLEANER_RETENTION" envDefault:"168h"`
	CleanerDeadRetention time.Duration `env:"OUTBOX_CLEANER_DEAD_RETENTION" envDefault:"0"`
}

type AttendanceOptions struct {
	// read_committed or serializable; the partial unique index guards exclusivity either way.
	ClaimIsolation string `env:"ATTENDANCE_CLAIM_ISOLATION" envDefault:"read_committed"`
	// IANA name used for the "claimed today" boundary. Empty means server local time.
	Timezone string `env:"ATTENDANCE_TIMEZONE" envDefault:""`

	DashboardCacheEnabled bool          `env:"DASHBOARD_CACHE_ENABLED" envDefault:"false"`
	DashboardCacheTTL     time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"15s"`

	location *time.Location
}

// Location returns the resolved timezone, never nil.
func (a *AttendanceOptions) Location() *time.Location {
	if a.location == nil {
		return time.Local
	}
	return a.location
}

func (a *AttendanceOptions) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(a.ClaimIsolation))
	if mode == "" {
		mode = IsolationReadCommitted
	}
	switch mode {
	case IsolationReadCommitted, IsolationSerializable:
	default:
		return fmt.Errorf("invalid ATTENDANCE_CLAIM_ISOLATION=%q (expected read_committed|serializable)", a.ClaimIsolation)
	}
	a.ClaimIsolation = mode

	if tz := strings.TrimSpace(a.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid ATTENDANCE_TIMEZONE=%q: %w", a.Timezone, err)
		}
		a.location = loc
	}
	if a.DashboardCacheTTL < 0 {
		return fmt.Errorf("DASHBOARD_CACHE_TTL must be non-negative, got %s", a.DashboardCacheTTL)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	Outbox        OutboxOptions
	Attendance    AttendanceOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Looked up on every request; generated as a uuidv4 when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Looked up on every request; falls back to request.RemoteAddr.
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// Set by the upstream auth gateway after it authenticated the agent.
	AgentIDHeader string `env:"AGENT_ID_HEADER" envDefault:"X-Agent-ID"`
	// Comma-separated list of allowed CORS origins.
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	// Ops endpoints guard (/health, metrics). Enforced only in production.
	OpsGuardEnabled bool   `env:"OPS_GUARD_ENABLED" envDefault:"true"`
	OpsGuardCIDRs   string `env:"OPS_GUARD_CIDRS" envDefault:""`
	OpsGuardToken   string `env:"OPS_GUARD_TOKEN" envDefault:""`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Attendance.Validate(); err != nil {
		return fmt.Errorf("attendance configuration error: %w", err)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.MaxPageSize < c.PageSize {
		return fmt.Errorf("MAX_PAGE_SIZE (%d) must be >= PAGE_SIZE (%d)", c.MaxPageSize, c.PageSize)
	}
	if strings.TrimSpace(c.AgentIDHeader) == "" {
		return errors.New("AGENT_ID_HEADER must not be empty")
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}

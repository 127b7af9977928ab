// =============================================================================
// OpenMemory configuration loader
// =============================================================================
// Unified config loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("OPENMEMORY").
//	    Load()
//
// Priority: defaults -> YAML file -> environment variables. Per the
// external-interfaces contract, config values live in process memory;
// changing them requires a restart — there is no hot-reload path here.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete OpenMemory configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server" env:"SERVER"`
	Database    DatabaseConfig    `yaml:"database" env:"DATABASE"`
	HSG         HSGConfig         `yaml:"hsg" env:"HSG"`
	Enforcement EnforcementConfig `yaml:"enforcement" env:"ENFORCEMENT"`
	Auth        AuthConfig        `yaml:"auth" env:"AUTH"`
	Redis       RedisConfig       `yaml:"redis" env:"REDIS"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig controls the HTTP listener and ambient request handling.
type ServerConfig struct {
	ListenPort      int           `yaml:"listen_port" env:"LISTEN_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxPayloadBytes int64         `yaml:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSAllowAll    bool          `yaml:"cors_allow_all" env:"CORS_ALLOW_ALL"`
	DefaultUserID   string        `yaml:"default_user_id" env:"DEFAULT_USER_ID"`
	StreamEnabled   bool          `yaml:"stream_enabled" env:"STREAM_ENABLED"`
}

// DatabaseConfig selects and tunes the single embedded relational database.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"` // sqlite | postgres
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// HSGConfig parameterizes the Hierarchical Semantic Graph engine (C3/C4).
type HSGConfig struct {
	VectorDim          int                `yaml:"vector_dim" env:"VECTOR_DIM"`
	DecayIntervalMins  int                `yaml:"decay_interval_minutes" env:"DECAY_INTERVAL_MINUTES"`
	SectorLambda       map[string]float64 `yaml:"sector_lambda" env:"-"`
	ArchiveThreshold   float64            `yaml:"archive_threshold" env:"ARCHIVE_THRESHOLD"`
	MergeThreshold     float64            `yaml:"merge_threshold" env:"MERGE_THRESHOLD"`
	MinConsolidateDays int                `yaml:"min_consolidation_age_days" env:"MIN_CONSOLIDATION_AGE_DAYS"`
	ArchiveAgeDays     int                `yaml:"archive_age_days" env:"ARCHIVE_AGE_DAYS"`
	MaxActiveMemories  int                `yaml:"max_active_memories" env:"MAX_ACTIVE_MEMORIES"`
	CacheSegmentCount  int                `yaml:"cache_segment_count" env:"CACHE_SEGMENT_COUNT"`
	WaypointPruneWeak  float64            `yaml:"waypoint_prune_weak_threshold" env:"WAYPOINT_PRUNE_WEAK_THRESHOLD"`
}

// EnforcementConfig holds the enforcement settings (C11). LockTTL is not
// read: the gate's stale-lock age is the fixed staleLockAge constant
// (5 minutes) in internal/enforcement.
type EnforcementConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

// AuthConfig holds the authentication settings. Mode is checked by
// Validate but read nowhere else: the API-key middleware is active
// whenever APIKeys is non-empty, whatever the mode. JWTSecret is not read;
// there is no JWT check.
type AuthConfig struct {
	Mode      string   `yaml:"mode" env:"MODE"` // none | apikey | jwt
	APIKeys   []string `yaml:"api_keys" env:"API_KEYS"`
	JWTSecret string   `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// RedisConfig configures the optional hot-tier read-through cache.
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader is a Builder-pattern configuration loader.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "OPENMEMORY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds an extra validation pass.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration: defaults -> YAML file -> environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		errs = append(errs, "invalid listen port")
	}
	if c.HSG.VectorDim <= 0 {
		errs = append(errs, "hsg.vector_dim must be positive")
	}
	if c.HSG.ArchiveThreshold < 0 || c.HSG.ArchiveThreshold > 1 {
		errs = append(errs, "hsg.archive_threshold must be in [0,1]")
	}
	if c.HSG.MergeThreshold < 0 || c.HSG.MergeThreshold > 1 {
		errs = append(errs, "hsg.merge_threshold must be in [0,1]")
	}
	for _, sector := range []string{"semantic", "episodic", "procedural", "reflective", "emotional"} {
		if _, ok := c.HSG.SectorLambda[sector]; !ok {
			errs = append(errs, fmt.Sprintf("hsg.sector_lambda missing entry for %q", sector))
		}
	}
	switch c.Auth.Mode {
	case "none", "apikey", "jwt":
	default:
		errs = append(errs, "auth.mode must be one of: none, apikey, jwt")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

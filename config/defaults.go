// =============================================================================
// OpenMemory default configuration
// =============================================================================
// Provides sane defaults for every configuration section.
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Database:    DefaultDatabaseConfig(),
		HSG:         DefaultHSGConfig(),
		Enforcement: DefaultEnforcementConfig(),
		Auth:        DefaultAuthConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenPort:      8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxPayloadBytes: 1 << 20, // 1 MB
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		CORSAllowAll:    true,
		DefaultUserID:   "ai-agent-system",
		StreamEnabled:   false,
	}
}

// DefaultDatabaseConfig returns the default database configuration. SQLite
// is the zero-dependency default; production deployments set driver=postgres.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "openmemory.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultHSGConfig returns the default Hierarchical Semantic Graph tuning,
// including the per-sector decay rates (memories/day) named in the spec.
func DefaultHSGConfig() HSGConfig {
	return HSGConfig{
		VectorDim:         1536,
		DecayIntervalMins: 24 * 60,
		SectorLambda: map[string]float64{
			"emotional":  0.020,
			"episodic":   0.015,
			"procedural": 0.008,
			"semantic":   0.005,
			"reflective": 0.001,
		},
		ArchiveThreshold:   0.15,
		MergeThreshold:     0.85,
		MinConsolidateDays: 7,
		ArchiveAgeDays:     90,
		MaxActiveMemories:  100000,
		CacheSegmentCount:  16,
		WaypointPruneWeak:  0.1,
	}
}

// DefaultEnforcementConfig returns the default enforcement-gate tuning.
func DefaultEnforcementConfig() EnforcementConfig {
	return EnforcementConfig{
		LockTTL: 5 * time.Minute,
	}
}

// DefaultAuthConfig returns the default authentication shim configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Mode: "none",
	}
}

// DefaultRedisConfig returns the default hot-tier cache configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "openmemory",
		SampleRate:   0.1,
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	// Metrics source
	PrometheusURL      string
	SamplingInterval   time.Duration
	CollectionTimeout  time.Duration
	MetricsHistorySize int
	OfflineThreshold   int // consecutive failed ticks before status -> offline

	// Pressure detection
	DetectionInterval time.Duration
	AnomalyStrategy   string  // "statistical" is the baseline
	AnomalyWindow     int     // rolling-window size in samples
	AnomalySigma      float64 // deviation multiple flagging an anomaly
	ScorePolicy       string  // "max" (default) or "weighted"
	PredictionEnabled bool
	PredictionHorizon time.Duration
	ModerateCPU       float64
	HighCPU           float64
	CriticalCPU       float64
	ModerateMemory    float64
	HighMemory        float64
	CriticalMemory    float64
	ModerateDisk      float64
	HighDisk          float64
	CriticalDisk      float64
	ModerateNetwork   float64
	HighNetwork       float64
	CriticalNetwork   float64

	// Allocator limits
	MaxAgents       int
	MaxTotalCPU     int64 // millicores
	MaxTotalMemory  int64 // bytes
	MaxTotalDisk    int64 // bytes
	MaxTotalNetwork int64 // Mbps

	// Agent manager
	UsageHistorySize int
	EventHistorySize int
	ScaleCallTimeout time.Duration
	AlertTimeout     time.Duration

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Costing (recommendation impact estimates)
	CPUCostPerCore   float64
	MemoryCostPerGiB float64

	// Output
	LogLevel string
	Verbose  bool
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		PrometheusURL:      getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		SamplingInterval:   getEnvDuration("SAMPLING_INTERVAL", 15*time.Second),
		CollectionTimeout:  getEnvDuration("COLLECTION_TIMEOUT", 10*time.Second),
		MetricsHistorySize: getEnvInt("METRICS_HISTORY_SIZE", 1000),
		OfflineThreshold:   getEnvInt("OFFLINE_THRESHOLD", 3),

		DetectionInterval: getEnvDuration("DETECTION_INTERVAL", 15*time.Second),
		AnomalyStrategy:   getEnv("ANOMALY_STRATEGY", "statistical"),
		AnomalyWindow:     getEnvInt("ANOMALY_WINDOW", 20),
		AnomalySigma:      getEnvFloat("ANOMALY_SIGMA", 3.0),
		ScorePolicy:       getEnv("PRESSURE_SCORE_POLICY", "max"),
		PredictionEnabled: getEnvBool("PREDICTION_ENABLED", true),
		PredictionHorizon: getEnvDuration("PREDICTION_HORIZON", 5*time.Minute),
		ModerateCPU:       getEnvFloat("PRESSURE_MODERATE_CPU", 70),
		HighCPU:           getEnvFloat("PRESSURE_HIGH_CPU", 85),
		CriticalCPU:       getEnvFloat("PRESSURE_CRITICAL_CPU", 95),
		ModerateMemory:    getEnvFloat("PRESSURE_MODERATE_MEMORY", 75),
		HighMemory:        getEnvFloat("PRESSURE_HIGH_MEMORY", 85),
		CriticalMemory:    getEnvFloat("PRESSURE_CRITICAL_MEMORY", 95),
		ModerateDisk:      getEnvFloat("PRESSURE_MODERATE_DISK", 75),
		HighDisk:          getEnvFloat("PRESSURE_HIGH_DISK", 88),
		CriticalDisk:      getEnvFloat("PRESSURE_CRITICAL_DISK", 95),
		ModerateNetwork:   getEnvFloat("PRESSURE_MODERATE_NETWORK", 70),
		HighNetwork:       getEnvFloat("PRESSURE_HIGH_NETWORK", 85),
		CriticalNetwork:   getEnvFloat("PRESSURE_CRITICAL_NETWORK", 95),

		MaxAgents:       getEnvInt("MAX_AGENTS", 100),
		MaxTotalCPU:     getEnvInt64("MAX_TOTAL_CPU_MILLICORES", 64000),
		MaxTotalMemory:  getEnvInt64("MAX_TOTAL_MEMORY_BYTES", 256*1024*1024*1024),
		MaxTotalDisk:    getEnvInt64("MAX_TOTAL_DISK_BYTES", 2*1024*1024*1024*1024),
		MaxTotalNetwork: getEnvInt64("MAX_TOTAL_NETWORK_MBPS", 10000),

		UsageHistorySize: getEnvInt("USAGE_HISTORY_SIZE", 1000),
		EventHistorySize: getEnvInt("EVENT_HISTORY_SIZE", 100),
		ScaleCallTimeout: getEnvDuration("SCALE_CALL_TIMEOUT", 30*time.Second),
		AlertTimeout:     getEnvDuration("ALERT_TIMEOUT", 5*time.Second),

		StorageEnabled: getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:    getEnv("DATABASE_URL", "host=localhost port=5432 user=armuser password=devpassword dbname=agentresources sslmode=disable"),

		CPUCostPerCore:   getEnvFloat("CPU_COST_PER_CORE", 23.0),
		MemoryCostPerGiB: getEnvFloat("MEMORY_COST_PER_GIB", 3.0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		Verbose:  getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("sampling interval must be positive")
	}
	if c.DetectionInterval <= 0 {
		return fmt.Errorf("detection interval must be positive")
	}
	if c.OfflineThreshold < 1 {
		return fmt.Errorf("offline threshold must be at least 1")
	}
	if c.AnomalyWindow < 2 {
		return fmt.Errorf("anomaly window must be at least 2 samples")
	}
	if c.AnomalySigma <= 0 {
		return fmt.Errorf("anomaly sigma must be positive")
	}
	if c.ScorePolicy != "max" && c.ScorePolicy != "weighted" {
		return fmt.Errorf("unknown pressure score policy: %s", c.ScorePolicy)
	}
	if err := validateThresholdOrder("cpu", c.ModerateCPU, c.HighCPU, c.CriticalCPU); err != nil {
		return err
	}
	if err := validateThresholdOrder("memory", c.ModerateMemory, c.HighMemory, c.CriticalMemory); err != nil {
		return err
	}
	if err := validateThresholdOrder("disk", c.ModerateDisk, c.HighDisk, c.CriticalDisk); err != nil {
		return err
	}
	if err := validateThresholdOrder("network", c.ModerateNetwork, c.HighNetwork, c.CriticalNetwork); err != nil {
		return err
	}
	if c.MaxAgents < 1 {
		return fmt.Errorf("max agents must be at least 1")
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	return nil
}

func validateThresholdOrder(resource string, moderate, high, critical float64) error {
	if moderate <= 0 || moderate >= high || high >= critical {
		return fmt.Errorf("%s thresholds must satisfy 0 < moderate < high < critical", resource)
	}
	return nil
}

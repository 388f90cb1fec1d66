// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults mirror the values the service has always run with: a 5 minute
// poll cycle, 3 strikes before a camera is parked, 180s fetch timeout.
const (
	DefaultPollInterval  = 5 * time.Minute
	DefaultFetchTimeout  = 180 * time.Second
	DefaultMaxFailures   = 3
	DefaultInitialJitter = 5 * time.Minute
	DefaultShutdownGrace = 10 * time.Second
	DefaultFallbackImage = "unavailable.jpg"
)

// Config is the full process configuration, read once from the environment
// at startup. Anything missing that has no sane default is a startup error.
type Config struct {
	// Storage
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	// Registry (Knack)
	KnackAppID     string
	KnackAPIKey    string
	KnackContainer string

	// Camera auth (shared across cameras that need it)
	CameraUsername string
	CameraPassword string

	// Polling policy
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	MaxFailures   int
	InitialJitter time.Duration
	ShutdownGrace time.Duration

	// Open policy knobs: whether upload failures count toward the failure
	// threshold, and whether an already-stored fallback is re-uploaded.
	CountUploadFailures  bool
	SkipRepeatedFallback bool

	FallbackImagePath string

	// Status publishing (optional; disabled when MQTT_HOST is empty)
	MQTTHost       string
	MQTTPort       int
	MQTTUsername   string
	MQTTPassword   string
	MQTTBaseTopic  string
	StatusInterval time.Duration

	Verbose bool
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		StorageEndpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
		StorageAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		StorageBucket:    os.Getenv("MINIO_BUCKET"),
		StorageUseSSL:    getenvBool("MINIO_USE_SSL", false),

		KnackAppID:     os.Getenv("KNACK_APP_ID"),
		KnackAPIKey:    os.Getenv("KNACK_API_KEY"),
		KnackContainer: os.Getenv("KNACK_CONTAINER"),

		CameraUsername: os.Getenv("CAMERA_USERNAME"),
		CameraPassword: os.Getenv("CAMERA_PASSWORD"),

		PollInterval:  getenvSeconds("POLL_INTERVAL_SECONDS", DefaultPollInterval),
		FetchTimeout:  getenvSeconds("FETCH_TIMEOUT_SECONDS", DefaultFetchTimeout),
		MaxFailures:   getenvInt("MAX_FAILURES", DefaultMaxFailures),
		InitialJitter: getenvSeconds("INITIAL_JITTER_SECONDS", DefaultInitialJitter),
		ShutdownGrace: getenvSeconds("SHUTDOWN_GRACE_SECONDS", DefaultShutdownGrace),

		CountUploadFailures:  getenvBool("COUNT_UPLOAD_FAILURES", false),
		SkipRepeatedFallback: getenvBool("SKIP_REPEATED_FALLBACK", false),

		FallbackImagePath: getenv("FALLBACK_IMAGE", DefaultFallbackImage),

		MQTTHost:       os.Getenv("MQTT_HOST"),
		MQTTPort:       getenvInt("MQTT_PORT", 1883),
		MQTTUsername:   os.Getenv("MQTT_USERNAME"),
		MQTTPassword:   os.Getenv("MQTT_PASSWORD"),
		MQTTBaseTopic:  getenv("MQTT_BASE_TOPIC", "cctv/cameras"),
		StatusInterval: getenvSeconds("STATUS_INTERVAL_SECONDS", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the required settings. Errors here abort startup.
func (c *Config) Validate() error {
	var missing []string
	if c.StorageAccessKey == "" {
		missing = append(missing, "MINIO_ACCESS_KEY")
	}
	if c.StorageSecretKey == "" {
		missing = append(missing, "MINIO_SECRET_KEY")
	}
	if c.StorageBucket == "" {
		missing = append(missing, "MINIO_BUCKET")
	}
	if c.KnackAppID == "" {
		missing = append(missing, "KNACK_APP_ID")
	}
	if c.KnackAPIKey == "" {
		missing = append(missing, "KNACK_API_KEY")
	}
	if c.KnackContainer == "" {
		missing = append(missing, "KNACK_CONTAINER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("max failures must be positive, got %d", c.MaxFailures)
	}
	if c.InitialJitter < 0 {
		return fmt.Errorf("initial jitter must not be negative, got %s", c.InitialJitter)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	sec, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(sec) * time.Second
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

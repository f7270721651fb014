// Package config - Service configuration from a TOML file, .env and the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/nvr-ai/braintumor/models/model"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "configs/config.toml"

// MainConfig holds the listener settings.
type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	// GinMode is passed to gin.SetMode (debug, release, test).
	GinMode string `toml:"ginMode"`
	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `toml:"shutdownTimeoutSeconds"`
}

// ModelConfig describes the model artifact and how to run it.
type ModelConfig struct {
	// Backend is one of onnx, mlp, fake.
	Backend string `toml:"backend"`
	// Path is the model artifact on disk.
	Path string `toml:"path"`
	// MetadataPath is an optional JSON sidecar with classes and shapes.
	MetadataPath string `toml:"metadataPath"`
	// Version is reported by /health when the metadata does not carry one.
	Version string `toml:"version"`
	// Device is one of auto, cpu, cuda, coreml, openvino.
	Device string `toml:"device"`
	// ImageSize is the square input resolution.
	ImageSize int `toml:"imageSize"`
	// LibraryPath points at the onnxruntime shared library.
	LibraryPath string `toml:"libraryPath"`
	// IntraOpThreads and InterOpThreads tune the ONNX runtime. Zero lets it decide.
	IntraOpThreads int `toml:"intraOpThreads"`
	InterOpThreads int `toml:"interOpThreads"`
}

// UploadConfig bounds what /predict accepts.
type UploadConfig struct {
	MaxUploadMB  int `toml:"maxUploadMB"`
	MaxBatchSize int `toml:"maxBatchSize"`
	// MaxImagePixels bounds width*height read from an image header before decoding.
	MaxImagePixels int64 `toml:"maxImagePixels"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	LogPath    string `toml:"logPath"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
	Compress   bool   `toml:"compress"`
}

// MonitoringConfig toggles metrics, the stats window and drift checks.
type MonitoringConfig struct {
	MetricsEnabled bool `toml:"metricsEnabled"`
	// HistorySize is the rolling window used by /stats.
	HistorySize int `toml:"historySize"`
	// DriftThreshold is the maximum tolerated per-class share difference.
	DriftThreshold float64 `toml:"driftThreshold"`
	// Baseline is the expected class distribution, as counts or shares.
	Baseline map[string]float64 `toml:"baseline"`
}

// PredictionLogConfig is the append-only JSONL audit file.
type PredictionLogConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"maxSizeMB"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAgeDays int    `toml:"maxAgeDays"`
}

// KafkaConfig publishes prediction events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers  []string `toml:"brokers"`
	ClientID string   `toml:"clientID"`
	Topic    string   `toml:"topic"`
}

// MysqlConfig stores prediction records when DSN is non-empty.
type MysqlConfig struct {
	DSN string `toml:"dsn"`
}

// Config is the full service configuration.
type Config struct {
	MainConfig          `toml:"mainConfig"`
	ModelConfig         `toml:"modelConfig"`
	UploadConfig        `toml:"uploadConfig"`
	LogConfig           `toml:"logConfig"`
	MonitoringConfig    `toml:"monitoringConfig"`
	PredictionLogConfig `toml:"predictionLogConfig"`
	KafkaConfig         `toml:"kafkaConfig"`
	MysqlConfig         `toml:"mysqlConfig"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		MainConfig: MainConfig{
			AppName:                "Brain Tumor Classification API",
			Host:                   "0.0.0.0",
			Port:                   8000,
			GinMode:                "release",
			ShutdownTimeoutSeconds: 10,
		},
		ModelConfig: ModelConfig{
			Backend:   "onnx",
			Path:      "models/best_model.onnx",
			Version:   "1.0.0",
			Device:    "auto",
			ImageSize: 224,
		},
		UploadConfig: UploadConfig{
			MaxUploadMB:    10,
			MaxBatchSize:   10,
			MaxImagePixels: 50_000_000,
		},
		LogConfig: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		MonitoringConfig: MonitoringConfig{
			MetricsEnabled: true,
			HistorySize:    1000,
			DriftThreshold: 0.15,
		},
		PredictionLogConfig: PredictionLogConfig{
			Enabled:    true,
			Path:       "logs/predictions.jsonl",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
		KafkaConfig: KafkaConfig{
			ClientID: "braintumor",
			Topic:    "predictions",
		},
	}
}

// Load reads the TOML file at path over the defaults, then a .env file if one exists,
// then environment overrides. A missing TOML file is not an error.
//
// Arguments:
//   - path: The TOML file. Empty means CONFIG_PATH or DefaultPath.
//
// Returns:
//   - *Config: The resolved configuration.
//   - error: An error if the file is malformed or validation fails.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.Wrap(err, "loading .env")
		}
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", path)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num64 := func(key string, dst *int64) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := cast.ToInt64E(v); err == nil {
				*dst = n
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := cast.ToIntE(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			if b, err := cast.ToBoolE(v); err == nil {
				*dst = b
			}
		}
	}

	str("HOST", &c.Host)
	num("PORT", &c.Port)
	str("GIN_MODE", &c.GinMode)

	str("MODEL_BACKEND", &c.Backend)
	str("MODEL_PATH", &c.ModelConfig.Path)
	str("MODEL_METADATA_PATH", &c.MetadataPath)
	str("MODEL_VERSION", &c.Version)
	str("DEVICE", &c.Device)
	num("IMAGE_SIZE", &c.ImageSize)
	str("ORT_LIBRARY_PATH", &c.LibraryPath)

	num("MAX_UPLOAD_MB", &c.MaxUploadMB)
	num("MAX_BATCH_SIZE", &c.MaxBatchSize)
	num64("MAX_IMAGE_PIXELS", &c.MaxImagePixels)

	str("LOG_LEVEL", &c.Level)
	str("LOG_FORMAT", &c.Format)
	str("LOG_PATH", &c.LogPath)

	flag("METRICS_ENABLED", &c.MetricsEnabled)
	flag("PREDICTION_LOG_ENABLED", &c.PredictionLogConfig.Enabled)
	str("PREDICTION_LOG_PATH", &c.PredictionLogConfig.Path)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Topic)
	str("MYSQL_DSN", &c.DSN)
}

// Validate performs existence and range checks only.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.ModelConfig.Path) == "" && c.Backend != "fake" {
		return errors.New("model path is required")
	}
	switch c.Backend {
	case "onnx", "mlp", "fake":
	default:
		return fmt.Errorf("unknown model backend %q", c.Backend)
	}
	switch c.Device {
	case "auto", "cpu", "cuda", "coreml", "openvino":
	default:
		return fmt.Errorf("unknown device %q", c.Device)
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("image size must be positive, got %d", c.ImageSize)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadMB)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max image pixels must be positive, got %d", c.MaxImagePixels)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ModelArgs returns the arguments the model loader needs.
func (c *Config) ModelArgs() model.NewModelArgs {
	return model.NewModelArgs{
		Name:           model.Name(c.Backend),
		Path:           c.ModelConfig.Path,
		MetadataPath:   c.MetadataPath,
		Version:        c.Version,
		Device:         c.Device,
		ImageSize:      c.ImageSize,
		MaxPixels:      c.MaxImagePixels,
		LibraryPath:    c.LibraryPath,
		IntraOpThreads: c.IntraOpThreads,
		InterOpThreads: c.InterOpThreads,
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

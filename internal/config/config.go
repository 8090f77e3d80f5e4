// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Survey        SurveyConfig
	Store         StoreConfig
	Recording     RecordingConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig

	// invalid holds variables that were set but could not be parsed.
	invalid []error
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal     string
	Env           string
	HTTPPort      string
	GRPCPort      string
	GRPCEnabled   bool
	PublicBaseURL string // used to build onFinish callbacks; empty means derive from request host
}

// SurveyConfig holds call-flow settings.
type SurveyConfig struct {
	QuestionsFile string
	StrictPayload bool
}

// StoreConfig selects and configures the participant store backend.
type StoreConfig struct {
	Driver     string // mongo, sqlite, memory
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// RecordingConfig holds the telephony platform's recording API settings.
type RecordingConfig struct {
	APIBase string
	APIKey  string
	Timeout time.Duration
}

// KafkaConfig holds survey event publishing settings.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicAnswers    string
	TopicCompletion string
	Principal       string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Error reports a configuration problem that prevents the service from starting.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Load reads configuration from the environment. In dev mode a .env file
// in the working directory is loaded first; existing variables win.
func Load() *Config {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-survey")

	return &Config{
		Service: ServiceConfig{
			Principal:     principal,
			Env:           envOrDefault("ENV", "prod"),
			HTTPPort:      envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:      envOrDefault("GRPC_PORT", "50051"),
			GRPCEnabled:   envOrDefaultBool("GRPC_ENABLED", false),
			PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		},
		Survey: SurveyConfig{
			QuestionsFile: envOrDefault("QUESTIONS_FILE", "questions.json"),
			StrictPayload: envOrDefaultBool("CALLFLOW_STRICT_PAYLOAD", true),
		},
		Store: StoreConfig{
			Driver:     envOrDefault("STORE_DRIVER", "mongo"),
			URI:        os.Getenv("STORE_URI"),
			Database:   envOrDefault("STORE_DATABASE", "myproject"),
			Collection: envOrDefault("STORE_COLLECTION", "survey_participants"),
			Timeout:    envOrDefaultDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Recording: RecordingConfig{
			APIBase: strings.TrimRight(envOrDefault("RECORDING_API_BASE", "https://voice.messagebird.com"), "/"),
			APIKey:  os.Getenv("MESSAGEBIRD_API_KEY"),
			Timeout: envOrDefaultDuration("RECORDING_TIMEOUT", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         splitList(os.Getenv("KAFKA_BROKERS")),
			TopicAnswers:    envOrDefault("KAFKA_TOPIC_ANSWERS", "survey.answer.recorded"),
			TopicCompletion: envOrDefault("KAFKA_TOPIC_COMPLETION", "survey.completed"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		invalid: unparsable(),
	}
}

var (
	boolKeys     = []string{"GRPC_ENABLED", "CALLFLOW_STRICT_PAYLOAD", "KAFKA_ENABLED"}
	durationKeys = []string{"STORE_TIMEOUT", "RECORDING_TIMEOUT"}
)

// unparsable reports typed variables whose value would otherwise silently
// fall back to the default.
func unparsable() []error {
	var errs []error
	for _, key := range boolKeys {
		if v := os.Getenv(key); v != "" {
			if _, err := strconv.ParseBool(v); err != nil {
				errs = append(errs, &Error{Key: key, Reason: fmt.Sprintf("invalid boolean %q", v)})
			}
		}
	}
	for _, key := range durationKeys {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, &Error{Key: key, Reason: fmt.Sprintf("invalid duration %q", v)})
			} else if d <= 0 {
				errs = append(errs, &Error{Key: key, Reason: "must be positive"})
			}
		}
	}
	return errs
}

// Validate reports every missing, unparsable or inconsistent setting that
// would leave the service running with an empty credential, no backing
// store or a value other than the one configured.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.invalid...)

	if c.Recording.APIKey == "" {
		errs = append(errs, &Error{Key: "MESSAGEBIRD_API_KEY", Reason: "must be set"})
	}
	if c.Survey.QuestionsFile == "" {
		errs = append(errs, &Error{Key: "QUESTIONS_FILE", Reason: "must be set"})
	}

	switch c.Store.Driver {
	case "mongo", "sqlite":
		if c.Store.URI == "" {
			errs = append(errs, &Error{Key: "STORE_URI", Reason: "must be set for driver " + c.Store.Driver})
		}
	case "memory":
	default:
		errs = append(errs, &Error{Key: "STORE_DRIVER", Reason: fmt.Sprintf("unknown driver %q", c.Store.Driver)})
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, &Error{Key: "KAFKA_BROKERS", Reason: "must be set when KAFKA_ENABLED is true"})
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

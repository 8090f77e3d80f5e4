package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"voice-survey-service/internal/config"
	"voice-survey-service/internal/events"
	"voice-survey-service/internal/observability/logging"
	"voice-survey-service/internal/observability/metrics"
	"voice-survey-service/internal/schema"
	"voice-survey-service/internal/service/flow"
	"voice-survey-service/internal/service/questions"
	"voice-survey-service/internal/service/recording"
	"voice-survey-service/internal/store"
	"voice-survey-service/internal/store/memory"
	"voice-survey-service/internal/store/mongo"
	"voice-survey-service/internal/store/sqlite"
)

// Application holds process-wide state for the service. Everything is
// built once in Start and handed to the HTTP layer explicitly.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Store      store.Store
	Questions  *questions.Bank
	Engine     *flow.Engine
	Publisher  *events.Publisher
	Recordings *recording.Client
	Validator  *schema.Validator
	Metrics    *metrics.Metrics

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Voice survey service application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Service:    "voice-survey-service",
	})
	a.Logger = logging.WithComponent("application")

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// Start validates configuration, loads the question bank and opens the
// store. Any error here means the service must not serve traffic.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	if err := a.Cfg.Validate(); err != nil {
		return err
	}

	bank, err := questions.Load(a.Cfg.Survey.QuestionsFile)
	if err != nil {
		return &config.Error{Key: "QUESTIONS_FILE", Reason: err.Error()}
	}
	a.Questions = bank

	storeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	st, err := openStore(storeCtx, a.Cfg.Store)
	if err != nil {
		return err
	}
	a.Store = st

	a.Publisher = events.New(&events.Config{
		Enabled:         a.Cfg.Kafka.Enabled,
		Brokers:         a.Cfg.Kafka.Brokers,
		TopicAnswers:    a.Cfg.Kafka.TopicAnswers,
		TopicCompletion: a.Cfg.Kafka.TopicCompletion,
		Principal:       a.Cfg.Kafka.Principal,
	})
	a.Recordings = recording.New(recording.Config{
		APIBase: a.Cfg.Recording.APIBase,
		APIKey:  a.Cfg.Recording.APIKey,
		Timeout: a.Cfg.Recording.Timeout,
	})
	a.Validator = schema.New()
	a.Engine = flow.NewEngine(a.Store, a.Questions, a.Publisher, flow.Options{
		StrictPayload: a.Cfg.Survey.StrictPayload,
		Metrics:       a.Metrics,
	})

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Int("questions", bank.Count()).
		Str("storeDriver", a.Cfg.Store.Driver).
		Bool("strictPayload", a.Cfg.Survey.StrictPayload).
		Msg("Voice survey service starting")

	return nil
}

// Ready reports whether Start completed and Shutdown has not begun.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().Msg("Voice survey service shutting down")

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Failed to close publisher")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil {
			shutdownLogger.Error().Err(err).Msg("Failed to close store")
		}
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		st, err := sqlite.New(ctx, cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case "mongo":
		st, err := mongo.New(ctx, mongo.Config{
			URI:        cfg.URI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return st, nil
	default:
		return nil, &config.Error{Key: "STORE_DRIVER", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
	}
}

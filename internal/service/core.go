package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/common/database"
	mqttcommon "github.com/meiriv/kids-sports-safety-app/common/mqtt"
	"github.com/meiriv/kids-sports-safety-app/common/redis"
	"github.com/meiriv/kids-sports-safety-app/internal/config"
	"github.com/meiriv/kids-sports-safety-app/internal/consumer"
	"github.com/meiriv/kids-sports-safety-app/internal/emergency"
	"github.com/meiriv/kids-sports-safety-app/internal/events"
	"github.com/meiriv/kids-sports-safety-app/internal/gamification"
	httpapi "github.com/meiriv/kids-sports-safety-app/internal/http"
	"github.com/meiriv/kids-sports-safety-app/internal/i18n"
	"github.com/meiriv/kids-sports-safety-app/internal/leaderboard"
	"github.com/meiriv/kids-sports-safety-app/internal/metrics"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
	"github.com/meiriv/kids-sports-safety-app/internal/notifier"
	"github.com/meiriv/kids-sports-safety-app/internal/repository"
	"github.com/meiriv/kids-sports-safety-app/internal/store"
)

const (
	vitalsMaxAge    = 30 * time.Second
	jobTimeout      = 5 * time.Second
	jobQueueSize    = 256
	shutdownTimeout = 5 * time.Second
	connectTimeout  = 5 * time.Second
)

// Backends are the external connections of the service. Any of them may be
// nil, in which case the components that need it are not created.
type Backends struct {
	DB    *sql.DB
	Redis *redis.Client
	MQTT  *mqttcommon.Client
}

// CoreService owns one EmergencySystem and one GamificationLedger and the
// infrastructure around them.
type CoreService struct {
	config   *config.Config
	backends Backends
	logger   *zap.Logger

	system     *emergency.System
	ledger     *gamification.Ledger
	translator *i18n.Translator
	metrics    *metrics.Metrics
	vitals     *consumer.Vitals
	tracking   *consumer.Tracking

	alertRepo   *repository.AlertRepository
	sessionRepo *repository.SessionRepository
	publisher   *events.Publisher
	progress    *store.ProgressStore
	contacts    *store.ContactStore
	notifier    *notifier.WebhookNotifier
	consumer    *consumer.MQTTConsumer
	refresher   *leaderboard.Refresher
	server      *http.Server
	jobs        chan job
	jobsMu      sync.RWMutex
	jobsClosed  bool
	stopping    bool
	workerDone  chan struct{}
	notifyWG    sync.WaitGroup
	stopOnce    sync.Once

	// user ids whose stored progress and contacts are in memory
	loadMu       sync.Mutex
	progressUser string
	contactsUser string
}

// NewCoreService connects to the configured backends and builds the
// service. A backend that cannot be reached is logged and left out.
func NewCoreService(cfg *config.Config, logger *zap.Logger) (*CoreService, error) {
	var b Backends

	if cfg.DBEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		cancel()
		if err != nil {
			logger.Warn("Database unavailable, history will not be stored", zap.Error(err))
		} else {
			b.DB = db
		}
	}

	if cfg.RedisEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		client, err := redis.Connect(ctx, &cfg.Redis)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, progress and events will not be stored", zap.Error(err))
		} else {
			b.Redis = client
		}
	}

	if cfg.MQTTEnabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, device messages will not be received", zap.Error(err))
		} else {
			b.MQTT = client
		}
	}

	s, err := New(cfg, b, logger)
	if err != nil {
		closeBackends(b, logger)
		return nil, err
	}
	return s, nil
}

// New builds the service on already connected backends.
func New(cfg *config.Config, b Backends, logger *zap.Logger) (*CoreService, error) {
	translator, err := i18n.NewTranslator(cfg.DefaultLanguage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}

	s := &CoreService{
		config:     cfg,
		backends:   b,
		logger:     logger,
		translator: translator,
		metrics:    metrics.New(),
		vitals:     consumer.NewVitals(vitalsMaxAge),
		tracking:   &consumer.Tracking{},
		jobs:       make(chan job, jobQueueSize),
		workerDone: make(chan struct{}),
	}

	s.ledger = gamification.NewLedger(translator.Formatter(cfg.DefaultLanguage), logger)

	var alarm emergency.AlarmPlayer
	if b.MQTT != nil && cfg.Emergency.SirenTopic != "" {
		alarm = emergency.NewMQTTAlarm(b.MQTT, cfg.Emergency.SirenTopic, cfg.MQTT.QoS, logger)
	}
	s.system = emergency.NewSystem(emergency.Options{
		CountdownSeconds: cfg.Emergency.CountdownSeconds,
		MonitorInterval:  cfg.Emergency.MonitorInterval,
		UserID:           s.currentUserID,
		HeartRate:        s.vitals.HeartRate,
	}, nil, alarm, logger)

	if b.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := repository.EnsureSchema(ctx, b.DB)
		cancel()
		if err != nil {
			return nil, err
		}
		s.alertRepo = repository.NewAlertRepository(b.DB, logger)
		s.sessionRepo = repository.NewSessionRepository(b.DB, logger)
	}

	if b.Redis != nil {
		kv := store.NewRedisKV(b.Redis)
		s.publisher = events.NewPublisher(b.Redis, logger)
		s.progress = store.NewProgressStore(kv)
		s.contacts = store.NewContactStore(kv)
	}

	if cfg.Notifier.WebhookURL != "" {
		s.notifier = notifier.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout, translator, cfg.DefaultLanguage, logger)
	}

	if b.MQTT != nil {
		s.consumer = consumer.NewMQTTConsumer(b.MQTT, cfg.User.ID, cfg.MQTT.QoS, s.system, s.vitals, s.tracking, logger)
	}

	var source leaderboard.Source = leaderboard.MockSource{}
	if cfg.Leaderboard.BaseURL != "" {
		source = leaderboard.NewClient(cfg.Leaderboard.BaseURL, cfg.Leaderboard.Timeout, logger)
	}
	s.refresher = leaderboard.NewRefresher(source, s.ledger, s.ledger.CurrentUser, logger)

	router := httpapi.NewRouter(s.metrics, logger)
	router.RegisterHealthRoutes(s.metrics.Handler())
	router.RegisterEmergencyRoutes(httpapi.NewEmergencyHandler(s.system, s, logger))
	router.RegisterGamificationRoutes(httpapi.NewGamificationHandler(s.ledger, s, logger))
	router.RegisterHistoryRoutes(httpapi.NewHistoryHandler(s, logger))
	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.system.Subscribe(s.onEmergencyEvent)
	s.ledger.Subscribe(s.onLedgerEvent)
	go s.runJobs()

	return s, nil
}

// System returns the emergency system.
func (s *CoreService) System() *emergency.System { return s.system }

// Ledger returns the gamification ledger.
func (s *CoreService) Ledger() *gamification.Ledger { return s.ledger }

// Handler returns the HTTP API handler.
func (s *CoreService) Handler() http.Handler { return s.server.Handler }

// Start restores the configured user, starts every background component
// and serves HTTP until ctx is done or the server fails.
func (s *CoreService) Start(ctx context.Context) error {
	s.logger.Info("Starting kids safety core",
		zap.String("http_addr", s.config.HTTP.Addr),
		zap.Bool("db", s.backends.DB != nil),
		zap.Bool("redis", s.backends.Redis != nil),
		zap.Bool("mqtt", s.backends.MQTT != nil),
	)

	if s.config.User.ID != "" {
		user := &models.User{ID: s.config.User.ID, DisplayName: s.config.User.DisplayName}
		if err := s.SetUser(ctx, user); err != nil {
			s.logger.Warn("Failed to restore user state", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	if s.consumer != nil {
		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT consumer: %w", err)
		}
	}
	s.system.StartMonitor(s.tracking.Active)
	if err := s.refresher.Start(s.config.Leaderboard.Refresh); err != nil {
		return fmt.Errorf("failed to start leaderboard refresher: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop shuts everything down. It is safe to call more than once.
func (s *CoreService) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *CoreService) stop() {
	s.logger.Info("Stopping kids safety core")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	s.refresher.Stop()
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.system.StopMonitor()
	s.system.Dispose()

	s.jobsMu.Lock()
	s.stopping = true
	s.jobsMu.Unlock()
	s.notifyWG.Wait()
	s.closeJobs()
	<-s.workerDone

	closeBackends(s.backends, s.logger)
}

func (s *CoreService) currentUserID() string {
	if u := s.ledger.CurrentUser(); u != nil && u.ID != "" {
		return u.ID
	}
	return emergency.UnknownUser
}

func closeBackends(b Backends, logger *zap.Logger) {
	if b.MQTT != nil {
		b.MQTT.Disconnect()
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	if err := database.Close(b.DB); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}
}

package container

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"zapfilter/internal/adapters/metrics"
	"zapfilter/internal/adapters/server/router"
	"zapfilter/internal/adapters/waclient"
	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/mention"
	"zapfilter/internal/pipeline"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/platform/config"
	"zapfilter/platform/database"
	"zapfilter/platform/logger"
)

// Container wires the stores, the delivery stack and the event
// pipeline together and owns their lifecycle.
type Container struct {
	config  *config.Config
	logger  *logger.Logger
	version string

	// Durable stores
	configStore *store.Config
	stats       *store.Stats
	messages    *store.Messages
	media       *store.Media

	// Delivery and pipeline
	metrics        *metrics.Collector
	alerts         *webhook.Alerts
	dispatcher     *webhook.Dispatcher
	mentions       *mention.Detector
	connection     *pipeline.Connection
	messageHandler *pipeline.MessageHandler
	router         *pipeline.Router

	// Optional client adapter; nil unless WHATSAPP_ENABLED
	database *database.Database
	client   *waclient.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config carries the container inputs.
type Config struct {
	AppConfig *config.Config
	Logger    *logger.Logger
	Version   string
}

// New builds the full dependency graph. Store files are loaded here;
// a corrupt file is fatal, a missing one starts the store empty.
func New(cfg *Config) (*Container, error) {
	container := &Container{
		config:  cfg.AppConfig,
		logger:  cfg.Logger,
		version: cfg.Version,
	}

	if err := container.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	cfg.Logger.Info("Dependency injection container initialized successfully")
	return container, nil
}

// initialize builds every component in dependency order.
func (c *Container) initialize() error {
	c.logger.Debug("Initializing container...")

	cfg := c.config

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// 1. Metrics collector
	c.metrics = metrics.NewCollector()

	// 2. Durable stores
	c.configStore = store.NewConfig(filepath.Join(cfg.DataDir, "contacts.json"), cfg.WebhookURL, c.logger)
	c.stats = store.NewStats(filepath.Join(cfg.DataDir, "stats.json"), cfg.RecentEventsLimit, c.metrics, c.logger)
	c.messages = store.NewMessages(filepath.Join(cfg.DataDir, "messages.json"), cfg.MessagesPerSource, cfg.MessagesTotalLimit, c.logger)
	c.media = store.NewMedia(filepath.Join(cfg.DataDir, "media"), cfg.MediaMaxFiles, cfg.MediaMaxBytes, c.logger)

	if err := c.configStore.Load(); err != nil {
		return fmt.Errorf("failed to load config store: %w", err)
	}
	if err := c.stats.Load(); err != nil {
		return fmt.Errorf("failed to load stats store: %w", err)
	}
	if err := c.messages.Load(); err != nil {
		return fmt.Errorf("failed to load message store: %w", err)
	}
	if err := c.media.Load(); err != nil {
		return fmt.Errorf("failed to load media store: %w", err)
	}

	// 3. Outbound delivery
	c.alerts = webhook.NewAlerts(cfg.AlertWebhookURL, cfg.SlackWebhookURL, cfg.InstanceName, c.stats, c.logger)
	c.dispatcher = webhook.NewDispatcher(c.configStore, cfg.InstanceName, cfg.SecondaryWebhookURL, c.alerts, c.metrics, c.logger)

	// 4. Pipeline state
	c.mentions = mention.NewDetector(cfg.MentionKeywords)
	c.connection = pipeline.NewConnection(c.stats, c.alerts, c.metrics, c.logger)

	// 5. Optional client adapter
	if cfg.WhatsAppEnabled {
		db, err := database.Open(cfg.SessionDBPath, c.logger)
		if err != nil {
			return fmt.Errorf("failed to open session database: %w", err)
		}
		c.database = db

		client, err := waclient.New(db, c.media, c.messages, cfg.WhatsAppLogLevel, c.logger)
		if err != nil {
			return fmt.Errorf("failed to create client adapter: %w", err)
		}
		c.client = client
	}

	// The interface value must stay nil when the client is disabled.
	var resolver pipeline.LIDResolver
	if c.client != nil {
		resolver = c.client.Resolver()
	}

	// 6. Message handling
	c.messageHandler = pipeline.NewMessageHandler(
		c.configStore,
		c.stats,
		c.messages,
		c.dispatcher,
		c.mentions,
		c.connection,
		resolver,
		pipeline.MessageOptions{
			MentionsEnabled:   cfg.MentionsEnabled,
			MentionWebhookURL: cfg.MentionWebhookURL,
			MentionToken:      cfg.MentionWebhookToken,
			MentionsOnly:      cfg.MentionsOnly,
			ForwardOutgoing:   cfg.ForwardOutgoing,
			ForwardUpdates:    cfg.ForwardMessageUpdates,
			LogPresence:       cfg.LogPresence,
		},
		c.logger,
	)

	// 7. Event router
	c.router = pipeline.NewRouter(c.stats, c.logger)
	c.router.Register(envelope.MessagesUpsert, c.messageHandler.HandleUpsert)
	c.router.Register(envelope.SendMessage, c.messageHandler.HandleSend)
	c.router.Register(envelope.MessagesUpdate, c.messageHandler.HandleUpdate)
	c.router.Register(envelope.PresenceUpdate, c.messageHandler.HandlePresence)
	c.router.Register(envelope.ConnectionUpdate, c.connection.HandleUpdate)
	c.router.Register(envelope.QRCodeUpdated, c.connection.HandleQR)
	c.router.Register(envelope.LogoutInstance, c.connection.HandleLogout)

	c.logger.Debug("Container initialized successfully")
	return nil
}

// ===== LIFECYCLE METHODS =====

// Start launches the background loops and, when enabled, connects the
// client adapter.
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("Starting container components...")

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.stats.Run(runCtx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.messages.Run(runCtx)
	}()

	if c.client != nil {
		if err := c.client.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to start client adapter: %w", err)
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.router.Run(runCtx, c.client.Events())
		}()
	}

	c.logger.Info("Container components started successfully")
	return nil
}

// Stop winds the components down and flushes every store. Flush
// failures are logged, not returned; shutdown always completes.
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("Stopping container components...")

	if c.cancel != nil {
		c.cancel()
	}

	if c.client != nil {
		c.client.Stop()
	}

	// Loops must be done before the final flush so no autosave races it.
	c.wg.Wait()

	if err := c.configStore.Save(); err != nil {
		c.logger.ErrorWithFields("Failed to save config store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := c.stats.Save(); err != nil {
		c.logger.ErrorWithFields("Failed to save stats store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := c.messages.Flush(); err != nil {
		c.logger.ErrorWithFields("Failed to flush message store", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.ErrorWithFields("Failed to close session database", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	c.logger.Info("Container components stopped successfully")
	return nil
}

// Handler returns the full HTTP surface.
func (c *Container) Handler() http.Handler {
	deps := &router.Deps{
		Config:     c.config,
		Logger:     c.logger,
		Store:      c.configStore,
		Stats:      c.stats,
		Messages:   c.messages,
		Media:      c.media,
		Dispatcher: c.dispatcher,
		Connection: c.connection,
		Pipeline:   c.router,
		Metrics:    metrics.Handler(),
		Version:    c.version,
	}
	if c.client != nil {
		deps.Sender = c.client
	}
	return router.SetupRoutes(deps)
}

// ===== ACCESSORS =====

// GetConfig returns the application configuration.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the application logger.
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetRouter returns the event router, mainly for tests.
func (c *Container) GetRouter() *pipeline.Router {
	return c.router
}

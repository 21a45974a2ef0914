package waclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/store"
	"zapfilter/platform/database"
	"zapfilter/platform/logger"
)

// sourceWhatsApp tags envelopes emitted by this adapter.
const sourceWhatsApp = "whatsapp"

const (
	eventBufferSize = 128
	storeInitWait   = 30 * time.Second

	maxReconnectAttempts  = 5
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Client wraps a whatsmeow client and turns its events into envelopes
// on a buffered channel. The router consumes the channel; the adapter
// never calls into the pipeline directly.
type Client struct {
	wa       *whatsmeow.Client
	resolver *Resolver

	media    *store.Media
	messages *store.Messages
	logger   *logger.Logger

	events chan envelope.Envelope

	runCtx context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	started      bool
	stopped      bool
	reconnecting bool
	lastQR       string
}

// New builds the adapter on top of the shared SQLite handle. The
// whatsmeow session schema lives in the same file and is migrated by
// sqlstore on startup.
func New(db *database.Database, media *store.Media, messages *store.Messages, logLevel string, log *logger.Logger) (*Client, error) {
	waLogger := newWALogger(log, logLevel)
	container := sqlstore.NewWithDB(db.Raw(), "sqlite3", waLogger)

	ctx, cancelInit := context.WithTimeout(context.Background(), storeInitWait)
	defer cancelInit()

	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to load device: %w", err)
		}
		device = container.NewDevice()
	}

	wa := whatsmeow.NewClient(device, waLogger.Sub("Client"))
	// Reconnection policy lives in this adapter, not in whatsmeow.
	wa.EnableAutoReconnect = false

	c := &Client{
		wa:       wa,
		media:    media,
		messages: messages,
		logger:   log.WithModule("waclient"),
		events:   make(chan envelope.Envelope, eventBufferSize),
	}
	c.resolver = newResolver(wa, c.logger)
	wa.AddEventHandler(c.handleEvent)

	return c, nil
}

// Events returns the envelope stream consumed by the router.
func (c *Client) Events() <-chan envelope.Envelope {
	return c.events
}

// Resolver returns the linked-id resolver backed by this client.
func (c *Client) Resolver() *Resolver {
	return c.resolver
}

// Start connects to WhatsApp. An unregistered device goes through the
// QR pairing flow; a registered one reconnects with its stored
// credentials. The context bounds the adapter's lifetime.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("client already started")
	}
	c.started = true
	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if c.wa.Store.ID == nil {
		c.logger.Info("No stored session, starting QR pairing")
		return c.startPairing()
	}

	c.logger.InfoWithFields("Connecting with stored session", map[string]interface{}{
		"phone": c.wa.Store.ID.User,
	})
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// startPairing opens the QR channel before connecting; whatsmeow
// rejects the channel once a login is underway.
func (c *Client) startPairing() error {
	qrChan, err := c.wa.GetQRChannel(c.runCtx)
	if err != nil {
		return fmt.Errorf("failed to open qr channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	go c.pairingLoop(qrChan)
	return nil
}

func (c *Client) pairingLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-c.runCtx.Done():
			return
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			switch item.Event {
			case "code":
				c.handleQRCode(item.Code)
			case "success":
				c.logger.Info("QR pairing completed")
				return
			case "timeout":
				c.logger.Warn("QR pairing timed out, restart to get a new code")
				c.emitConnection("disconnected")
				return
			default:
				c.logger.WarnWithFields("QR pairing ended", map[string]interface{}{
					"event": item.Event,
				})
				return
			}
		}
	}
}

// Stop disconnects and stops event emission. The events channel stays
// open; consumers exit through their own context.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wa.Disconnect()
	c.logger.Info("WhatsApp client stopped")
}

// Logout unpairs the device. whatsmeow wipes the stored credentials on
// a successful logout. The server only sends LoggedOut for remote
// logouts, so the envelope is emitted here to keep the pipeline state
// in step.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.wa.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	c.emitEvent(envelope.LogoutInstance, map[string]interface{}{
		"reason": "api_request",
	})
	return nil
}

// Connected reports whether the client holds a live, logged-in
// connection.
func (c *Client) Connected() bool {
	return c.wa.IsConnected() && c.wa.IsLoggedIn()
}

// LoggedIn reports whether stored credentials exist.
func (c *Client) LoggedIn() bool {
	return c.wa.IsLoggedIn()
}

// ownUser returns the bare phone number of the paired account.
func (c *Client) ownUser() string {
	if id := c.wa.Store.ID; id != nil {
		return id.User
	}
	return ""
}

// emit blocks when the channel is full so events are not lost; the
// run context unblocks it on shutdown.
func (c *Client) emit(env envelope.Envelope) {
	select {
	case c.events <- env:
	case <-c.runCtx.Done():
	}
}

// emitEvent marshals a payload and emits it.
func (c *Client) emitEvent(kind string, payload interface{}) {
	env, err := envelope.Marshal(kind, payload, sourceWhatsApp)
	if err != nil {
		c.logger.ErrorWithFields("Failed to build envelope", map[string]interface{}{
			"event": kind,
			"error": err.Error(),
		})
		return
	}
	c.emit(env)
}

func (c *Client) emitConnection(state string) {
	c.emitEvent(envelope.ConnectionUpdate, envelope.ConnectionData{
		State: state,
		Phone: c.ownUser(),
	})
}

// scheduleReconnect retries the connection with doubling delays. Every
// disconnect starts a fresh schedule, so the backoff resets once a
// connection holds.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}()

		delay := initialReconnectDelay
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			select {
			case <-c.runCtx.Done():
				return
			case <-time.After(delay):
			}
			if c.wa.IsConnected() {
				return
			}

			c.logger.InfoWithFields("Reconnecting to WhatsApp", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": maxReconnectAttempts,
			})
			err := c.wa.Connect()
			if err == nil {
				return
			}
			c.logger.WarnWithFields("Reconnect attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})

			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}
		c.logger.Error("Reconnect attempts exhausted, connection stays down until restart")
	}()
}

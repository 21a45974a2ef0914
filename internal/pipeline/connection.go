package pipeline

import (
	"context"
	"sync"
	"time"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/identity"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/platform/logger"
)

// Canonical connection states.
const (
	StateUnknown           = "unknown"
	StateConnecting        = "connecting"
	StateConnected         = "connected"
	StateDisconnected      = "disconnected"
	StateLoggedOut         = "loggedOut"
	StateWaitingForPairing = "waitingForPairing"
)

const maxTransitions = 20

// rawStates maps upstream state vocabulary onto the canonical set.
var rawStates = map[string]string{
	"open":         StateConnected,
	"connected":    StateConnected,
	"connecting":   StateConnecting,
	"close":        StateDisconnected,
	"disconnected": StateDisconnected,
	"logged_out":   StateLoggedOut,
	"logout":       StateLoggedOut,
}

// Transition is one recorded state change.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
	At   string `json:"at"`
}

// ConnMetrics mirrors the canonical state into a gauge. Implemented by
// the prometheus adapter.
type ConnMetrics interface {
	ConnectionState(state string)
}

// ConnectionStatus is the admin-facing snapshot.
type ConnectionStatus struct {
	State       string       `json:"state"`
	StatusSince string       `json:"statusSince"`
	Phone       string       `json:"phone,omitempty"`
	HasQR       bool         `json:"hasQr"`
	QRDataURI   string       `json:"qrDataUri,omitempty"`
	Transitions []Transition `json:"transitions"`
}

// QRState is the pairing snapshot served by the admin API.
type QRState struct {
	HasQR       bool   `json:"hasQr"`
	Code        string `json:"code,omitempty"`
	DataURI     string `json:"dataUri,omitempty"`
	GeneratedAt string `json:"generatedAt,omitempty"`
	State       string `json:"state"`
}

// Connection tracks the client's canonical connection state, keeps a
// bounded transition history and raises alerts on state changes.
type Connection struct {
	mu          sync.RWMutex
	state       string
	statusSince time.Time
	phone       string
	qrCode      string
	qrDataURI   string
	qrAt        time.Time
	history     []Transition

	stats   *store.Stats
	alerts  *webhook.Alerts
	metrics ConnMetrics
	logger  *logger.Logger
}

// NewConnection starts in the unknown state. alerts and metrics may be
// nil.
func NewConnection(stats *store.Stats, alerts *webhook.Alerts, metrics ConnMetrics, log *logger.Logger) *Connection {
	return &Connection{
		state:       StateUnknown,
		statusSince: time.Now().UTC(),
		stats:       stats,
		alerts:      alerts,
		metrics:     metrics,
		logger:      log.WithModule("connection"),
	}
}

// HandleUpdate processes CONNECTION_UPDATE events.
func (c *Connection) HandleUpdate(ctx context.Context, env envelope.Envelope) Result {
	data, err := env.ConnectionData()
	if err != nil {
		return Result{Success: false, Action: store.ActionFailed, Error: err.Error()}
	}

	to := canonicalState(data.RawState())
	if data.Phone != "" {
		c.SetPhone(data.Phone)
	}

	c.transition(ctx, to)
	c.stats.LogEvent(store.EventRecord{
		Event:  env.Event,
		Action: store.ActionLogged,
		Reason: to,
	})
	return Result{Success: true, Action: store.ActionLogged, Reason: to}
}

// HandleQR processes QRCODE_UPDATED events: the code is held for the
// admin API and, while not connected, the state moves to
// waitingForPairing.
func (c *Connection) HandleQR(ctx context.Context, env envelope.Envelope) Result {
	data, err := env.QRData()
	if err != nil {
		return Result{Success: false, Action: store.ActionFailed, Error: err.Error()}
	}

	c.SetQR(data.QRCode, data.Base64)

	c.mu.RLock()
	connected := c.state == StateConnected
	c.mu.RUnlock()
	if !connected {
		c.transition(ctx, StateWaitingForPairing)
	}

	if c.alerts != nil {
		c.alerts.Send(ctx, webhook.Alert{
			Level:   webhook.LevelCritical,
			Event:   env.Event,
			Title:   "QR scan required",
			Message: "The client is waiting for the QR code to be scanned",
		})
	}
	c.stats.LogEvent(store.EventRecord{
		Event:  env.Event,
		Action: store.ActionLogged,
		Reason: StateWaitingForPairing,
	})
	return Result{Success: true, Action: store.ActionLogged}
}

// HandleLogout processes LOGOUT_INSTANCE events.
func (c *Connection) HandleLogout(ctx context.Context, env envelope.Envelope) Result {
	c.transition(ctx, StateLoggedOut)
	c.stats.LogEvent(store.EventRecord{
		Event:  env.Event,
		Action: store.ActionLogged,
		Reason: StateLoggedOut,
	})
	return Result{Success: true, Action: store.ActionLogged, Reason: StateLoggedOut}
}

// transition moves to a new canonical state, recording history and
// alerting. No-op when the state does not change.
func (c *Connection) transition(ctx context.Context, to string) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	c.state = to
	c.statusSince = now
	c.history = append(c.history, Transition{
		From: from,
		To:   to,
		At:   now.Format(time.RFC3339),
	})
	if len(c.history) > maxTransitions {
		c.history = c.history[len(c.history)-maxTransitions:]
	}
	if to == StateConnected {
		c.qrCode = ""
		c.qrDataURI = ""
		c.qrAt = time.Time{}
	}
	c.mu.Unlock()

	c.logger.InfoWithFields("Connection state changed", map[string]interface{}{
		"from": from,
		"to":   to,
	})
	if c.metrics != nil {
		c.metrics.ConnectionState(to)
	}
	c.alertTransition(ctx, from, to)
}

func (c *Connection) alertTransition(ctx context.Context, from, to string) {
	if c.alerts == nil {
		return
	}

	details := map[string]string{"current": to, "previous": from}
	switch {
	case to == StateDisconnected:
		c.alerts.Send(ctx, webhook.Alert{
			Level:   webhook.LevelCritical,
			Event:   envelope.ConnectionUpdate,
			Title:   "WhatsApp disconnected",
			Message: "The client lost its connection",
			Details: details,
		})
	case to == StateLoggedOut:
		c.alerts.Send(ctx, webhook.Alert{
			Level:   webhook.LevelCritical,
			Event:   envelope.ConnectionUpdate,
			Title:   "WhatsApp logged out",
			Message: "The session was logged out and needs to be paired again",
			Details: details,
		})
	case to == StateConnecting:
		c.alerts.Send(ctx, webhook.Alert{
			Level:   webhook.LevelWarning,
			Event:   envelope.ConnectionUpdate,
			Title:   "WhatsApp reconnecting",
			Message: "The client is trying to connect",
			Details: details,
		})
	case to == StateConnected:
		c.alerts.Send(ctx, webhook.Alert{
			Level:   webhook.LevelInfo,
			Event:   envelope.ConnectionUpdate,
			Title:   "WhatsApp connection restored",
			Message: "The client is connected",
			Details: details,
		})
	}
}

// SetQR stores the current pairing code and its rendered data URI.
func (c *Connection) SetQR(code, dataURI string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qrCode = code
	c.qrDataURI = dataURI
	c.qrAt = time.Now().UTC()
}

// SetPhone records the account's own number once known.
func (c *Connection) SetPhone(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phone = identity.NormalizePhone(phone)
}

// State returns the canonical connection state.
func (c *Connection) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Phone returns the account's own number, digits only, or empty while
// unknown.
func (c *Connection) Phone() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phone
}

// QR returns the current pairing code and data URI.
func (c *Connection) QR() (code, dataURI string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.qrCode, c.qrDataURI
}

// QRSnapshot returns the pairing snapshot, including when the current
// code was generated.
func (c *Connection) QRSnapshot() QRState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := QRState{
		HasQR:   c.qrCode != "",
		Code:    c.qrCode,
		DataURI: c.qrDataURI,
		State:   c.state,
	}
	if !c.qrAt.IsZero() {
		snap.GeneratedAt = c.qrAt.Format(time.RFC3339)
	}
	return snap
}

// Status returns the admin-facing snapshot.
func (c *Connection) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]Transition, len(c.history))
	copy(history, c.history)
	return ConnectionStatus{
		State:       c.state,
		StatusSince: c.statusSince.Format(time.RFC3339),
		Phone:       c.phone,
		HasQR:       c.qrCode != "",
		QRDataURI:   c.qrDataURI,
		Transitions: history,
	}
}

func canonicalState(raw string) string {
	if state, ok := rawStates[raw]; ok {
		return state
	}
	return StateUnknown
}

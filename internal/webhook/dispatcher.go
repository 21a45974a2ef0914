package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

const (
	maxAttempts    = 3
	firstTimeout   = 5 * time.Second
	retryTimeout   = 10 * time.Second
	failureAlertAt = 3
)

var retryBackoffs = []time.Duration{time.Second, 2 * time.Second}

// Routes resolves destinations. Implemented by the config store.
type Routes interface {
	DefaultWebhook() string
	TypeWebhook(entityType string) string
}

// Metrics counts delivery outcomes. Implemented by the prometheus
// adapter.
type Metrics interface {
	DeliveryCounted(destination, outcome string)
}

// Meta travels with a forwarded payload and becomes its headers.
type Meta struct {
	SourceID   string
	SourceType string
	EntityType string
	Event      string
}

// ErrorDetail describes the last failed delivery to a destination.
type ErrorDetail struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Code      int    `json:"code,omitempty"`
}

// DestinationHealth is the per-destination delivery record.
type DestinationHealth struct {
	LastSuccess         string       `json:"lastSuccess,omitempty"`
	LastError           *ErrorDetail `json:"lastError,omitempty"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
}

// TypeCounter tallies deliveries per entity type.
type TypeCounter struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

// HealthReport is the dispatcher's full health snapshot.
type HealthReport struct {
	Destinations map[string]DestinationHealth `json:"destinations"`
	Secondary    *DestinationHealth           `json:"secondary,omitempty"`
	Types        map[string]TypeCounter       `json:"types"`
}

// Result reports where a payload went and on which attempt.
type Result struct {
	Destination string `json:"destination"`
	Attempt     int    `json:"attempt"`
	StatusCode  int    `json:"statusCode,omitempty"`
}

// TestResult is the structured answer of a webhook test delivery.
type TestResult struct {
	Destination string `json:"destination"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Dispatcher delivers event payloads to their routed destination with
// bounded retries, tracks per-destination health and raises a warning
// alert when a destination keeps failing.
type Dispatcher struct {
	routes       Routes
	client       *resty.Client
	instanceName string
	secondaryURL string
	alerts       *Alerts
	metrics      Metrics
	logger       *logger.Logger

	mu              sync.RWMutex
	health          map[string]*DestinationHealth
	secondaryHealth *DestinationHealth
	typeCounters    map[string]*TypeCounter
}

// NewDispatcher creates the dispatcher. secondaryURL, alerts and
// metrics may be empty.
func NewDispatcher(routes Routes, instanceName, secondaryURL string, alerts *Alerts, metrics Metrics, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		routes:       routes,
		client:       resty.New(),
		instanceName: instanceName,
		secondaryURL: secondaryURL,
		alerts:       alerts,
		metrics:      metrics,
		logger:       log.WithModule("webhook-dispatcher"),
		health:       make(map[string]*DestinationHealth),
		typeCounters: make(map[string]*TypeCounter),
	}
}

// Forward posts the payload to the destination routed for the entity
// type, falling back to the default destination. Up to three attempts;
// retries only on transport errors and 5xx answers. The secondary
// destination, when configured, gets a single fire-and-forget copy
// regardless of the primary outcome.
func (d *Dispatcher) Forward(ctx context.Context, payload []byte, meta Meta) (*Result, error) {
	destination := d.resolve(meta.EntityType)
	if destination == "" {
		if d.metrics != nil {
			d.metrics.DeliveryCounted("none", "no_destination")
		}
		return nil, errors.ErrNoDestination
	}

	if d.secondaryURL != "" && d.secondaryURL != destination {
		go d.sendSecondary(payload, meta)
	}

	headers := d.headers(meta)
	result := &Result{Destination: destination}
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempt = attempt

		code, err := d.post(ctx, destination, payload, headers, attemptTimeout(attempt))
		result.StatusCode = code
		if err == nil && code < 300 {
			d.recordSuccess(destination, meta.EntityType)
			if d.metrics != nil {
				d.metrics.DeliveryCounted(destination, "delivered")
			}
			return result, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("destination responded %d", code)
		}
		d.logger.WarnWithFields("Webhook delivery attempt failed", map[string]interface{}{
			"destination": destination,
			"attempt":     attempt,
			"status":      code,
			"error":       lastErr.Error(),
		})

		if !retryable(code, err) || attempt == maxAttempts {
			break
		}
		if !sleepCtx(ctx, retryBackoffs[attempt-1]) {
			lastErr = ctx.Err()
			break
		}
	}

	d.recordFailure(destination, meta.EntityType, lastErr, result.StatusCode)
	if d.metrics != nil {
		d.metrics.DeliveryCounted(destination, "failed")
	}
	return result, fmt.Errorf("failed to deliver to %s: %w", destination, lastErr)
}

// Test sends a synthetic payload through the routing an entity type
// would take. Single attempt, but health is updated as usual.
func (d *Dispatcher) Test(ctx context.Context, entityType string) TestResult {
	destination := d.resolve(entityType)
	if destination == "" {
		return TestResult{Error: errors.ErrNoDestination.Message}
	}

	payload := map[string]interface{}{
		"test":       true,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"message":    "zapfilter webhook test",
		"source":     d.instanceName,
		"entityType": entityType,
	}
	headers := d.headers(Meta{SourceID: "test", SourceType: "test", EntityType: entityType, Event: "TEST"})

	attemptCtx, cancel := context.WithTimeout(ctx, firstTimeout)
	defer cancel()
	resp, err := d.client.R().
		SetContext(attemptCtx).
		SetHeaders(headers).
		SetBody(payload).
		Post(destination)

	result := TestResult{Destination: destination}
	if err != nil {
		result.Error = err.Error()
		d.recordFailure(destination, entityType, err, 0)
		return result
	}
	result.StatusCode = resp.StatusCode()
	if resp.StatusCode() >= 300 {
		result.Error = fmt.Sprintf("destination responded %d", resp.StatusCode())
		d.recordFailure(destination, entityType, fmt.Errorf("%s", result.Error), resp.StatusCode())
		return result
	}
	result.Success = true
	d.recordSuccess(destination, entityType)
	return result
}

// SendTo posts an arbitrary payload to a URL with extra headers. Used
// for mention notifications. Single attempt, 5 s timeout.
func (d *Dispatcher) SendTo(ctx context.Context, url string, payload interface{}, headers map[string]string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, firstTimeout)
	defer cancel()

	req := d.client.R().
		SetContext(attemptCtx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Filter-Source", d.instanceName).
		SetBody(payload)
	for k, v := range headers {
		req.SetHeader(k, v)
	}

	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("destination responded %d", resp.StatusCode())
	}
	return nil
}

// HealthSnapshot returns a copy of all delivery records.
func (d *Dispatcher) HealthSnapshot() HealthReport {
	d.mu.RLock()
	defer d.mu.RUnlock()

	report := HealthReport{
		Destinations: make(map[string]DestinationHealth, len(d.health)),
		Types:        make(map[string]TypeCounter, len(d.typeCounters)),
	}
	for destination, h := range d.health {
		report.Destinations[destination] = copyHealth(h)
	}
	if d.secondaryHealth != nil {
		copied := copyHealth(d.secondaryHealth)
		report.Secondary = &copied
	}
	for entityType, counter := range d.typeCounters {
		report.Types[entityType] = *counter
	}
	return report
}

func copyHealth(h *DestinationHealth) DestinationHealth {
	copied := *h
	if h.LastError != nil {
		detail := *h.LastError
		copied.LastError = &detail
	}
	return copied
}

func (d *Dispatcher) resolve(entityType string) string {
	if entityType != "" {
		if url := d.routes.TypeWebhook(entityType); url != "" {
			return url
		}
	}
	return d.routes.DefaultWebhook()
}

func (d *Dispatcher) headers(meta Meta) map[string]string {
	return map[string]string{
		"Content-Type":    "application/json",
		"X-Filter-Source": d.instanceName,
		"X-Source-Id":     meta.SourceID,
		"X-Source-Type":   meta.SourceType,
		"X-Entity-Type":   meta.EntityType,
		"X-Event-Type":    meta.Event,
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte, headers map[string]string, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.client.R().
		SetContext(attemptCtx).
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}

func (d *Dispatcher) sendSecondary(payload []byte, meta Meta) {
	ctx, cancel := context.WithTimeout(context.Background(), firstTimeout)
	defer cancel()

	code, err := d.post(ctx, d.secondaryURL, payload, d.headers(meta), firstTimeout)
	ok := err == nil && code < 300

	d.mu.Lock()
	if d.secondaryHealth == nil {
		d.secondaryHealth = &DestinationHealth{}
	}
	if ok {
		d.secondaryHealth.LastSuccess = time.Now().UTC().Format(time.RFC3339)
		d.secondaryHealth.ConsecutiveFailures = 0
	} else {
		message := "no response"
		if err != nil {
			message = err.Error()
		}
		d.secondaryHealth.LastError = &ErrorDetail{
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Code:      code,
		}
		d.secondaryHealth.ConsecutiveFailures++
	}
	d.mu.Unlock()

	if !ok {
		d.logger.WarnWithFields("Secondary webhook delivery failed", map[string]interface{}{
			"destination": d.secondaryURL,
			"status":      code,
		})
	}
}

func (d *Dispatcher) recordSuccess(destination, entityType string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.healthFor(destination)
	h.LastSuccess = time.Now().UTC().Format(time.RFC3339)
	h.ConsecutiveFailures = 0
	d.counterFor(entityType).Success++
}

func (d *Dispatcher) recordFailure(destination, entityType string, err error, code int) {
	message := "no response"
	if err != nil {
		message = err.Error()
	}

	d.mu.Lock()
	h := d.healthFor(destination)
	h.LastError = &ErrorDetail{
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Code:      code,
	}
	h.ConsecutiveFailures++
	failures := h.ConsecutiveFailures
	d.counterFor(entityType).Failure++
	d.mu.Unlock()

	if failures == failureAlertAt && d.alerts != nil {
		go d.alerts.Send(context.Background(), Alert{
			Level:   LevelWarning,
			Event:   "WEBHOOK_FAILURES",
			Title:   "Webhook destination failing",
			Message: fmt.Sprintf("%d consecutive delivery failures", failures),
			Details: map[string]string{
				"destination": destination,
				"last_error":  message,
			},
		})
	}
}

// healthFor returns the record for a destination. Callers hold the
// lock.
func (d *Dispatcher) healthFor(destination string) *DestinationHealth {
	h, ok := d.health[destination]
	if !ok {
		h = &DestinationHealth{}
		d.health[destination] = h
	}
	return h
}

// counterFor returns the tally for an entity type. Callers hold the
// lock.
func (d *Dispatcher) counterFor(entityType string) *TypeCounter {
	if entityType == "" {
		entityType = "default"
	}
	c, ok := d.typeCounters[entityType]
	if !ok {
		c = &TypeCounter{}
		d.typeCounters[entityType] = c
	}
	return c
}

func attemptTimeout(attempt int) time.Duration {
	if attempt == 1 {
		return firstTimeout
	}
	return retryTimeout
}

func retryable(code int, err error) bool {
	if err != nil {
		return true
	}
	return code >= 500
}

// sleepCtx waits out a backoff unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

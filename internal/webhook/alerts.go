package webhook

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"zapfilter/platform/logger"
)

// Alert severity levels.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

const (
	alertTimeout = 5 * time.Second
	maxFields    = 10
	maxActions   = 5
)

// AlertCounter records delivery attempts. Implemented by the stats
// store.
type AlertCounter interface {
	IncrementAlert(level string, success bool)
}

// Action is a link attached to an alert.
type Action struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Alert is one operational notification.
type Alert struct {
	Level   string            `json:"level"`
	Event   string            `json:"event"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Actions []Action          `json:"actions,omitempty"`
}

// SendOutcome reports whether any channel took the alert.
type SendOutcome struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// Alerts delivers operational notifications to a generic JSON endpoint
// and a rich block-formatted endpoint. Both channels are best-effort.
type Alerts struct {
	genericURL   string
	richURL      string
	instanceName string
	client       *resty.Client
	counter      AlertCounter
	titler       cases.Caser
	logger       *logger.Logger
}

// NewAlerts creates the sink. Either URL may be empty; counter may be
// nil.
func NewAlerts(genericURL, richURL, instanceName string, counter AlertCounter, log *logger.Logger) *Alerts {
	return &Alerts{
		genericURL:   genericURL,
		richURL:      richURL,
		instanceName: instanceName,
		client:       resty.New().SetTimeout(alertTimeout),
		counter:      counter,
		titler:       cases.Title(language.English),
		logger:       log.WithModule("alert-sink"),
	}
}

// Send fans the alert out to every configured channel. The rich
// channel only carries critical and warning levels.
func (a *Alerts) Send(ctx context.Context, alert Alert) SendOutcome {
	if a.genericURL == "" && a.richURL == "" {
		return SendOutcome{Sent: false, Reason: "no_channels"}
	}
	if alert.Level == "" {
		alert.Level = LevelInfo
	}

	sent := false
	if a.genericURL != "" {
		if ok := a.sendGeneric(ctx, alert); ok {
			sent = true
		}
	}
	if a.richURL != "" && (alert.Level == LevelCritical || alert.Level == LevelWarning) {
		if ok := a.sendRich(ctx, alert); ok {
			sent = true
		}
	}

	if !sent {
		return SendOutcome{Sent: false, Reason: "delivery_failed"}
	}
	return SendOutcome{Sent: true}
}

func (a *Alerts) sendGeneric(ctx context.Context, alert Alert) bool {
	payload := map[string]interface{}{
		"id":        uuid.New().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    "zapfilter",
		"instance":  a.instanceName,
		"level":     alert.Level,
		"event":     alert.Event,
		"title":     alert.Title,
		"message":   alert.Message,
	}
	if len(alert.Details) > 0 {
		payload["details"] = alert.Details
	}
	if len(alert.Actions) > 0 {
		payload["actions"] = alert.Actions
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Alert-Level", alert.Level).
		SetBody(payload).
		Post(a.genericURL)

	ok := err == nil && resp.StatusCode() < 300
	if a.counter != nil {
		a.counter.IncrementAlert(alert.Level, ok)
	}
	if !ok {
		a.logger.WarnWithFields("Generic alert delivery failed", map[string]interface{}{
			"level": alert.Level,
			"event": alert.Event,
			"error": errString(err, resp),
		})
	}
	return ok
}

func (a *Alerts) sendRich(ctx context.Context, alert Alert) bool {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(a.blocks(alert)).
		Post(a.richURL)

	ok := err == nil && resp.StatusCode() < 300
	if a.counter != nil {
		a.counter.IncrementAlert(alert.Level, ok)
	}
	if !ok {
		a.logger.WarnWithFields("Rich alert delivery failed", map[string]interface{}{
			"level": alert.Level,
			"event": alert.Event,
			"error": errString(err, resp),
		})
	}
	return ok
}

// blocks renders the Slack-style block payload: header, message
// section, a detail field grid and action buttons.
func (a *Alerts) blocks(alert Alert) map[string]interface{} {
	emoji := ":warning:"
	if alert.Level == LevelCritical {
		emoji = ":rotating_light:"
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  emoji + " " + alert.Title,
				"emoji": true,
			},
		},
		{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": alert.Message,
			},
		},
	}

	if len(alert.Details) > 0 {
		keys := make([]string, 0, len(alert.Details))
		for k := range alert.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > maxFields {
			keys = keys[:maxFields]
		}
		fields := make([]map[string]interface{}, 0, len(keys))
		for _, k := range keys {
			label := a.titler.String(strings.ReplaceAll(k, "_", " "))
			fields = append(fields, map[string]interface{}{
				"type": "mrkdwn",
				"text": "*" + label + "*\n" + alert.Details[k],
			})
		}
		blocks = append(blocks, map[string]interface{}{
			"type":   "section",
			"fields": fields,
		})
	}

	if len(alert.Actions) > 0 {
		actions := alert.Actions
		if len(actions) > maxActions {
			actions = actions[:maxActions]
		}
		elements := make([]map[string]interface{}, 0, len(actions))
		for _, action := range actions {
			elements = append(elements, map[string]interface{}{
				"type": "button",
				"text": map[string]interface{}{
					"type":  "plain_text",
					"text":  action.Text,
					"emoji": true,
				},
				"url": action.URL,
			})
		}
		blocks = append(blocks, map[string]interface{}{
			"type":     "actions",
			"elements": elements,
		})
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]interface{}{
			{
				"type": "mrkdwn",
				"text": a.instanceName + " • " + time.Now().UTC().Format(time.RFC3339),
			},
		},
	})

	return map[string]interface{}{"blocks": blocks}
}

func errString(err error, resp *resty.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return resp.Status()
	}
	return "unknown"
}

package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zapfilter/platform/logger"
)

type fakeCounter struct {
	calls []string
}

func (f *fakeCounter) IncrementAlert(level string, success bool) {
	f.calls = append(f.calls, fmt.Sprintf("%s/%v", level, success))
}

func TestSendNoChannels(t *testing.T) {
	a := NewAlerts("", "", "zapfilter-test", nil, logger.New(logger.TestConfig()))
	outcome := a.Send(context.Background(), Alert{Level: LevelCritical, Title: "x"})
	if outcome.Sent || outcome.Reason != "no_channels" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestSendGeneric(t *testing.T) {
	var gotLevel string
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLevel = r.Header.Get("X-Alert-Level")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
	}))
	defer server.Close()

	counter := &fakeCounter{}
	a := NewAlerts(server.URL, "", "zapfilter-test", counter, logger.New(logger.TestConfig()))

	outcome := a.Send(context.Background(), Alert{
		Level:   LevelInfo,
		Event:   "CONNECTION_UPDATE",
		Title:   "Connection restored",
		Message: "back online",
		Details: map[string]string{"state": "connected"},
	})
	if !outcome.Sent {
		t.Fatalf("outcome = %+v", outcome)
	}
	if gotLevel != LevelInfo {
		t.Errorf("X-Alert-Level = %q", gotLevel)
	}
	if payload["title"] != "Connection restored" || payload["instance"] != "zapfilter-test" {
		t.Errorf("payload = %v", payload)
	}
	for _, key := range []string{"id", "timestamp", "level", "event", "message"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}
	if len(counter.calls) != 1 || counter.calls[0] != "info/true" {
		t.Errorf("counter calls = %v", counter.calls)
	}
}

func TestSendRichLevels(t *testing.T) {
	richHits := 0
	rich := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		richHits++
	}))
	defer rich.Close()

	a := NewAlerts("", rich.URL, "zapfilter-test", nil, logger.New(logger.TestConfig()))

	if outcome := a.Send(context.Background(), Alert{Level: LevelInfo, Title: "quiet"}); outcome.Sent {
		t.Errorf("info alert reached the rich channel: %+v", outcome)
	}
	if richHits != 0 {
		t.Fatalf("rich channel hit %d times for an info alert", richHits)
	}

	for _, level := range []string{LevelWarning, LevelCritical} {
		if outcome := a.Send(context.Background(), Alert{Level: level, Title: "loud"}); !outcome.Sent {
			t.Errorf("level %s outcome = %+v", level, outcome)
		}
	}
	if richHits != 2 {
		t.Errorf("rich channel hit %d times, want 2", richHits)
	}
}

func TestSendDeliveryFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	counter := &fakeCounter{}
	a := NewAlerts(server.URL, "", "zapfilter-test", counter, logger.New(logger.TestConfig()))

	outcome := a.Send(context.Background(), Alert{Level: LevelWarning, Title: "x"})
	if outcome.Sent || outcome.Reason != "delivery_failed" {
		t.Errorf("outcome = %+v", outcome)
	}
	if len(counter.calls) != 1 || counter.calls[0] != "warning/false" {
		t.Errorf("counter calls = %v", counter.calls)
	}
}

func TestSendDefaultsLevel(t *testing.T) {
	var gotLevel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLevel = r.Header.Get("X-Alert-Level")
	}))
	defer server.Close()

	a := NewAlerts(server.URL, "", "zapfilter-test", nil, logger.New(logger.TestConfig()))
	a.Send(context.Background(), Alert{Title: "unleveled"})
	if gotLevel != LevelInfo {
		t.Errorf("level defaulted to %q, want info", gotLevel)
	}
}

func TestBlocksLayout(t *testing.T) {
	a := NewAlerts("", "", "zapfilter-test", nil, logger.New(logger.TestConfig()))

	details := make(map[string]string)
	for i := 0; i < 12; i++ {
		details[fmt.Sprintf("field_%02d", i)] = "v"
	}
	actions := make([]Action, 6)
	for i := range actions {
		actions[i] = Action{Text: fmt.Sprintf("b%d", i), URL: "https://example.com"}
	}

	payload := a.blocks(Alert{
		Level:   LevelCritical,
		Title:   "Disconnected",
		Message: "gone",
		Details: details,
		Actions: actions,
	})

	blocks := payload["blocks"].([]map[string]interface{})
	header := blocks[0]["text"].(map[string]interface{})["text"].(string)
	if !strings.HasPrefix(header, ":rotating_light:") {
		t.Errorf("critical header = %q", header)
	}

	var fieldCount, buttonCount int
	var sawTitleCasedLabel bool
	for _, block := range blocks {
		if fields, ok := block["fields"].([]map[string]interface{}); ok {
			fieldCount = len(fields)
			for _, f := range fields {
				if strings.Contains(f["text"].(string), "*Field 01*") {
					sawTitleCasedLabel = true
				}
			}
		}
		if block["type"] == "actions" {
			buttonCount = len(block["elements"].([]map[string]interface{}))
		}
	}
	if fieldCount != 10 {
		t.Errorf("field grid holds %d entries, want 10", fieldCount)
	}
	if !sawTitleCasedLabel {
		t.Error("detail labels not title-cased")
	}
	if buttonCount != 5 {
		t.Errorf("%d action buttons, want 5", buttonCount)
	}
}

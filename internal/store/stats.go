package store

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"zapfilter/internal/core/envelope"
	"zapfilter/platform/logger"
)

// Counter fields accepted by Increment.
const (
	FieldTotal     = "total"
	FieldFiltered  = "filtered"
	FieldForwarded = "forwarded"
	FieldFailed    = "failed"
)

// Actions recorded on EventRecord entries.
const (
	ActionForwarded        = "forwarded"
	ActionFiltered         = "filtered"
	ActionFailed           = "failed"
	ActionLogged           = "logged"
	ActionStored           = "stored"
	ActionMentionForwarded = "mention_forwarded"
)

const previewLimit = 50

// EventStat aggregates outcomes per event kind.
type EventStat struct {
	Total        int64  `json:"total"`
	Filtered     int64  `json:"filtered"`
	Forwarded    int64  `json:"forwarded"`
	Failed       int64  `json:"failed"`
	LastReceived string `json:"lastReceived,omitempty"`
}

// AlertStats counts alert deliveries per level.
type AlertStats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	ByLevel struct {
		Critical int64 `json:"critical"`
		Warning  int64 `json:"warning"`
		Info     int64 `json:"info"`
	} `json:"byLevel"`
}

// SessionInfo marks the current process run.
type SessionInfo struct {
	StartedAt string `json:"startedAt"`
	LastSaved string `json:"lastSaved,omitempty"`
}

// LegacyCounters mirrors the counter block older deployments read.
type LegacyCounters struct {
	TotalMessages    int64 `json:"totalMessages"`
	FilteredMessages int64 `json:"filteredMessages"`
	AllowedMessages  int64 `json:"allowedMessages"`
}

// EventRecord is one entry of the recent-events ring buffer.
type EventRecord struct {
	ID             string `json:"id"`
	Timestamp      string `json:"timestamp"`
	Event          string `json:"event"`
	Source         string `json:"source,omitempty"`
	SourceType     string `json:"sourceType,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	EntityType     string `json:"entityType,omitempty"`
	Action         string `json:"action"`
	MessagePreview string `json:"messagePreview,omitempty"`
	MessageBody    string `json:"messageBody,omitempty"`
	Error          string `json:"error,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// StatsSnapshot is the aggregate view served to the admin API.
type StatsSnapshot struct {
	TotalEvents    int64                `json:"totalEvents"`
	TotalForwarded int64                `json:"totalForwarded"`
	TotalFiltered  int64                `json:"totalFiltered"`
	TotalFailed    int64                `json:"totalFailed"`
	Events         map[string]EventStat `json:"events"`
	Alerts         AlertStats           `json:"alerts"`
	Session        SessionInfo          `json:"session"`
	Legacy         LegacyCounters       `json:"legacy"`
}

// Metrics receives counter updates next to the stats store. The
// prometheus adapter implements it; a nil value disables it.
type Metrics interface {
	EventCounted(kind, field string)
	AlertCounted(level string)
}

type statsFile struct {
	Events       map[string]*EventStat `json:"events"`
	Alerts       AlertStats            `json:"alerts"`
	RecentEvents []EventRecord         `json:"recentEvents"`
	Session      SessionInfo           `json:"session"`
	Legacy       LegacyCounters        `json:"legacy"`
}

// Stats tracks per-kind counters, alert counters and the bounded
// recent-events ring buffer, persisted periodically.
type Stats struct {
	mu      sync.RWMutex
	path    string
	limit   int
	data    statsFile
	metrics Metrics
	logger  *logger.Logger
}

// NewStats creates the store with every canonical event kind
// pre-registered.
func NewStats(path string, recentLimit int, metrics Metrics, log *logger.Logger) *Stats {
	if recentLimit <= 0 {
		recentLimit = 100
	}

	events := make(map[string]*EventStat)
	for _, kind := range envelope.CanonicalKinds() {
		events[kind] = &EventStat{}
	}

	return &Stats{
		path:    path,
		limit:   recentLimit,
		metrics: metrics,
		data: statsFile{
			Events:  events,
			Session: SessionInfo{StartedAt: time.Now().UTC().Format(time.RFC3339)},
		},
		logger: log.WithModule("stats-store"),
	}
}

// Load merges the on-disk state into the pre-registered defaults, so
// kinds unknown to older files still appear.
func (s *Stats) Load() error {
	var file statsFile
	if err := loadJSON(s.path, &file); err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No stats file found, starting fresh")
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, stat := range file.Events {
		if stat != nil {
			s.data.Events[kind] = stat
		}
	}
	s.data.Alerts = file.Alerts
	s.data.Legacy = file.Legacy
	if len(file.RecentEvents) > s.limit {
		file.RecentEvents = file.RecentEvents[:s.limit]
	}
	s.data.RecentEvents = file.RecentEvents
	return nil
}

// Increment bumps one counter field of an event kind, registering the
// kind lazily when unknown.
func (s *Stats) Increment(kind, field string) {
	s.mu.Lock()
	stat, ok := s.data.Events[kind]
	if !ok {
		stat = &EventStat{}
		s.data.Events[kind] = stat
	}
	switch field {
	case FieldTotal:
		stat.Total++
		stat.LastReceived = time.Now().UTC().Format(time.RFC3339)
		if kind == envelope.MessagesUpsert || kind == envelope.SendMessage {
			s.data.Legacy.TotalMessages++
		}
	case FieldFiltered:
		stat.Filtered++
		s.data.Legacy.FilteredMessages++
	case FieldForwarded:
		stat.Forwarded++
		s.data.Legacy.AllowedMessages++
	case FieldFailed:
		stat.Failed++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.EventCounted(kind, field)
	}
}

// IncrementAlert counts an alert delivery attempt per level.
func (s *Stats) IncrementAlert(level string, success bool) {
	s.mu.Lock()
	if success {
		s.data.Alerts.Sent++
	} else {
		s.data.Alerts.Failed++
	}
	switch level {
	case "critical":
		s.data.Alerts.ByLevel.Critical++
	case "warning":
		s.data.Alerts.ByLevel.Warning++
	case "info":
		s.data.Alerts.ByLevel.Info++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AlertCounted(level)
	}
}

// LogEvent pushes a record onto the ring buffer, newest first. ID and
// timestamp are filled when absent; the preview is derived from the
// body when absent.
func (s *Stats) LogEvent(rec EventRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if rec.MessagePreview == "" && rec.MessageBody != "" {
		rec.MessagePreview = Preview(rec.MessageBody)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.RecentEvents = append([]EventRecord{rec}, s.data.RecentEvents...)
	if len(s.data.RecentEvents) > s.limit {
		s.data.RecentEvents = s.data.RecentEvents[:s.limit]
	}
}

// Preview truncates a message body for the ring buffer.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit]) + "..."
}

// Recent returns a page of the ring buffer, optionally filtered by
// event kind, plus the total matching count.
func (s *Stats) Recent(limit, offset int, event string) ([]EventRecord, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.data.RecentEvents
	if event != "" {
		matched = make([]EventRecord, 0, len(s.data.RecentEvents))
		for _, rec := range s.data.RecentEvents {
			if rec.Event == event {
				matched = append(matched, rec)
			}
		}
	}

	total := len(matched)
	if offset >= total {
		return []EventRecord{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]EventRecord, end-offset)
	copy(page, matched[offset:end])
	return page, total
}

// Snapshot aggregates the counters for the admin API.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatsSnapshot{
		Events:  make(map[string]EventStat, len(s.data.Events)),
		Alerts:  s.data.Alerts,
		Session: s.data.Session,
		Legacy:  s.data.Legacy,
	}
	for kind, stat := range s.data.Events {
		snap.Events[kind] = *stat
		snap.TotalEvents += stat.Total
		snap.TotalForwarded += stat.Forwarded
		snap.TotalFiltered += stat.Filtered
		snap.TotalFailed += stat.Failed
	}
	return snap
}

// Save persists the state atomically.
func (s *Stats) Save() error {
	s.mu.Lock()
	s.data.Session.LastSaved = time.Now().UTC().Format(time.RFC3339)
	file := s.data
	file.Events = make(map[string]*EventStat, len(s.data.Events))
	for kind, stat := range s.data.Events {
		copied := *stat
		file.Events[kind] = &copied
	}
	file.RecentEvents = append([]EventRecord(nil), s.data.RecentEvents...)
	s.mu.Unlock()

	return saveJSON(s.path, &file)
}

// Run flushes the store every five minutes until the context ends.
func (s *Stats) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(); err != nil {
				s.logger.ErrorWithFields("Failed to autosave stats", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

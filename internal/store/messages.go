package store

import (
	"context"
	"os"
	"sync"
	"time"

	"zapfilter/platform/logger"
)

// Message is the normalized message kept in the per-source history.
type Message struct {
	ID          string `json:"id"`
	Body        string `json:"body,omitempty"`
	Type        string `json:"type"`
	HasMedia    bool   `json:"hasMedia,omitempty"`
	MediaType   string `json:"mediaType,omitempty"`
	MediaHandle string `json:"mediaHandle,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	FromSelf    bool   `json:"fromSelf,omitempty"`
	Timestamp   string `json:"timestamp"`
	QuotedBody  string `json:"quotedBody,omitempty"`
	StoredAt    string `json:"storedAt"`
}

// SourceSummary describes one source's history.
type SourceSummary struct {
	SourceID      string `json:"sourceId"`
	MessageCount  int    `json:"messageCount"`
	LastTimestamp string `json:"lastTimestamp,omitempty"`
}

// Messages is the bounded message history: newest first per source,
// per-source cap, global cap with oldest-first eviction, and periodic
// dirty-flush persistence.
type Messages struct {
	mu           sync.RWMutex
	path         string
	maxPerSource int
	maxTotal     int
	data         map[string][]Message
	total        int
	dirty        bool
	ourIDs       map[string]struct{}
	logger       *logger.Logger
}

// NewMessages creates the store.
func NewMessages(path string, maxPerSource, maxTotal int, log *logger.Logger) *Messages {
	if maxPerSource <= 0 {
		maxPerSource = 100
	}
	if maxTotal <= 0 {
		maxTotal = 5000
	}
	return &Messages{
		path:         path,
		maxPerSource: maxPerSource,
		maxTotal:     maxTotal,
		data:         make(map[string][]Message),
		ourIDs:       make(map[string]struct{}),
		logger:       log.WithModule("message-store"),
	}
}

// Load reads the file and rebuilds the total count and the outgoing-id
// set.
func (m *Messages) Load() error {
	var data map[string][]Message
	if err := loadJSON(m.path, &data); err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("No messages file found, starting empty")
			return nil
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = data
	m.total = 0
	m.ourIDs = make(map[string]struct{})
	for _, msgs := range data {
		m.total += len(msgs)
		for _, msg := range msgs {
			if msg.FromSelf && msg.ID != "" {
				m.ourIDs[msg.ID] = struct{}{}
			}
		}
	}
	return nil
}

// Store prepends a message to its source history and applies both
// caps.
func (m *Messages) Store(sourceID string, msg Message) {
	if msg.StoredAt == "" {
		msg.StoredAt = time.Now().UTC().Format(time.RFC3339)
	}
	if msg.Timestamp == "" {
		msg.Timestamp = msg.StoredAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]Message{msg}, m.data[sourceID]...)
	m.total++
	if msg.FromSelf && msg.ID != "" {
		m.ourIDs[msg.ID] = struct{}{}
	}

	if len(list) > m.maxPerSource {
		for _, dropped := range list[m.maxPerSource:] {
			m.total--
			m.forgetOwn(dropped)
		}
		list = list[:m.maxPerSource]
	}
	m.data[sourceID] = list

	for m.total > m.maxTotal {
		m.evictOldest()
	}

	m.dirty = true
}

// evictOldest removes the globally oldest message. Lists are newest
// first, so only each source's tail is a candidate. Callers hold the
// lock.
func (m *Messages) evictOldest() {
	var oldestSource string
	var oldestAt time.Time
	found := false

	for sourceID, list := range m.data {
		if len(list) == 0 {
			delete(m.data, sourceID)
			continue
		}
		tail := list[len(list)-1]
		at := parseWhen(tail)
		if !found || at.Before(oldestAt) {
			found = true
			oldestSource = sourceID
			oldestAt = at
		}
	}
	if !found {
		return
	}

	list := m.data[oldestSource]
	m.forgetOwn(list[len(list)-1])
	list = list[:len(list)-1]
	m.total--
	if len(list) == 0 {
		delete(m.data, oldestSource)
	} else {
		m.data[oldestSource] = list
	}
}

func (m *Messages) forgetOwn(msg Message) {
	if msg.FromSelf && msg.ID != "" {
		delete(m.ourIDs, msg.ID)
	}
}

func parseWhen(msg Message) time.Time {
	if t, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, msg.StoredAt); err == nil {
		return t
	}
	return time.Time{}
}

// Get returns a page of a source's history plus a has-more flag.
func (m *Messages) Get(sourceID string, limit, offset int) ([]Message, bool) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.data[sourceID]
	if offset >= len(list) {
		return []Message{}, false
	}
	end := offset + limit
	hasMore := end < len(list)
	if end > len(list) {
		end = len(list)
	}
	page := make([]Message, end-offset)
	copy(page, list[offset:end])
	return page, hasMore
}

// Sources lists every source holding messages.
func (m *Messages) Sources() []SourceSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SourceSummary, 0, len(m.data))
	for sourceID, list := range m.data {
		summary := SourceSummary{SourceID: sourceID, MessageCount: len(list)}
		if len(list) > 0 {
			summary.LastTimestamp = list[0].Timestamp
		}
		out = append(out, summary)
	}
	return out
}

// Delete drops a source's whole history and returns how many messages
// were removed.
func (m *Messages) Delete(sourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.data[sourceID]
	if !ok {
		return 0
	}
	for _, msg := range list {
		m.forgetOwn(msg)
	}
	delete(m.data, sourceID)
	m.total -= len(list)
	m.dirty = true
	return len(list)
}

// AttachMedia backfills the media handle of a stored message once an
// asynchronous download finishes.
func (m *Messages) AttachMedia(sourceID, messageID, handle string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.data[sourceID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].MediaHandle = handle
			m.dirty = true
			return true
		}
	}
	return false
}

// IsOurMessage answers whether a message ID was sent by this instance.
func (m *Messages) IsOurMessage(messageID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ourIDs[messageID]
	return ok
}

// Total returns the global message count.
func (m *Messages) Total() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

// Save persists the history atomically. The dirty flag survives a
// failed write so the next tick retries.
func (m *Messages) Save() error {
	m.mu.Lock()
	snapshot := make(map[string][]Message, len(m.data))
	for sourceID, list := range m.data {
		snapshot[sourceID] = append([]Message(nil), list...)
	}
	m.dirty = false
	m.mu.Unlock()

	if err := saveJSON(m.path, snapshot); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}
	return nil
}

// Flush persists pending changes, if any.
func (m *Messages) Flush() error {
	m.mu.RLock()
	dirty := m.dirty
	m.mu.RUnlock()
	if !dirty {
		return nil
	}
	return m.Save()
}

// Run flushes dirty state every minute until the context ends.
func (m *Messages) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				m.logger.ErrorWithFields("Failed to flush messages", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

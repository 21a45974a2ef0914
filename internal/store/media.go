package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

const mediaIndexFile = "media_index.json"

// mimeExtensions maps the media types WhatsApp actually sends to file
// extensions. Anything else falls back to .bin.
var mimeExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"video/mp4":          ".mp4",
	"video/3gpp":         ".3gp",
	"video/quicktime":    ".mov",
	"audio/ogg":          ".ogg",
	"audio/mpeg":         ".mp3",
	"audio/mp4":          ".m4a",
	"audio/aac":          ".aac",
	"audio/amr":          ".amr",
	"audio/wav":          ".wav",
	"application/pdf":    ".pdf",
	"text/plain":         ".txt",
	"text/vcard":         ".vcf",
	"application/zip":    ".zip",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
}

// MediaEntry is one persisted index record.
type MediaEntry struct {
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	MessageID string `json:"messageId"`
	SavedAt   string `json:"savedAt"`
}

// MediaInfo is what Get hands to HTTP serving code.
type MediaInfo struct {
	FilePath string
	MimeType string
	Size     int64
}

// Media stores downloaded attachments on disk under bounded count and
// size, with a JSON index keyed by handle.
type Media struct {
	mu       sync.Mutex
	dir      string
	maxFiles int
	maxBytes int64
	index    map[string]MediaEntry
	seq      int
	logger   *logger.Logger
}

// NewMedia creates the store rooted at dir.
func NewMedia(dir string, maxFiles int, maxBytes int64, log *logger.Logger) *Media {
	if maxFiles <= 0 {
		maxFiles = 500
	}
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &Media{
		dir:      dir,
		maxFiles: maxFiles,
		maxBytes: maxBytes,
		index:    make(map[string]MediaEntry),
		logger:   log.WithModule("media-store"),
	}
}

// Load reads the index and rebuilds the handle sequence from the
// highest suffix seen.
func (m *Media) Load() error {
	var index map[string]MediaEntry
	if err := loadJSON(m.indexPath(), &index); err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("No media index found, starting empty")
			return nil
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.index = index
	m.seq = 0
	for handle := range index {
		if n := handleSeq(handle); n > m.seq {
			m.seq = n
		}
	}
	return nil
}

// handleSeq extracts the monotonic suffix a handle was minted with.
func handleSeq(handle string) int {
	if i := strings.LastIndex(handle, "_"); i >= 0 {
		if n, err := strconv.Atoi(handle[i+1:]); err == nil {
			return n
		}
	}
	return 0
}

// Save writes the payload to disk and returns the handle the message
// store keeps. Empty and oversized payloads are rejected.
func (m *Media) Save(messageID string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", errors.ErrMediaEmpty
	}
	if int64(len(data)) > m.maxBytes {
		return "", errors.ErrMediaTooLarge.WithDetails(fmt.Sprintf("%d bytes, limit %d", len(data), m.maxBytes))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	handle := fmt.Sprintf("%s_%d", sanitizeMessageID(messageID), m.seq)
	fileName := handle + extensionFor(mimeType)

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, fileName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	m.index[handle] = MediaEntry{
		FileName:  fileName,
		MimeType:  normalizeMime(mimeType),
		Size:      int64(len(data)),
		MessageID: messageID,
		SavedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	for len(m.index) > m.maxFiles {
		m.evictOldest()
	}

	if err := saveJSON(m.indexPath(), m.index); err != nil {
		return "", fmt.Errorf("failed to write media index: %w", err)
	}
	return handle, nil
}

// Get resolves a handle to the file on disk.
func (m *Media) Get(handle string) (MediaInfo, error) {
	m.mu.Lock()
	entry, ok := m.index[handle]
	m.mu.Unlock()
	if !ok {
		return MediaInfo{}, errors.ErrMediaNotFound
	}
	return MediaInfo{
		FilePath: filepath.Join(m.dir, entry.FileName),
		MimeType: entry.MimeType,
		Size:     entry.Size,
	}, nil
}

// Count returns how many files the index tracks.
func (m *Media) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

// evictOldest drops the entry with the lowest handle sequence along
// with its file. Callers hold the lock.
func (m *Media) evictOldest() {
	var oldestHandle string
	oldestSeq := -1
	for handle := range m.index {
		seq := handleSeq(handle)
		if oldestSeq < 0 || seq < oldestSeq {
			oldestHandle = handle
			oldestSeq = seq
		}
	}
	if oldestHandle == "" {
		return
	}
	entry := m.index[oldestHandle]
	if err := os.Remove(filepath.Join(m.dir, entry.FileName)); err != nil && !os.IsNotExist(err) {
		m.logger.WarnWithFields("Failed to remove evicted media file", map[string]interface{}{
			"file":  entry.FileName,
			"error": err.Error(),
		})
	}
	delete(m.index, oldestHandle)
}

func (m *Media) indexPath() string {
	return filepath.Join(m.dir, mediaIndexFile)
}

// sanitizeMessageID keeps handles filesystem-safe.
func sanitizeMessageID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}

func normalizeMime(mimeType string) string {
	mime := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

func extensionFor(mimeType string) string {
	if ext, ok := mimeExtensions[normalizeMime(mimeType)]; ok {
		return ext
	}
	return ".bin"
}

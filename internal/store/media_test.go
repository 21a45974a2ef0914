package store

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

func newTestMedia(t *testing.T, maxFiles int, maxBytes int64) *Media {
	t.Helper()
	return NewMedia(t.TempDir(), maxFiles, maxBytes, logger.New(logger.TestConfig()))
}

func TestMediaSave(t *testing.T) {
	m := newTestMedia(t, 10, 1024)

	handle, err := m.Save("ABC123", []byte("payload"), "image/jpeg")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(handle, "ABC123_") {
		t.Errorf("handle = %q, want message id prefix", handle)
	}

	info, err := m.Get(handle)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q", info.MimeType)
	}
	if info.Size != int64(len("payload")) {
		t.Errorf("Size = %d", info.Size)
	}
	if !strings.HasSuffix(info.FilePath, ".jpg") {
		t.Errorf("FilePath = %q, want .jpg extension", info.FilePath)
	}
	data, err := os.ReadFile(info.FilePath)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Error("stored bytes differ from the payload")
	}
}

func TestMediaSaveRejects(t *testing.T) {
	m := newTestMedia(t, 10, 16)

	if _, err := m.Save("id", nil, "image/png"); errors.GetAppError(err) != errors.ErrMediaEmpty {
		t.Errorf("empty payload error = %v", err)
	}
	if _, err := m.Save("id", make([]byte, 17), "image/png"); err == nil {
		t.Error("oversized payload accepted")
	} else if errors.GetAppError(err).Message != errors.ErrMediaTooLarge.Message {
		t.Errorf("oversized payload error = %v", err)
	}
}

func TestMediaHandleUniqueness(t *testing.T) {
	m := newTestMedia(t, 10, 1024)

	h1, err := m.Save("SAME", []byte("one"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	h2, err := m.Save("SAME", []byte("two"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if h1 == h2 {
		t.Errorf("handles collide: %q", h1)
	}
}

func TestMediaSanitizesMessageID(t *testing.T) {
	m := newTestMedia(t, 10, 1024)

	handle, err := m.Save("../../etc/passwd", []byte("x"), "text/plain")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if strings.ContainsAny(handle, "/.") {
		t.Errorf("handle %q carries path characters", handle)
	}
	info, err := m.Get(handle)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := os.Stat(info.FilePath); err != nil {
		t.Errorf("stored file missing: %v", err)
	}
}

func TestMediaExtensions(t *testing.T) {
	tests := []struct {
		name string
		mime string
		want string
	}{
		{name: "jpeg", mime: "image/jpeg", want: ".jpg"},
		{name: "ogg with codec params", mime: "audio/ogg; codecs=opus", want: ".ogg"},
		{name: "pdf", mime: "application/pdf", want: ".pdf"},
		{name: "uppercase", mime: "IMAGE/PNG", want: ".png"},
		{name: "unknown", mime: "application/x-mystery", want: ".bin"},
		{name: "empty", mime: "", want: ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extensionFor(tt.mime); got != tt.want {
				t.Errorf("extensionFor(%q) = %q, want %q", tt.mime, got, tt.want)
			}
		})
	}
}

func TestMediaEviction(t *testing.T) {
	m := newTestMedia(t, 2, 1024)

	h1, err := m.Save("first", []byte("1"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := m.Save("second", []byte("2"), "image/png"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := m.Save("third", []byte("3"), "image/png"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if m.Count() != 2 {
		t.Errorf("Count() = %d, want maxFiles", m.Count())
	}
	info1, err := m.Get(h1)
	if err == nil {
		t.Errorf("oldest entry still resolvable: %+v", info1)
	}
}

func TestMediaGetUnknown(t *testing.T) {
	m := newTestMedia(t, 10, 1024)
	if _, err := m.Get("nope_1"); errors.GetAppError(err) != errors.ErrMediaNotFound {
		t.Errorf("Get(unknown) error = %v", err)
	}
}

func TestMediaLoadRebuildsSequence(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(logger.TestConfig())

	m := NewMedia(dir, 10, 1024, log)
	if _, err := m.Save("a", []byte("1"), "image/png"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	h2, err := m.Save("b", []byte("2"), "image/png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := NewMedia(dir, 10, 1024, log)
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reopened.Count() != 2 {
		t.Errorf("Count() = %d after reload", reopened.Count())
	}
	if _, err := reopened.Get(h2); err != nil {
		t.Errorf("Get() after reload error = %v", err)
	}
	h3, err := reopened.Save("c", []byte("3"), "image/png")
	if err != nil {
		t.Fatalf("Save() after reload error = %v", err)
	}
	if h3 == h2 || !strings.HasSuffix(h3, "_3") {
		t.Errorf("sequence not rebuilt: new handle %q", h3)
	}
}

func TestMediaLoadMissingIndex(t *testing.T) {
	m := newTestMedia(t, 10, 1024)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() on a missing index error = %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d", m.Count())
	}
}

package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

func newTestRouter(t *testing.T) (*Router, *store.Stats) {
	t.Helper()
	log := logger.New(logger.TestConfig())
	stats := store.NewStats(filepath.Join(t.TempDir(), "stats.json"), 50, nil, log)
	return NewRouter(stats, log), stats
}

func TestRouteDispatchesRegisteredHandler(t *testing.T) {
	router, stats := newTestRouter(t)

	var seen envelope.Envelope
	router.Register(envelope.MessagesUpsert, func(ctx context.Context, env envelope.Envelope) Result {
		seen = env
		return Result{Success: true, Action: store.ActionForwarded}
	})

	env := envelope.New(envelope.MessagesUpsert, []byte(`{}`), "test")
	result := router.Route(context.Background(), env)
	if !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}
	if seen.Event != envelope.MessagesUpsert {
		t.Errorf("handler saw event %q", seen.Event)
	}
	if stats.Snapshot().Events[envelope.MessagesUpsert].Total != 1 {
		t.Error("dispatch did not count the event")
	}
}

func TestRouteGenericFallthrough(t *testing.T) {
	router, stats := newTestRouter(t)

	result := router.Route(context.Background(), envelope.New(envelope.ChatsUpsert, []byte(`{}`), "test"))
	if !result.Success || result.Action != store.ActionLogged {
		t.Fatalf("result = %+v", result)
	}
	if stats.Snapshot().Events[envelope.ChatsUpsert].Total != 1 {
		t.Error("unhandled event not counted")
	}
	recent, total := stats.Recent(1, 0, "")
	if total != 1 || recent[0].Action != store.ActionLogged {
		t.Errorf("recent = %+v, total = %d", recent, total)
	}
}

func TestRouteRecoversFromPanic(t *testing.T) {
	router, stats := newTestRouter(t)
	router.Register(envelope.MessagesUpsert, func(ctx context.Context, env envelope.Envelope) Result {
		panic("boom")
	})

	result := router.Route(context.Background(), envelope.New(envelope.MessagesUpsert, []byte(`{}`), "test"))
	if result.Success || result.Action != store.ActionFailed {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Error, "boom") {
		t.Errorf("error = %q", result.Error)
	}
	if stats.Snapshot().Events[envelope.MessagesUpsert].Total != 1 {
		t.Error("panicking event not counted")
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	router, stats := newTestRouter(t)

	events := make(chan envelope.Envelope, 2)
	events <- envelope.New(envelope.ChatsUpsert, []byte(`{}`), "test")
	events <- envelope.New(envelope.ChatsUpdate, []byte(`{}`), "test")
	close(events)

	done := make(chan struct{})
	go func() {
		router.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after channel close")
	}
	snap := stats.Snapshot()
	if snap.Events[envelope.ChatsUpsert].Total != 1 || snap.Events[envelope.ChatsUpdate].Total != 1 {
		t.Error("Run dropped queued events")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		router.Run(ctx, make(chan envelope.Envelope))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

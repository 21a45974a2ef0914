package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/mention"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/platform/logger"
)

const selfPhone = "972500000099"

type fixture struct {
	config   *store.Config
	stats    *store.Stats
	messages *store.Messages
	conn     *Connection
	handler  *MessageHandler
	router   *Router
}

func newFixture(t *testing.T, opts MessageOptions) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := logger.New(logger.TestConfig())

	config := store.NewConfig(filepath.Join(dir, "contacts.json"), "", log)
	stats := store.NewStats(filepath.Join(dir, "stats.json"), 50, nil, log)
	messages := store.NewMessages(filepath.Join(dir, "messages.json"), 100, 5000, log)
	conn := NewConnection(stats, nil, nil, log)
	conn.SetPhone(selfPhone)
	dispatcher := webhook.NewDispatcher(config, "zapfilter-test", "", nil, nil, log)
	detector := mention.NewDetector([]string{"דוד", "david"})
	handler := NewMessageHandler(config, stats, messages, dispatcher, detector, conn, nil, opts, log)

	router := NewRouter(stats, log)
	router.Register(envelope.MessagesUpsert, handler.HandleUpsert)
	router.Register(envelope.SendMessage, handler.HandleSend)
	router.Register(envelope.MessagesUpdate, handler.HandleUpdate)
	router.Register(envelope.PresenceUpdate, handler.HandlePresence)

	return &fixture{
		config:   config,
		stats:    stats,
		messages: messages,
		conn:     conn,
		handler:  handler,
		router:   router,
	}
}

func upsertEnv(remote, body string) envelope.Envelope {
	payload := fmt.Sprintf(`{"key":{"remoteJid":%q,"id":"MSG1"},"pushName":"Tester","message":{"conversation":%q},"messageTimestamp":1700000000}`, remote, body)
	return envelope.New(envelope.MessagesUpsert, []byte(payload), "test")
}

func countingServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestUpsertFiltersUnknownContact(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	server, hits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("972500000001@s.whatsapp.net", "hi"))
	if !result.Success || result.Action != store.ActionFiltered || result.Reason != ReasonNotAllowed {
		t.Fatalf("result = %+v", result)
	}

	snap := fx.stats.Snapshot()
	if snap.Events[envelope.MessagesUpsert].Filtered != 1 {
		t.Errorf("filtered = %d", snap.Events[envelope.MessagesUpsert].Filtered)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("filtered message reached the destination")
	}
	recent, _ := fx.stats.Recent(1, 0, "")
	if recent[0].Reason != ReasonNotAllowed {
		t.Errorf("recent reason = %q", recent[0].Reason)
	}
	if fx.messages.Total() != 0 {
		t.Error("filtered message was stored")
	}
}

func TestUpsertForwardsAllowedContact(t *testing.T) {
	fx := newFixture(t, MessageOptions{})

	var sourceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceID = r.Header.Get("X-Source-Id")
	}))
	defer server.Close()
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddContact(store.Contact{Phone: "972500000002", Name: "Alice"}); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("972500000002@s.whatsapp.net", "hello"))
	if !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}
	if sourceID != "972500000002" {
		t.Errorf("X-Source-Id = %q", sourceID)
	}

	snap := fx.stats.Snapshot()
	if snap.Events[envelope.MessagesUpsert].Forwarded != 1 {
		t.Errorf("forwarded = %d", snap.Events[envelope.MessagesUpsert].Forwarded)
	}
	msgs, _ := fx.messages.Get("972500000002", 10, 0)
	if len(msgs) != 1 || msgs[0].Body != "hello" || msgs[0].Type != "text" {
		t.Errorf("stored message = %+v", msgs)
	}
}

func TestUpsertTypeRouteWins(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	defServer, defHits := countingServer(t)
	vipServer, vipHits := countingServer(t)

	if err := fx.config.SetDefaultWebhook(defServer.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.SetTypeWebhooks(map[string]string{"VIP": vipServer.URL}); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddContact(store.Contact{Phone: "972500000003", Name: "Very Important", Type: "VIP"}); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("972500000003@s.whatsapp.net", "vip message"))
	if !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(vipHits) != 1 || atomic.LoadInt32(defHits) != 0 {
		t.Errorf("vip hits = %d, default hits = %d", *vipHits, *defHits)
	}
}

func TestUpsertNoDestinationIsSuccess(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	if err := fx.config.AddContact(store.Contact{Phone: "972500000004", Name: "Teammate", Type: "TEAM"}); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("972500000004@s.whatsapp.net", "no route"))
	if !result.Success || result.Reason != ReasonNoDestination {
		t.Fatalf("result = %+v", result)
	}

	snap := fx.stats.Snapshot()
	if snap.Events[envelope.MessagesUpsert].Forwarded != 1 {
		t.Errorf("forwarded = %d, allowed-but-unroutable still counts", snap.Events[envelope.MessagesUpsert].Forwarded)
	}
	recent, _ := fx.stats.Recent(1, 0, "")
	if recent[0].Reason != ReasonNoDestination {
		t.Errorf("recent reason = %q", recent[0].Reason)
	}
}

func TestUpsertGroupNormalization(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	server, hits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddGroup(store.Group{GroupID: "120363000000000000", Name: "Ops"}); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("120363000000000000@g.us", "group message"))
	if !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("destination hits = %d", *hits)
	}
	msgs, _ := fx.messages.Get("120363000000000000", 10, 0)
	if len(msgs) != 1 {
		t.Errorf("group history holds %d messages", len(msgs))
	}
}

func TestUpsertStatusBroadcastFiltered(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	server, hits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("status@broadcast", "story"))
	if !result.Success || result.Reason != ReasonStatusBroadcast {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("status broadcast reached the destination")
	}
	if fx.stats.Snapshot().Events[envelope.MessagesUpsert].Filtered != 1 {
		t.Error("status broadcast not counted as filtered")
	}
}

func TestUpsertSelfAlwaysAllowed(t *testing.T) {
	fx := newFixture(t, MessageOptions{})

	var entityType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entityType = r.Header.Get("X-Entity-Type")
	}))
	defer server.Close()
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv(selfPhone+"@s.whatsapp.net", "note to self"))
	if !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}
	if entityType != EntityTypeSelf {
		t.Errorf("X-Entity-Type = %q, want %q", entityType, EntityTypeSelf)
	}
}

func TestUpsertLIDResolution(t *testing.T) {
	t.Run("payload hint", func(t *testing.T) {
		fx := newFixture(t, MessageOptions{})
		server, hits := countingServer(t)
		if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
			t.Fatal(err)
		}
		if err := fx.config.AddContact(store.Contact{Phone: "972500000005", Name: "Hinted"}); err != nil {
			t.Fatal(err)
		}

		payload := `{"key":{"remoteJid":"199880000000001@lid","id":"MSG2","senderPn":"972500000005@s.whatsapp.net"},"message":{"conversation":"via lid"}}`
		env := envelope.New(envelope.MessagesUpsert, []byte(payload), "test")
		result := fx.router.Route(context.Background(), env)
		if !result.Success || result.Action != store.ActionForwarded {
			t.Fatalf("result = %+v", result)
		}
		if atomic.LoadInt32(hits) != 1 {
			t.Error("resolved contact not forwarded")
		}
		msgs, _ := fx.messages.Get("972500000005", 10, 0)
		if len(msgs) != 1 {
			t.Error("message not stored under the resolved phone")
		}
	})

	t.Run("resolver fallback", func(t *testing.T) {
		fx := newFixture(t, MessageOptions{})
		server, hits := countingServer(t)
		if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
			t.Fatal(err)
		}
		if err := fx.config.AddContact(store.Contact{Phone: "972500000006", Name: "Resolved"}); err != nil {
			t.Fatal(err)
		}
		fx.handler.resolver = resolverFunc(func(ctx context.Context, lid string) (string, bool) {
			if lid == "199880000000002" {
				return "972500000006", true
			}
			return "", false
		})

		payload := `{"key":{"remoteJid":"199880000000002@lid","id":"MSG3"},"message":{"conversation":"via resolver"}}`
		env := envelope.New(envelope.MessagesUpsert, []byte(payload), "test")
		if result := fx.router.Route(context.Background(), env); !result.Success || result.Action != store.ActionForwarded {
			t.Fatalf("result = %+v", result)
		}
		if atomic.LoadInt32(hits) != 1 {
			t.Error("resolver-resolved contact not forwarded")
		}
	})

	t.Run("linked id in contact entry", func(t *testing.T) {
		fx := newFixture(t, MessageOptions{})
		server, hits := countingServer(t)
		if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
			t.Fatal(err)
		}
		if err := fx.config.AddContact(store.Contact{Phone: "972500000007", Name: "Linked", LinkedID: "199880000000003"}); err != nil {
			t.Fatal(err)
		}

		payload := `{"key":{"remoteJid":"199880000000003@lid","id":"MSG4"},"message":{"conversation":"by linked id"}}`
		env := envelope.New(envelope.MessagesUpsert, []byte(payload), "test")
		if result := fx.router.Route(context.Background(), env); !result.Success || result.Action != store.ActionForwarded {
			t.Fatalf("result = %+v", result)
		}
		if atomic.LoadInt32(hits) != 1 {
			t.Error("linked-id contact not forwarded")
		}
	})
}

type resolverFunc func(ctx context.Context, lid string) (string, bool)

func (f resolverFunc) ResolveLID(ctx context.Context, lid string) (string, bool) { return f(ctx, lid) }

func TestUpsertUnwrapsWrappedContent(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	if err := fx.config.AddContact(store.Contact{Phone: "972500000008", Name: "Wrapped"}); err != nil {
		t.Fatal(err)
	}

	payload := `{"key":{"remoteJid":"972500000008@s.whatsapp.net","id":"MSG5"},"message":{"ephemeralMessage":{"message":{"extendedTextMessage":{"text":"hidden text"}}}}}`
	env := envelope.New(envelope.MessagesUpsert, []byte(payload), "test")
	if result := fx.router.Route(context.Background(), env); !result.Success {
		t.Fatalf("result = %+v", result)
	}

	msgs, _ := fx.messages.Get("972500000008", 10, 0)
	if len(msgs) != 1 || msgs[0].Body != "hidden text" || msgs[0].Type != "text" {
		t.Errorf("stored message = %+v", msgs)
	}
}

func TestUpsertSkipsProtocolOnly(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	if err := fx.config.AddContact(store.Contact{Phone: "972500000009", Name: "Proto"}); err != nil {
		t.Fatal(err)
	}

	payload := `{"key":{"remoteJid":"972500000009@s.whatsapp.net","id":"MSG6"},"message":{"protocolMessage":{"type":1}}}`
	env := envelope.New(envelope.MessagesUpsert, []byte(payload), "test")
	result := fx.router.Route(context.Background(), env)
	if !result.Success || result.Reason != ReasonProtocolOnly {
		t.Fatalf("result = %+v", result)
	}
	if fx.messages.Total() != 0 {
		t.Error("protocol-only message was stored")
	}
	if fx.stats.Snapshot().Events[envelope.MessagesUpsert].Filtered != 0 {
		t.Error("protocol-only message counted as filtered")
	}
}

func TestUpsertMalformedPayload(t *testing.T) {
	fx := newFixture(t, MessageOptions{})

	env := envelope.New(envelope.MessagesUpsert, []byte(`{"key": "not an object"}`), "test")
	result := fx.router.Route(context.Background(), env)
	if result.Success || result.Action != store.ActionFailed {
		t.Fatalf("result = %+v", result)
	}
	if fx.stats.Snapshot().Events[envelope.MessagesUpsert].Failed != 1 {
		t.Error("malformed payload not counted as failed")
	}
}

func TestMentionNotification(t *testing.T) {
	fx := newFixture(t, MessageOptions{
		MentionsEnabled:   true,
		MentionWebhookURL: "",
		MentionToken:      "tok",
	})

	mentionHit := make(chan map[string]interface{}, 1)
	mentionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)
		mentionHit <- payload
	}))
	defer mentionServer.Close()
	fx.handler.opts.MentionWebhookURL = mentionServer.URL

	defServer, defHits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(defServer.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddGroup(store.Group{GroupID: "120363000000000001", Name: "Chatter"}); err != nil {
		t.Fatal(err)
	}

	env := upsertEnv("120363000000000001@g.us", "hello david")
	if result := fx.router.Route(context.Background(), env); !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}

	select {
	case payload := <-mentionHit:
		if payload["method"] != mention.MethodKeyword {
			t.Errorf("mention method = %v", payload["method"])
		}
		if payload["groupId"] != "120363000000000001" {
			t.Errorf("mention groupId = %v", payload["groupId"])
		}
		if _, ok := payload["event"]; !ok {
			t.Error("mention payload missing the original event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("mention webhook never hit")
	}
	if atomic.LoadInt32(defHits) != 1 {
		t.Errorf("default destination hits = %d", *defHits)
	}
}

func TestMentionsOnlyShortCircuit(t *testing.T) {
	fx := newFixture(t, MessageOptions{
		MentionsEnabled: true,
		MentionsOnly:    true,
	})
	defServer, defHits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(defServer.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddGroup(store.Group{GroupID: "120363000000000002", Name: "Quiet"}); err != nil {
		t.Fatal(err)
	}

	env := upsertEnv("120363000000000002@g.us", "nothing interesting")
	result := fx.router.Route(context.Background(), env)
	if !result.Success || result.Reason != ReasonNoMention {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(defHits) != 0 {
		t.Error("unmentioned group message reached the default destination")
	}
	msgs, _ := fx.messages.Get("120363000000000002", 10, 0)
	if len(msgs) != 1 {
		t.Error("message not stored despite the mention short-circuit")
	}
}

func TestSendMessageStoredNotForwarded(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	server, hits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddContact(store.Contact{Phone: "972500000010", Name: "Recipient"}); err != nil {
		t.Fatal(err)
	}

	payload := `{"key":{"remoteJid":"972500000010@s.whatsapp.net","id":"OUT1","fromMe":true},"message":{"conversation":"sent by us"}}`
	env := envelope.New(envelope.SendMessage, []byte(payload), "test")
	result := fx.router.Route(context.Background(), env)
	if !result.Success || result.Action != store.ActionStored {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("outgoing message forwarded with ForwardOutgoing disabled")
	}

	msgs, _ := fx.messages.Get("972500000010", 10, 0)
	if len(msgs) != 1 || !msgs[0].FromSelf {
		t.Errorf("stored outgoing message = %+v", msgs)
	}
	if !fx.messages.IsOurMessage("OUT1") {
		t.Error("outgoing id not tracked")
	}
}

func TestSendMessageForwardedWhenEnabled(t *testing.T) {
	fx := newFixture(t, MessageOptions{ForwardOutgoing: true})
	server, hits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddContact(store.Contact{Phone: "972500000011", Name: "Recipient"}); err != nil {
		t.Fatal(err)
	}

	payload := `{"key":{"remoteJid":"972500000011@s.whatsapp.net","id":"OUT2","fromMe":true},"message":{"conversation":"echoed"}}`
	env := envelope.New(envelope.SendMessage, []byte(payload), "test")
	if result := fx.router.Route(context.Background(), env); !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("destination hits = %d", *hits)
	}
}

func TestUpdateEventsGated(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	server, hits := countingServer(t)
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddContact(store.Contact{Phone: "972500000012", Name: "Updater"}); err != nil {
		t.Fatal(err)
	}

	payload := `{"key":{"remoteJid":"972500000012@s.whatsapp.net","id":"UPD1"},"update":{"status":"READ"}}`
	env := envelope.New(envelope.MessagesUpdate, []byte(payload), "test")
	result := fx.router.Route(context.Background(), env)
	if !result.Success || result.Reason != ReasonUpdatesDisabled {
		t.Fatalf("result = %+v", result)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("update forwarded while disabled")
	}

	fx.handler.opts.ForwardUpdates = true
	if result := fx.router.Route(context.Background(), env); !result.Success || result.Action != store.ActionForwarded {
		t.Fatalf("result after enabling = %+v", result)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("destination hits = %d after enabling", *hits)
	}
}

func TestPresenceIgnoredByDefault(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	env := envelope.New(envelope.PresenceUpdate, []byte(`{"id":"972500000013@s.whatsapp.net","presences":{}}`), "test")

	result := fx.router.Route(context.Background(), env)
	if !result.Success || result.Action != "ignored" {
		t.Fatalf("result = %+v", result)
	}
	if _, total := fx.stats.Recent(10, 0, ""); total != 0 {
		t.Error("ignored presence logged an event record")
	}

	fx.handler.opts.LogPresence = true
	if result := fx.router.Route(context.Background(), env); result.Action != store.ActionLogged {
		t.Fatalf("result with LogPresence = %+v", result)
	}
	if _, total := fx.stats.Recent(10, 0, ""); total != 1 {
		t.Error("presence not logged when enabled")
	}
}

func TestForwardFailureBooksFailed(t *testing.T) {
	fx := newFixture(t, MessageOptions{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	if err := fx.config.SetDefaultWebhook(server.URL); err != nil {
		t.Fatal(err)
	}
	if err := fx.config.AddContact(store.Contact{Phone: "972500000014", Name: "Unlucky"}); err != nil {
		t.Fatal(err)
	}

	result := fx.router.Route(context.Background(), upsertEnv("972500000014@s.whatsapp.net", "doomed"))
	if result.Success || result.Action != store.ActionFailed {
		t.Fatalf("result = %+v", result)
	}
	snap := fx.stats.Snapshot()
	if snap.Events[envelope.MessagesUpsert].Failed != 1 {
		t.Errorf("failed = %d", snap.Events[envelope.MessagesUpsert].Failed)
	}
	recent, _ := fx.stats.Recent(1, 0, "")
	if recent[0].Action != store.ActionFailed || recent[0].Error == "" {
		t.Errorf("recent record = %+v", recent[0])
	}
}

package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"zapfilter/internal/adapters/metrics"
	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/mention"
	"zapfilter/internal/pipeline"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/platform/config"
	"zapfilter/platform/logger"
)

// testServer bundles the assembled HTTP surface with the pieces tests
// poke at directly.
type testServer struct {
	handler http.Handler
	store   *store.Config
	dir     string
}

// newTestServer builds the full surface over real stores in a temp
// dir. envWebhookURL plays the role of WEBHOOK_URL.
func newTestServer(t *testing.T, appCfg *config.Config, envWebhookURL string) *testServer {
	t.Helper()

	if appCfg == nil {
		appCfg = &config.Config{AdminUsername: "admin"}
	}

	dir := t.TempDir()
	log := logger.New(logger.TestConfig())
	collector := metrics.NewCollector()

	configStore := store.NewConfig(filepath.Join(dir, "contacts.json"), envWebhookURL, log)
	stats := store.NewStats(filepath.Join(dir, "stats.json"), 50, collector, log)
	messages := store.NewMessages(filepath.Join(dir, "messages.json"), 10, 100, log)
	media := store.NewMedia(filepath.Join(dir, "media"), 10, 1<<20, log)

	if err := configStore.Load(); err != nil {
		t.Fatalf("load config store: %v", err)
	}
	if err := stats.Load(); err != nil {
		t.Fatalf("load stats store: %v", err)
	}
	if err := messages.Load(); err != nil {
		t.Fatalf("load message store: %v", err)
	}
	if err := media.Load(); err != nil {
		t.Fatalf("load media store: %v", err)
	}

	alerts := webhook.NewAlerts("", "", "test", stats, log)
	dispatcher := webhook.NewDispatcher(configStore, "test", "", alerts, collector, log)
	conn := pipeline.NewConnection(stats, alerts, collector, log)

	msgHandler := pipeline.NewMessageHandler(
		configStore, stats, messages, dispatcher,
		mention.NewDetector(nil), conn, nil,
		pipeline.MessageOptions{}, log,
	)

	events := pipeline.NewRouter(stats, log)
	events.Register(envelope.MessagesUpsert, msgHandler.HandleUpsert)
	events.Register(envelope.SendMessage, msgHandler.HandleSend)
	events.Register(envelope.MessagesUpdate, msgHandler.HandleUpdate)
	events.Register(envelope.ConnectionUpdate, conn.HandleUpdate)
	events.Register(envelope.QRCodeUpdated, conn.HandleQR)

	deps := &Deps{
		Config:     appCfg,
		Logger:     log,
		Store:      configStore,
		Stats:      stats,
		Messages:   messages,
		Media:      media,
		Dispatcher: dispatcher,
		Connection: conn,
		Pipeline:   events,
		Metrics:    metrics.Handler(),
		Version:    "test",
	}
	return &testServer{handler: SetupRoutes(deps), store: configStore, dir: dir}
}

func (ts *testServer) do(method, path, body string, creds ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(creds) == 2 {
		req.SetBasicAuth(creds[0], creds[1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

type ingressResponse struct {
	Status string          `json:"status"`
	Event  string          `json:"event"`
	Result pipeline.Result `json:"result"`
}

const upsertBody = `{"key":{"remoteJid":"972501234567@s.whatsapp.net","id":"MSG1"},"pushName":"Alice","message":{"conversation":"hello"},"messageTimestamp":1700000000}`

func TestIngressForwardsAuthorizedMessage(t *testing.T) {
	var hits int32
	destination := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer destination.Close()

	ts := newTestServer(t, nil, destination.URL)
	if err := ts.store.AddContact(store.Contact{Phone: "972501234567", Name: "Alice"}); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	rec := ts.do(http.MethodPost, "/filter", upsertBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	var resp ingressResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "processed" {
		t.Errorf("status = %q, want processed", resp.Status)
	}
	if resp.Event != envelope.MessagesUpsert {
		t.Errorf("event = %q, want %q", resp.Event, envelope.MessagesUpsert)
	}
	if resp.Result.Action != store.ActionForwarded {
		t.Errorf("action = %q, want %q", resp.Result.Action, store.ActionForwarded)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("destination hits = %d, want 1", got)
	}
}

func TestIngressFiltersUnknownSender(t *testing.T) {
	var hits int32
	destination := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer destination.Close()

	ts := newTestServer(t, nil, destination.URL)

	rec := ts.do(http.MethodPost, "/filter", upsertBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ingressResponse
	decodeBody(t, rec, &resp)
	if resp.Result.Action != store.ActionFiltered {
		t.Errorf("action = %q, want %q", resp.Result.Action, store.ActionFiltered)
	}
	if got := atomic.LoadInt32(&hits); got != 0 {
		t.Errorf("destination hits = %d, want 0", got)
	}
}

func TestIngressNamedEvent(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodPost, "/filter/connection-update", `{"state":"connected"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ingressResponse
	decodeBody(t, rec, &resp)
	if resp.Event != envelope.ConnectionUpdate {
		t.Errorf("event = %q, want %q", resp.Event, envelope.ConnectionUpdate)
	}
	if !resp.Result.Success {
		t.Errorf("result not successful: %+v", resp.Result)
	}
}

func TestIngressRejectsInvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodPost, "/filter", `{"key":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeBody(t, rec, &resp)
	if resp.Success {
		t.Error("success = true on a 400")
	}
	if resp.Error == "" {
		t.Error("missing error message")
	}
}

func TestIngressPeriodicConfigSave(t *testing.T) {
	ts := newTestServer(t, nil, "")
	statePath := filepath.Join(ts.dir, "contacts.json")

	for i := 0; i < 99; i++ {
		ts.do(http.MethodPost, "/filter", `{"state":"connecting"}`)
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Fatalf("config file written before the save threshold (err %v)", err)
	}

	ts.do(http.MethodPost, "/filter", `{"state":"connecting"}`)
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("config file missing after 100 events: %v", err)
	}
}

func TestAdminAuth(t *testing.T) {
	cfg := &config.Config{AdminUsername: "admin", AdminPassword: "pw"}
	ts := newTestServer(t, cfg, "")

	tests := []struct {
		name       string
		creds      []string
		wantStatus int
	}{
		{name: "no credentials", wantStatus: http.StatusUnauthorized},
		{name: "wrong password", creds: []string{"admin", "guess"}, wantStatus: http.StatusUnauthorized},
		{name: "valid", creds: []string{"admin", "pw"}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/stats", "", tt.creds...)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	// Ingress and probes stay open even with admin credentials set.
	if rec := ts.do(http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/filter", `{"state":"open"}`); rec.Code != http.StatusOK {
		t.Errorf("/filter status = %d, want 200", rec.Code)
	}
}

func TestAdminOpenWithoutPassword(t *testing.T) {
	ts := newTestServer(t, nil, "")

	if rec := ts.do(http.MethodGet, "/api/stats", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestContactLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodPost, "/api/contacts", `{"phone":"972501234567","name":"Alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %q)", rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodPost, "/api/contacts", `{"phone":"+972-50-123-4567","name":"Alias"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/contacts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list struct {
		Data struct {
			Contacts []store.Contact `json:"contacts"`
			Total    int             `json:"total"`
		} `json:"data"`
	}
	decodeBody(t, rec, &list)
	if list.Data.Total != 1 {
		t.Fatalf("total = %d, want 1", list.Data.Total)
	}

	rec = ts.do(http.MethodPut, "/api/contacts/972501234567", `{"name":"Alice Cohen"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodDelete, "/api/contacts/972501234567", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	rec = ts.do(http.MethodDelete, "/api/contacts/972501234567", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestWebhookAdmin(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodPut, "/api/webhooks/default", `{"url":"https://example.com/hook"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set default status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/api/webhooks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data struct {
			DefaultWebhook string `json:"defaultWebhook"`
			EnvManaged     bool   `json:"envManaged"`
		} `json:"data"`
	}
	decodeBody(t, rec, &resp)
	if resp.Data.DefaultWebhook != "https://example.com/hook" {
		t.Errorf("defaultWebhook = %q, want the configured URL", resp.Data.DefaultWebhook)
	}
	if resp.Data.EnvManaged {
		t.Error("envManaged = true without an environment URL")
	}

	rec = ts.do(http.MethodPut, "/api/webhooks/default", `{"url":"not a url"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad URL status = %d, want 400", rec.Code)
	}
}

func TestSendUnavailableWithoutClient(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodPost, "/api/send/text", `{"to":"972501234567","body":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestMediaNotFound(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodGet, "/api/media/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestIPAllowlist(t *testing.T) {
	// httptest requests carry RemoteAddr 192.0.2.1:1234.
	blocked := newTestServer(t, &config.Config{AdminUsername: "admin", IPAllowlist: []string{"203.0.113.7"}}, "")
	if rec := blocked.do(http.MethodGet, "/health", ""); rec.Code != http.StatusForbidden {
		t.Errorf("blocked /health status = %d, want 403", rec.Code)
	}
	if rec := blocked.do(http.MethodPost, "/filter", `{"state":"open"}`); rec.Code != http.StatusForbidden {
		t.Errorf("blocked /filter status = %d, want 403", rec.Code)
	}

	allowed := newTestServer(t, &config.Config{AdminUsername: "admin", IPAllowlist: []string{"192.0.2.0/24"}}, "")
	if rec := allowed.do(http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("allowed /health status = %d, want 200", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Version string `json:"version"`
	}
	decodeBody(t, rec, &health)
	if health.Status != "ok" || health.Service != "zapfilter" || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}

	rec = ts.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "zapfilter_") {
		t.Error("metrics body missing zapfilter counters")
	}
}

func TestStatsReflectIngress(t *testing.T) {
	ts := newTestServer(t, nil, "")

	ts.do(http.MethodPost, "/filter", upsertBody)
	ts.do(http.MethodPost, "/filter/connection-update", `{"state":"connected"}`)

	rec := ts.do(http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data store.StatsSnapshot `json:"data"`
	}
	decodeBody(t, rec, &resp)
	if resp.Data.TotalEvents < 2 {
		t.Errorf("totalEvents = %d, want at least 2", resp.Data.TotalEvents)
	}

	rec = ts.do(http.MethodGet, "/api/events?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d, want 200", rec.Code)
	}
	var events struct {
		Data struct {
			Events []store.EventRecord `json:"events"`
			Total  int                 `json:"total"`
		} `json:"data"`
	}
	decodeBody(t, rec, &events)
	if events.Data.Total == 0 {
		t.Error("no recent events recorded")
	}
}

func TestConnectionEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, "")

	ts.do(http.MethodPost, "/filter/qrcode-updated", `{"qrcode":"PAIR-ME"}`)

	rec := ts.do(http.MethodGet, "/api/qr", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/qr status = %d, want 200", rec.Code)
	}
	var qr struct {
		Data struct {
			HasQR bool   `json:"hasQr"`
			Code  string `json:"code"`
		} `json:"data"`
	}
	decodeBody(t, rec, &qr)
	if !qr.Data.HasQR || qr.Data.Code != "PAIR-ME" {
		t.Errorf("qr = %+v, want the held code", qr.Data)
	}

	rec = ts.do(http.MethodGet, "/api/connection", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/connection status = %d, want 200", rec.Code)
	}
	var status struct {
		Data pipeline.ConnectionStatus `json:"data"`
	}
	decodeBody(t, rec, &status)
	if status.Data.State != pipeline.StateWaitingForPairing {
		t.Errorf("state = %q, want %q", status.Data.State, pipeline.StateWaitingForPairing)
	}
}

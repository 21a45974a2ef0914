package store

import (
	"net/http"
	"path/filepath"
	"testing"

	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

func newTestConfig(t *testing.T, envWebhookURL string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.json")
	return NewConfig(path, envWebhookURL, logger.New(logger.TestConfig()))
}

func appCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	return errors.GetAppError(err).Code
}

func TestAddContact(t *testing.T) {
	tests := []struct {
		name     string
		contact  Contact
		wantErr  bool
		wantCode int
	}{
		{
			name:    "valid",
			contact: Contact{Phone: "972501234567", Name: "Alice"},
		},
		{
			name:    "formatted phone is normalized",
			contact: Contact{Phone: "+972 50-765-4321", Name: "Bob"},
		},
		{
			name:     "phone too short",
			contact:  Contact{Phone: "12345", Name: "Short"},
			wantErr:  true,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "name too short",
			contact:  Contact{Phone: "972501112222", Name: "A"},
			wantErr:  true,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown type",
			contact:  Contact{Phone: "972501113333", Name: "Carol", Type: "ALIEN"},
			wantErr:  true,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t, "")
			err := cfg.AddContact(tt.contact)
			if tt.wantErr {
				if got := appCode(t, err); got != tt.wantCode {
					t.Errorf("AddContact() code = %d, want %d", got, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddContact() error = %v", err)
			}
			contacts := cfg.Contacts()
			if len(contacts) != 1 {
				t.Fatalf("expected 1 contact, got %d", len(contacts))
			}
			if contacts[0].Type != DefaultContactType {
				t.Errorf("default type = %q, want %q", contacts[0].Type, DefaultContactType)
			}
		})
	}
}

func TestAddContactDuplicate(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice"}); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	err := cfg.AddContact(Contact{Phone: "+972-50-123-4567", Name: "Alias"})
	if err != errors.ErrContactExists {
		t.Errorf("AddContact() error = %v, want ErrContactExists", err)
	}
}

func TestAddContactCustomType(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice", Type: "FAMILY"}); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
	if err := cfg.SetCustomTypes([]string{"FAMILY"}, nil); err != nil {
		t.Fatalf("SetCustomTypes() error = %v", err)
	}
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice", Type: "FAMILY"}); err != nil {
		t.Errorf("AddContact() error = %v after registering custom type", err)
	}
}

func TestUpdateContact(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice"}); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	if err := cfg.UpdateContact("972501234567", Contact{Name: "Alice B", Type: "VIP", LinkedID: "123456789012345"}); err != nil {
		t.Fatalf("UpdateContact() error = %v", err)
	}
	contacts := cfg.Contacts()
	if contacts[0].Phone != "972501234567" {
		t.Errorf("phone changed to %q, keys are immutable", contacts[0].Phone)
	}
	if contacts[0].Name != "Alice B" || contacts[0].Type != "VIP" {
		t.Errorf("update not applied: %+v", contacts[0])
	}

	if err := cfg.UpdateContact("972599999999", Contact{Name: "Ghost"}); err != errors.ErrContactNotFound {
		t.Errorf("UpdateContact() error = %v, want ErrContactNotFound", err)
	}
}

func TestDeleteContact(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice"}); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	if err := cfg.DeleteContact("+972 50 123 4567"); err != nil {
		t.Fatalf("DeleteContact() error = %v", err)
	}
	if len(cfg.Contacts()) != 0 {
		t.Error("contact still present after delete")
	}
	if err := cfg.DeleteContact("972501234567"); err != errors.ErrContactNotFound {
		t.Errorf("DeleteContact() error = %v, want ErrContactNotFound", err)
	}
}

func TestAddGroup(t *testing.T) {
	tests := []struct {
		name    string
		group   Group
		wantErr bool
	}{
		{name: "valid", group: Group{GroupID: "120363041234567890", Name: "Ops"}},
		{name: "suffix stripped", group: Group{GroupID: "120363041234567891@g.us", Name: "Dev"}},
		{name: "too short", group: Group{GroupID: "12345", Name: "Tiny"}, wantErr: true},
		{name: "non numeric", group: Group{GroupID: "abc-not-a-group-id", Name: "Odd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t, "")
			err := cfg.AddGroup(tt.group)
			if tt.wantErr {
				if err == nil {
					t.Error("AddGroup() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("AddGroup() error = %v", err)
			}
			groups := cfg.Groups()
			if len(groups) != 1 {
				t.Fatalf("expected 1 group, got %d", len(groups))
			}
			if groups[0].Type != DefaultGroupType {
				t.Errorf("default type = %q, want %q", groups[0].Type, DefaultGroupType)
			}
		})
	}
}

func TestGroupLifecycle(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.AddGroup(Group{GroupID: "120363041234567890@g.us", Name: "Ops"}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	if err := cfg.AddGroup(Group{GroupID: "120363041234567890", Name: "Dup"}); err != errors.ErrGroupExists {
		t.Errorf("AddGroup() error = %v, want ErrGroupExists", err)
	}
	if err := cfg.UpdateGroup("120363041234567890", Group{Name: "Ops Renamed", Type: "TEAM"}); err != nil {
		t.Fatalf("UpdateGroup() error = %v", err)
	}
	if got := cfg.Groups()[0].Name; got != "Ops Renamed" {
		t.Errorf("name = %q after update", got)
	}
	if n := cfg.Groups()[0].Type; n != "TEAM" {
		t.Errorf("type = %q after update", n)
	}
	if err := cfg.DeleteGroup("120363041234567890@g.us"); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	if err := cfg.DeleteGroup("120363041234567890"); err != errors.ErrGroupNotFound {
		t.Errorf("DeleteGroup() error = %v, want ErrGroupNotFound", err)
	}
}

func TestFindContactByPhone(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice", LinkedID: "199884433221100"}); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	tests := []struct {
		name   string
		remote string
		want   bool
	}{
		{name: "bare phone", remote: "972501234567", want: true},
		{name: "jid suffix", remote: "972501234567@s.whatsapp.net", want: true},
		{name: "formatted", remote: "+972 50-123-4567", want: true},
		{name: "linked id", remote: "199884433221100@lid", want: true},
		{name: "unknown", remote: "972599999999", want: false},
		{name: "empty", remote: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := cfg.FindContactByPhone(tt.remote)
			if ok != tt.want {
				t.Errorf("FindContactByPhone(%q) = %v, want %v", tt.remote, ok, tt.want)
			}
		})
	}
}

func TestDefaultWebhookPrecedence(t *testing.T) {
	cfg := newTestConfig(t, "https://env.example.com/hook")
	if err := cfg.SetDefaultWebhook("https://file.example.com/hook"); err != nil {
		t.Fatalf("SetDefaultWebhook() error = %v", err)
	}
	if got := cfg.DefaultWebhook(); got != "https://env.example.com/hook" {
		t.Errorf("DefaultWebhook() = %q, env must win", got)
	}

	cfg = newTestConfig(t, "")
	if err := cfg.SetDefaultWebhook("https://file.example.com/hook"); err != nil {
		t.Fatalf("SetDefaultWebhook() error = %v", err)
	}
	if got := cfg.DefaultWebhook(); got != "https://file.example.com/hook" {
		t.Errorf("DefaultWebhook() = %q", got)
	}
	if err := cfg.SetDefaultWebhook(""); err != nil {
		t.Fatalf("SetDefaultWebhook(empty) error = %v", err)
	}
	if got := cfg.DefaultWebhook(); got != "" {
		t.Errorf("DefaultWebhook() = %q after clear", got)
	}
}

func TestSetDefaultWebhookRejectsBadURL(t *testing.T) {
	cfg := newTestConfig(t, "")
	for _, raw := range []string{"not-a-url", "ftp://example.com/x", "https://"} {
		if err := cfg.SetDefaultWebhook(raw); err == nil {
			t.Errorf("SetDefaultWebhook(%q) accepted an invalid URL", raw)
		}
	}
}

func TestTypeWebhooks(t *testing.T) {
	cfg := newTestConfig(t, "")
	routes := map[string]string{
		"VIP":  "https://vip.example.com/hook",
		"TEAM": "https://team.example.com/hook",
	}
	if err := cfg.SetTypeWebhooks(routes); err != nil {
		t.Fatalf("SetTypeWebhooks() error = %v", err)
	}
	if got := cfg.TypeWebhook("VIP"); got != routes["VIP"] {
		t.Errorf("TypeWebhook(VIP) = %q", got)
	}
	if got := cfg.TypeWebhook("BUSINESS"); got != "" {
		t.Errorf("TypeWebhook(BUSINESS) = %q, want empty", got)
	}
	if err := cfg.SetTypeWebhooks(map[string]string{"VIP": "nope"}); err == nil {
		t.Error("SetTypeWebhooks() accepted an invalid URL")
	}
}

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	log := logger.New(logger.TestConfig())

	cfg := NewConfig(path, "", log)
	if err := cfg.AddContact(Contact{Phone: "972501234567", Name: "Alice", Type: "VIP"}); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	if err := cfg.AddGroup(Group{GroupID: "120363041234567890@g.us", Name: "Ops"}); err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	if err := cfg.SetDefaultWebhook("https://file.example.com/hook"); err != nil {
		t.Fatalf("SetDefaultWebhook() error = %v", err)
	}
	if err := cfg.SetTypeWebhooks(map[string]string{"VIP": "https://vip.example.com/hook"}); err != nil {
		t.Fatalf("SetTypeWebhooks() error = %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewConfig(path, "", log)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Contacts()) != 1 || loaded.Contacts()[0].Phone != "972501234567" {
		t.Errorf("contacts after reload: %+v", loaded.Contacts())
	}
	if len(loaded.Groups()) != 1 || loaded.Groups()[0].GroupID != "120363041234567890" {
		t.Errorf("groups after reload: %+v", loaded.Groups())
	}
	if got := loaded.DefaultWebhook(); got != "https://file.example.com/hook" {
		t.Errorf("DefaultWebhook() = %q after reload", got)
	}
	if got := loaded.TypeWebhook("VIP"); got != "https://vip.example.com/hook" {
		t.Errorf("TypeWebhook(VIP) = %q after reload", got)
	}
}

func TestConfigSaveOmitsEnvWebhook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	log := logger.New(logger.TestConfig())

	cfg := NewConfig(path, "https://env.example.com/hook", log)
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewConfig(path, "", log)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loaded.DefaultWebhook(); got != "" {
		t.Errorf("DefaultWebhook() = %q, env URL must not be persisted", got)
	}
}

func TestConfigLoadMissingFile(t *testing.T) {
	cfg := newTestConfig(t, "")
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() on a missing file error = %v", err)
	}
	if len(cfg.Contacts()) != 0 || len(cfg.Groups()) != 0 {
		t.Error("expected an empty store")
	}
}

func TestConfigLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	raw := `{
		"allowedNumbers": [{"phone": "+972 50-123-4567", "name": "Alice"}],
		"allowedGroups": [{"groupId": "120363041234567890@g.us", "name": "Ops"}]
	}`
	if err := writeFileAtomic(path, []byte(raw)); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cfg := NewConfig(path, "", logger.New(logger.TestConfig()))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Contacts()[0].Phone; got != "972501234567" {
		t.Errorf("phone = %q after load, want digits only", got)
	}
	if got := cfg.Groups()[0].GroupID; got != "120363041234567890" {
		t.Errorf("groupId = %q after load, want suffix stripped", got)
	}
}

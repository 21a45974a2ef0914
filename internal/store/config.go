package store

import (
	"encoding/json"
	"net/url"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"

	"zapfilter/internal/core/identity"
	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

// Contact is an allowed sender. Phone is the key and is stored
// digits-only. LinkedID holds the upstream linked identifier when the
// contact is known by one.
type Contact struct {
	Phone    string `json:"phone" validate:"required,phone"`
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Type     string `json:"type,omitempty"`
	LinkedID string `json:"lid,omitempty"`
}

// Group is an allowed group. GroupID is the key and is stored without
// the @g.us suffix.
type Group struct {
	GroupID string `json:"groupId" validate:"required,groupid"`
	Name    string `json:"name" validate:"required,min=2,max=50"`
	Type    string `json:"type,omitempty"`
}

// DefaultContactType and DefaultGroupType are assigned when an entity
// is added without an explicit type.
const (
	DefaultContactType = "DEFAULT"
	DefaultGroupType   = "GROUP"
)

var defaultContactTypes = []string{"DEFAULT", "VIP", "BUSINESS", "TEAM"}

var defaultGroupTypes = []string{"GROUP", "VIP", "BUSINESS", "TEAM"}

// configFile is the on-disk layout of contacts.json. The stats block
// is carried through untouched for compatibility with older files.
type configFile struct {
	AllowedNumbers     []Contact         `json:"allowedNumbers"`
	AllowedGroups      []Group           `json:"allowedGroups"`
	WebhookURL         string            `json:"webhookUrl,omitempty"`
	TypeWebhooks       map[string]string `json:"typeWebhooks"`
	CustomContactTypes []string          `json:"customContactTypes"`
	CustomGroupTypes   []string          `json:"customGroupTypes"`
	Stats              json.RawMessage   `json:"stats"`
}

// Config is the durable configuration store: allowed contacts and
// groups, destination routing and custom type lists. All mutations are
// serialized and persisted atomically to a single JSON file.
type Config struct {
	mu            sync.RWMutex
	path          string
	envWebhookURL string
	data          configFile
	validate      *validator.Validate
	logger        *logger.Logger
}

// NewConfig creates the store. envWebhookURL, when non-empty, wins
// over the persisted default destination and is never written back.
func NewConfig(path, envWebhookURL string, log *logger.Logger) *Config {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return identity.ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("groupid", func(fl validator.FieldLevel) bool {
		return identity.ValidGroupID(fl.Field().String())
	})

	return &Config{
		path:          path,
		envWebhookURL: envWebhookURL,
		data: configFile{
			TypeWebhooks: make(map[string]string),
			Stats:        json.RawMessage("{}"),
		},
		validate: v,
		logger:   log.WithModule("config-store"),
	}
}

// Validator exposes the shared validator so request DTOs reuse the
// registered phone and groupid rules.
func (c *Config) Validator() *validator.Validate {
	return c.validate
}

// Load reads the file. A missing file leaves the store empty.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var file configFile
	if err := loadJSON(c.path, &file); err != nil {
		if os.IsNotExist(err) {
			c.logger.Info("No config file found, starting empty")
			return nil
		}
		return err
	}

	if file.TypeWebhooks == nil {
		file.TypeWebhooks = make(map[string]string)
	}
	if len(file.Stats) == 0 {
		file.Stats = json.RawMessage("{}")
	}
	for i := range file.AllowedNumbers {
		file.AllowedNumbers[i].Phone = identity.NormalizePhone(file.AllowedNumbers[i].Phone)
		file.AllowedNumbers[i].LinkedID = identity.NormalizePhone(file.AllowedNumbers[i].LinkedID)
	}
	for i := range file.AllowedGroups {
		file.AllowedGroups[i].GroupID = identity.NormalizeGroupID(file.AllowedGroups[i].GroupID)
	}
	c.data = file

	c.logger.InfoWithFields("Config loaded", map[string]interface{}{
		"contacts": len(file.AllowedNumbers),
		"groups":   len(file.AllowedGroups),
		"routes":   len(file.TypeWebhooks),
	})
	return nil
}

// Save persists the current state atomically. The default destination
// is omitted while the environment provides one.
func (c *Config) Save() error {
	c.mu.RLock()
	file := c.data
	file.AllowedNumbers = append([]Contact(nil), c.data.AllowedNumbers...)
	file.AllowedGroups = append([]Group(nil), c.data.AllowedGroups...)
	file.TypeWebhooks = copyStringMap(c.data.TypeWebhooks)
	if c.envWebhookURL != "" {
		file.WebhookURL = ""
	}
	c.mu.RUnlock()

	return saveJSON(c.path, &file)
}

// AddContact validates and inserts a contact keyed by normalized
// phone.
func (c *Config) AddContact(contact Contact) error {
	contact.Phone = identity.NormalizePhone(contact.Phone)
	contact.LinkedID = identity.NormalizePhone(contact.LinkedID)
	if contact.Type == "" {
		contact.Type = DefaultContactType
	}
	if err := c.validate.Struct(contact); err != nil {
		return errors.ErrInvalidPhoneNumber.WithDetails(err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !typeAllowed(contact.Type, defaultContactTypes, c.data.CustomContactTypes) {
		return errors.ErrInvalidContactType.WithDetails(contact.Type)
	}
	for _, existing := range c.data.AllowedNumbers {
		if existing.Phone == contact.Phone {
			return errors.ErrContactExists
		}
	}
	c.data.AllowedNumbers = append(c.data.AllowedNumbers, contact)
	return nil
}

// UpdateContact mutates name, type and linked identifier of the
// contact keyed by phone.
func (c *Config) UpdateContact(phone string, updated Contact) error {
	key := identity.NormalizePhone(phone)
	updated.Phone = key
	updated.LinkedID = identity.NormalizePhone(updated.LinkedID)
	if updated.Type == "" {
		updated.Type = DefaultContactType
	}
	if err := c.validate.Struct(updated); err != nil {
		return errors.ErrInvalidPhoneNumber.WithDetails(err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !typeAllowed(updated.Type, defaultContactTypes, c.data.CustomContactTypes) {
		return errors.ErrInvalidContactType.WithDetails(updated.Type)
	}
	for i, existing := range c.data.AllowedNumbers {
		if existing.Phone == key {
			c.data.AllowedNumbers[i] = updated
			return nil
		}
	}
	return errors.ErrContactNotFound
}

// DeleteContact removes the contact keyed by phone.
func (c *Config) DeleteContact(phone string) error {
	key := identity.NormalizePhone(phone)

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.data.AllowedNumbers {
		if existing.Phone == key {
			c.data.AllowedNumbers = append(c.data.AllowedNumbers[:i], c.data.AllowedNumbers[i+1:]...)
			return nil
		}
	}
	return errors.ErrContactNotFound
}

// AddGroup validates and inserts a group keyed by normalized ID.
func (c *Config) AddGroup(group Group) error {
	group.GroupID = identity.NormalizeGroupID(group.GroupID)
	if group.Type == "" {
		group.Type = DefaultGroupType
	}
	if err := c.validate.Struct(group); err != nil {
		return errors.ErrInvalidGroupID.WithDetails(err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !typeAllowed(group.Type, defaultGroupTypes, c.data.CustomGroupTypes) {
		return errors.ErrInvalidGroupType.WithDetails(group.Type)
	}
	for _, existing := range c.data.AllowedGroups {
		if existing.GroupID == group.GroupID {
			return errors.ErrGroupExists
		}
	}
	c.data.AllowedGroups = append(c.data.AllowedGroups, group)
	return nil
}

// UpdateGroup mutates name and type of the group keyed by ID.
func (c *Config) UpdateGroup(groupID string, updated Group) error {
	key := identity.NormalizeGroupID(groupID)
	updated.GroupID = key
	if updated.Type == "" {
		updated.Type = DefaultGroupType
	}
	if err := c.validate.Struct(updated); err != nil {
		return errors.ErrInvalidGroupID.WithDetails(err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !typeAllowed(updated.Type, defaultGroupTypes, c.data.CustomGroupTypes) {
		return errors.ErrInvalidGroupType.WithDetails(updated.Type)
	}
	for i, existing := range c.data.AllowedGroups {
		if existing.GroupID == key {
			c.data.AllowedGroups[i] = updated
			return nil
		}
	}
	return errors.ErrGroupNotFound
}

// DeleteGroup removes the group keyed by ID.
func (c *Config) DeleteGroup(groupID string) error {
	key := identity.NormalizeGroupID(groupID)

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.data.AllowedGroups {
		if existing.GroupID == key {
			c.data.AllowedGroups = append(c.data.AllowedGroups[:i], c.data.AllowedGroups[i+1:]...)
			return nil
		}
	}
	return errors.ErrGroupNotFound
}

// SetDefaultWebhook stores the default destination. An empty URL
// clears it. Ignored while the environment provides the destination.
func (c *Config) SetDefaultWebhook(rawURL string) error {
	if rawURL != "" && !validWebhookURL(rawURL) {
		return errors.ErrInvalidWebhookURL.WithDetails(rawURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.WebhookURL = rawURL
	return nil
}

// SetTypeWebhooks replaces the per-type routing table.
func (c *Config) SetTypeWebhooks(routes map[string]string) error {
	for entityType, rawURL := range routes {
		if rawURL != "" && !validWebhookURL(rawURL) {
			return errors.ErrInvalidWebhookURL.WithDetails(entityType + ": " + rawURL)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.TypeWebhooks = copyStringMap(routes)
	return nil
}

// SetCustomTypes replaces both custom type lists.
func (c *Config) SetCustomTypes(contactTypes, groupTypes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.CustomContactTypes = append([]string(nil), contactTypes...)
	c.data.CustomGroupTypes = append([]string(nil), groupTypes...)
	return nil
}

// FindContactByPhone matches a remote identifier against each
// contact's phone and linked identifier, all normalized.
func (c *Config) FindContactByPhone(remote string) (Contact, bool) {
	key := identity.NormalizePhone(remote)
	if key == "" {
		return Contact{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, contact := range c.data.AllowedNumbers {
		if contact.Phone == key {
			return contact, true
		}
		if contact.LinkedID != "" && contact.LinkedID == key {
			return contact, true
		}
	}
	return Contact{}, false
}

// FindGroupByID matches a remote group identifier after
// normalization.
func (c *Config) FindGroupByID(groupID string) (Group, bool) {
	key := identity.NormalizeGroupID(groupID)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, group := range c.data.AllowedGroups {
		if group.GroupID == key {
			return group, true
		}
	}
	return Group{}, false
}

// DefaultWebhook returns the active default destination; the
// environment-provided URL wins over the persisted one.
func (c *Config) DefaultWebhook() string {
	if c.envWebhookURL != "" {
		return c.envWebhookURL
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.WebhookURL
}

// TypeWebhook returns the destination registered for an entity type,
// or empty when the type has no route.
func (c *Config) TypeWebhook(entityType string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.TypeWebhooks[entityType]
}

// TypeWebhooks returns a copy of the routing table.
func (c *Config) TypeWebhooks() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyStringMap(c.data.TypeWebhooks)
}

// Contacts returns a copy of the contact list.
func (c *Config) Contacts() []Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Contact(nil), c.data.AllowedNumbers...)
}

// Groups returns a copy of the group list.
func (c *Config) Groups() []Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Group(nil), c.data.AllowedGroups...)
}

// CustomTypes returns copies of both custom type lists.
func (c *Config) CustomTypes() (contactTypes, groupTypes []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.data.CustomContactTypes...),
		append([]string(nil), c.data.CustomGroupTypes...)
}

// ContactTypes returns the full accepted contact type set, defaults
// first.
func (c *Config) ContactTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(append([]string(nil), defaultContactTypes...), c.data.CustomContactTypes...)
}

// GroupTypes returns the full accepted group type set, defaults first.
func (c *Config) GroupTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(append([]string(nil), defaultGroupTypes...), c.data.CustomGroupTypes...)
}

func typeAllowed(t string, defaults, custom []string) bool {
	for _, d := range defaults {
		if t == d {
			return true
		}
	}
	for _, cu := range custom {
		if t == cu {
			return true
		}
	}
	return false
}

func validWebhookURL(rawURL string) bool {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

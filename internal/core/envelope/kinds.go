package envelope

import "strings"

// Canonical event kinds. The router dispatches on this closed set;
// anything else lands in the generic handler and is registered in the
// stats lazily.
const (
	MessagesUpsert          = "MESSAGES_UPSERT"
	MessagesUpdate          = "MESSAGES_UPDATE"
	MessagesDelete          = "MESSAGES_DELETE"
	MessagesSet             = "MESSAGES_SET"
	SendMessage             = "SEND_MESSAGE"
	ConnectionUpdate        = "CONNECTION_UPDATE"
	QRCodeUpdated           = "QRCODE_UPDATED"
	LogoutInstance          = "LOGOUT_INSTANCE"
	RemoveInstance          = "REMOVE_INSTANCE"
	ApplicationStartup      = "APPLICATION_STARTUP"
	ChatsUpsert             = "CHATS_UPSERT"
	ChatsUpdate             = "CHATS_UPDATE"
	ChatsDelete             = "CHATS_DELETE"
	ChatsSet                = "CHATS_SET"
	GroupsUpsert            = "GROUPS_UPSERT"
	GroupsUpdate            = "GROUPS_UPDATE"
	GroupParticipantsUpdate = "GROUP_PARTICIPANTS_UPDATE"
	ContactsUpsert          = "CONTACTS_UPSERT"
	ContactsUpdate          = "CONTACTS_UPDATE"
	ContactsSet             = "CONTACTS_SET"
	Call                    = "CALL"
	LabelsAssociation       = "LABELS_ASSOCIATION"
	LabelsEdit              = "LABELS_EDIT"
	PresenceUpdate          = "PRESENCE_UPDATE"
)

// CanonicalKinds returns the closed set of kinds the router knows.
func CanonicalKinds() []string {
	return []string{
		MessagesUpsert, MessagesUpdate, MessagesDelete, MessagesSet,
		SendMessage, ConnectionUpdate, QRCodeUpdated, LogoutInstance,
		RemoveInstance, ApplicationStartup,
		ChatsUpsert, ChatsUpdate, ChatsDelete, ChatsSet,
		GroupsUpsert, GroupsUpdate, GroupParticipantsUpdate,
		ContactsUpsert, ContactsUpdate, ContactsSet,
		Call, LabelsAssociation, LabelsEdit, PresenceUpdate,
	}
}

// NormalizeEventName maps an external event name to the canonical
// spelling: hyphens become underscores and the result is uppercased.
func NormalizeEventName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

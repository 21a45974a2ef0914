package waclient

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"zapfilter/internal/core/identity"
)

// maxMessageLength is WhatsApp's practical limit for text bodies.
const maxMessageLength = 65000

// recipientJID turns an API-supplied recipient into a sendable JID.
// Accepted forms: a full JID, a bare phone number, or a bare group id.
func recipientJID(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.EmptyJID, fmt.Errorf("recipient cannot be empty")
	}

	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("invalid recipient JID: %w", err)
		}
		switch jid.Server {
		case types.DefaultUserServer, types.GroupServer, types.HiddenUserServer:
			return jid, nil
		}
		return types.EmptyJID, fmt.Errorf("unsupported recipient server: %s", jid.Server)
	}

	// Bare group ids are longer than any phone number. Legacy
	// hyphenated group ids must come as a full JID.
	digits := identity.NormalizePhone(to)
	if len(digits) > 15 {
		if !identity.ValidGroupID(to) {
			return types.EmptyJID, fmt.Errorf("invalid group id: %s", to)
		}
		return types.NewJID(digits, types.GroupServer), nil
	}

	if !identity.ValidPhone(digits) {
		return types.EmptyJID, fmt.Errorf("invalid phone number: %s", to)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// validateBody rejects empty and oversized text bodies before they
// reach the wire.
func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	if len(body) > maxMessageLength {
		return fmt.Errorf("message body too long (max %d bytes)", maxMessageLength)
	}
	return nil
}

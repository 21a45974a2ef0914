package envelope

import (
	"encoding/json"
	"strings"
)

// DetectEventType infers the event kind of a shapeless payload from
// its fields. It returns an empty string when nothing matches; the
// ingress treats that as a message insertion.
func DetectEventType(raw []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if kind := detectFromShape(payload); kind != "" {
		return kind
	}
	// Some emitters nest the interesting fields one level down.
	if data, ok := payload["data"].(map[string]interface{}); ok {
		return detectFromShape(data)
	}
	return ""
}

func detectFromShape(payload map[string]interface{}) string {
	_, hasKey := payload["key"]
	_, hasMessage := payload["message"]
	if hasKey && hasMessage {
		return MessagesUpsert
	}
	if _, hasUpdate := payload["update"]; hasUpdate && hasKey {
		return MessagesUpdate
	}
	if _, ok := payload["state"]; ok {
		return ConnectionUpdate
	}
	if _, ok := payload["connection"]; ok {
		return ConnectionUpdate
	}
	if _, ok := payload["qrcode"]; ok {
		return QRCodeUpdated
	}
	if _, ok := payload["base64"]; ok {
		return QRCodeUpdated
	}
	if _, hasSubject := payload["subject"]; hasSubject {
		if id, ok := payload["id"].(string); ok && strings.Contains(id, "@g.us") {
			return GroupsUpsert
		}
	}
	_, hasParticipants := payload["participants"]
	_, hasAction := payload["action"]
	if hasParticipants && hasAction {
		return GroupParticipantsUpdate
	}
	return ""
}

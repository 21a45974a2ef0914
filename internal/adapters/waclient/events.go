package waclient

import (
	"fmt"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"zapfilter/internal/core/envelope"
)

// handleEvent maps whatsmeow events onto pipeline envelopes. Events
// with no pipeline meaning are logged at debug and dropped.
func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Receipt:
		c.handleReceipt(v)
	case *events.Presence:
		c.handlePresence(v)
	case *events.Connected:
		c.handleConnected()
	case *events.Disconnected:
		c.handleDisconnected()
	case *events.ConnectFailure:
		c.handleConnectFailure(v)
	case *events.StreamReplaced:
		c.handleStreamReplaced()
	case *events.LoggedOut:
		c.handleLoggedOut(v)
	case *events.PairSuccess:
		c.handlePairSuccess(v)
	case *events.QR:
		// QR codes arrive through the pairing channel; the raw event
		// would duplicate them.
	case *events.JoinedGroup:
		c.handleJoinedGroup(v)
	case *events.GroupInfo:
		c.handleGroupInfo(v)
	case *events.Contact:
		c.handleContact(v)
	case *events.PushName:
		c.handlePushName(v)
	case *events.CallOffer:
		c.handleCallOffer(v)
	case *events.HistorySync:
		c.logger.Debug("History sync skipped")
	default:
		c.logger.DebugWithFields("Unhandled WhatsApp event", map[string]interface{}{
			"event_type": fmt.Sprintf("%T", evt),
		})
	}
}

// handleMessage converts an incoming or echoed message. Messages the
// account sends to itself are device sync noise and are dropped.
func (c *Client) handleMessage(evt *events.Message) {
	info := evt.Info
	if info.IsFromMe && info.Chat.User == c.ownUser() {
		return
	}

	data := c.buildMessageData(evt)
	if data == nil {
		c.logger.DebugWithFields("Skipping message with no mappable content", map[string]interface{}{
			"message_id": info.ID,
			"chat":       info.Chat.String(),
		})
		return
	}

	kind := envelope.MessagesUpsert
	if info.IsFromMe {
		kind = envelope.SendMessage
	}
	c.emitEvent(kind, data)

	// Status broadcasts never reach the store, so downloading their
	// media would orphan the files.
	if ref := mediaOf(evt.Message); ref != nil && info.Chat.Server != types.BroadcastServer {
		go c.fetchMedia(data.Key, ref)
	}
}

// handleReceipt emits one update per receipt covering all of its
// message ids. Only read and delivered receipts matter downstream.
func (c *Client) handleReceipt(evt *events.Receipt) {
	var status string
	switch evt.Type {
	case types.ReceiptTypeRead:
		status = "read"
	case types.ReceiptTypeDelivered:
		status = "delivered"
	default:
		return
	}
	if len(evt.MessageIDs) == 0 {
		return
	}

	payload := struct {
		Key    envelope.MessageKey `json:"key"`
		Status string              `json:"status"`
		IDs    []string            `json:"ids,omitempty"`
	}{
		Key: envelope.MessageKey{
			RemoteJID:   evt.Chat.String(),
			ID:          evt.MessageIDs[0],
			Participant: participantOf(evt.Chat, evt.Sender),
		},
		Status: status,
		IDs:    evt.MessageIDs,
	}
	c.emitEvent(envelope.MessagesUpdate, payload)
}

func (c *Client) handlePresence(evt *events.Presence) {
	payload := map[string]interface{}{
		"from": evt.From.String(),
	}
	if evt.Unavailable {
		payload["state"] = "offline"
		if !evt.LastSeen.IsZero() {
			payload["lastSeen"] = evt.LastSeen.Unix()
		}
	} else {
		payload["state"] = "online"
	}
	c.emitEvent(envelope.PresenceUpdate, payload)
}

func (c *Client) handleConnected() {
	c.logger.InfoWithFields("WhatsApp connected", map[string]interface{}{
		"phone": c.ownUser(),
	})
	c.emitConnection("connected")
}

func (c *Client) handleDisconnected() {
	c.logger.Warn("WhatsApp disconnected")
	c.emitConnection("disconnected")
	c.scheduleReconnect()
}

// handleConnectFailure does not reconnect: the reasons behind it, such
// as a ban or an outdated client, do not go away by retrying.
func (c *Client) handleConnectFailure(evt *events.ConnectFailure) {
	c.logger.ErrorWithFields("WhatsApp connection failed", map[string]interface{}{
		"reason": fmt.Sprintf("%v", evt.Reason),
	})
	c.emitConnection("disconnected")
}

// handleStreamReplaced means another instance took over this session;
// reconnecting would just steal it back and forth.
func (c *Client) handleStreamReplaced() {
	c.logger.Error("WhatsApp stream replaced by another client")
	c.emitConnection("disconnected")
}

func (c *Client) handleLoggedOut(evt *events.LoggedOut) {
	c.logger.WarnWithFields("WhatsApp logged out remotely", map[string]interface{}{
		"reason":     evt.Reason.String(),
		"on_connect": evt.OnConnect,
	})
	if err := c.wa.Store.Delete(c.runCtx); err != nil {
		c.logger.ErrorWithFields("Failed to wipe stored credentials", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.emitEvent(envelope.LogoutInstance, map[string]interface{}{
		"reason": evt.Reason.String(),
	})
}

func (c *Client) handlePairSuccess(evt *events.PairSuccess) {
	c.logger.InfoWithFields("WhatsApp paired", map[string]interface{}{
		"jid": evt.ID.String(),
	})
}

func (c *Client) handleJoinedGroup(evt *events.JoinedGroup) {
	c.emitEvent(envelope.GroupsUpsert, map[string]interface{}{
		"jid":    evt.JID.String(),
		"reason": string(evt.Reason),
	})
}

func (c *Client) handleGroupInfo(evt *events.GroupInfo) {
	payload := map[string]interface{}{
		"jid": evt.JID.String(),
	}
	if evt.Name != nil {
		payload["name"] = evt.Name.Name
	}
	c.emitEvent(envelope.GroupsUpdate, payload)
}

func (c *Client) handleContact(evt *events.Contact) {
	c.emitEvent(envelope.ContactsUpdate, map[string]interface{}{
		"jid": evt.JID.String(),
	})
}

func (c *Client) handlePushName(evt *events.PushName) {
	c.emitEvent(envelope.ContactsUpdate, map[string]interface{}{
		"jid": evt.JID.String(),
	})
}

func (c *Client) handleCallOffer(evt *events.CallOffer) {
	c.emitEvent(envelope.Call, map[string]interface{}{
		"callId":    evt.CallID,
		"from":      evt.From.String(),
		"timestamp": evt.Timestamp.Unix(),
	})
}

// participantOf returns the sender only when it differs from the chat,
// which is the group case.
func participantOf(chat, sender types.JID) string {
	if chat.Server == types.GroupServer {
		return sender.String()
	}
	return ""
}

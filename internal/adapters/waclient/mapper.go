package waclient

import (
	"encoding/base64"
	"encoding/json"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"zapfilter/internal/core/envelope"
)

// buildMessageData converts a whatsmeow message event into the wire
// shape the pipeline consumes. Returns nil when nothing maps, which
// covers key distribution and other carrier-only messages.
func (c *Client) buildMessageData(evt *events.Message) *envelope.MessageData {
	content := convertContent(unwrapDeviceSent(evt.Message))
	if content == nil {
		return nil
	}

	info := evt.Info
	data := &envelope.MessageData{
		Key: envelope.MessageKey{
			RemoteJID: info.Chat.String(),
			ID:        info.ID,
			FromMe:    info.IsFromMe,
		},
		PushName:         info.PushName,
		Message:          content,
		MessageTimestamp: info.Timestamp.Unix(),
	}
	if info.Chat.Server == types.GroupServer {
		data.Key.Participant = info.Sender.String()
	}
	if !info.IsFromMe {
		c.fillSenderPhone(&data.Key, info)
	}
	if ref := mediaOf(evt.Message); ref != nil && len(ref.thumbnail) > 0 {
		data.Thumbnail = thumbnailDataURI(ref.thumbnail)
	}
	return data
}

// fillSenderPhone resolves hidden sender identifiers to a phone number
// before the envelope leaves the adapter. SenderAlt is free when the
// server provides it; the resolver chain covers the rest.
func (c *Client) fillSenderPhone(key *envelope.MessageKey, info types.MessageInfo) {
	sender := info.Sender
	if sender.Server != types.HiddenUserServer {
		return
	}
	if alt := info.SenderAlt; alt.Server == types.DefaultUserServer && alt.User != "" {
		key.SenderPN = alt.String()
		c.resolver.remember(sender.User, alt.User)
		return
	}
	if phone, ok := c.resolver.resolveInChat(c.runCtx, sender.User, info.Chat); ok {
		key.SenderPN = types.NewJID(phone, types.DefaultUserServer).String()
	}
}

// unwrapDeviceSent peels the carrier that wraps messages synced from
// the account's other devices.
func unwrapDeviceSent(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	if ds := msg.GetDeviceSentMessage(); ds != nil && ds.GetMessage() != nil {
		return ds.GetMessage()
	}
	return msg
}

// convertContent maps one waE2E message level onto the envelope union.
// Wrapper variants recurse one level down so the pipeline sees the
// same nesting the wire format has.
func convertContent(msg *waE2E.Message) *envelope.MessageContent {
	if msg == nil {
		return nil
	}

	switch {
	case msg.Conversation != nil:
		return &envelope.MessageContent{Conversation: msg.GetConversation()}

	case msg.ExtendedTextMessage != nil:
		return &envelope.MessageContent{ExtendedTextMessage: &envelope.ExtendedText{
			Text:        msg.ExtendedTextMessage.GetText(),
			ContextInfo: convertContext(msg.ExtendedTextMessage.GetContextInfo()),
		}}

	case msg.ImageMessage != nil:
		im := msg.ImageMessage
		return &envelope.MessageContent{
			ImageMessage: mediaContent(im.GetMimetype(), im.GetCaption(), im.GetJPEGThumbnail(), false, im.GetContextInfo()),
		}

	case msg.VideoMessage != nil:
		vm := msg.VideoMessage
		return &envelope.MessageContent{
			VideoMessage: mediaContent(vm.GetMimetype(), vm.GetCaption(), vm.GetJPEGThumbnail(), false, vm.GetContextInfo()),
		}

	case msg.AudioMessage != nil:
		am := msg.AudioMessage
		return &envelope.MessageContent{
			AudioMessage: mediaContent(am.GetMimetype(), "", nil, am.GetPTT(), am.GetContextInfo()),
		}

	case msg.DocumentMessage != nil:
		dm := msg.DocumentMessage
		return &envelope.MessageContent{DocumentMessage: &envelope.DocumentContent{
			FileName:      dm.GetFileName(),
			Caption:       dm.GetCaption(),
			Mimetype:      dm.GetMimetype(),
			JPEGThumbnail: base64.StdEncoding.EncodeToString(dm.GetJPEGThumbnail()),
			ContextInfo:   convertContext(dm.GetContextInfo()),
		}}

	case msg.StickerMessage != nil:
		sm := msg.StickerMessage
		return &envelope.MessageContent{
			StickerMessage: mediaContent(sm.GetMimetype(), "", nil, false, sm.GetContextInfo()),
		}

	case msg.ContactMessage != nil:
		return &envelope.MessageContent{ContactMessage: &envelope.ContactContent{
			DisplayName: msg.ContactMessage.GetDisplayName(),
			VCard:       msg.ContactMessage.GetVcard(),
		}}

	case msg.LocationMessage != nil:
		lm := msg.LocationMessage
		return &envelope.MessageContent{LocationMessage: &envelope.LocationContent{
			DegreesLatitude:  lm.GetDegreesLatitude(),
			DegreesLongitude: lm.GetDegreesLongitude(),
			Name:             lm.GetName(),
			Address:          lm.GetAddress(),
		}}

	case msg.ReactionMessage != nil:
		rm := msg.ReactionMessage
		reaction := &envelope.ReactionContent{Text: rm.GetText()}
		if rk := rm.GetKey(); rk != nil {
			reaction.Key = &envelope.MessageKey{
				RemoteJID:   rk.GetRemoteJID(),
				ID:          rk.GetID(),
				FromMe:      rk.GetFromMe(),
				Participant: rk.GetParticipant(),
			}
		}
		return &envelope.MessageContent{ReactionMessage: reaction}

	case msg.ProtocolMessage != nil:
		return &envelope.MessageContent{ProtocolMessage: protocolPayload(msg.ProtocolMessage)}

	case msg.EphemeralMessage != nil:
		if inner := convertContent(msg.EphemeralMessage.GetMessage()); inner != nil {
			return &envelope.MessageContent{EphemeralMessage: &envelope.WrappedContent{Message: inner}}
		}
		return nil

	case msg.ViewOnceMessage != nil:
		if inner := convertContent(msg.ViewOnceMessage.GetMessage()); inner != nil {
			return &envelope.MessageContent{ViewOnceMessage: &envelope.WrappedContent{Message: inner}}
		}
		return nil

	case msg.ViewOnceMessageV2 != nil:
		if inner := convertContent(msg.ViewOnceMessageV2.GetMessage()); inner != nil {
			return &envelope.MessageContent{ViewOnceMessageV2: &envelope.WrappedContent{Message: inner}}
		}
		return nil

	case msg.DocumentWithCaptionMessage != nil:
		if inner := convertContent(msg.DocumentWithCaptionMessage.GetMessage()); inner != nil {
			return &envelope.MessageContent{DocumentWithCaptionMessage: &envelope.WrappedContent{Message: inner}}
		}
		return nil
	}

	return nil
}

func mediaContent(mimetype, caption string, thumb []byte, ptt bool, ci *waE2E.ContextInfo) *envelope.MediaContent {
	return &envelope.MediaContent{
		Mimetype:      mimetype,
		Caption:       caption,
		JPEGThumbnail: base64.StdEncoding.EncodeToString(thumb),
		PTT:           ptt,
		ContextInfo:   convertContext(ci),
	}
}

func convertContext(ci *waE2E.ContextInfo) *envelope.ContextInfo {
	if ci == nil {
		return nil
	}
	out := &envelope.ContextInfo{
		StanzaID:     ci.GetStanzaID(),
		Participant:  ci.GetParticipant(),
		MentionedJID: ci.GetMentionedJID(),
	}
	if quoted := ci.GetQuotedMessage(); quoted != nil {
		out.QuotedMessage = convertContent(quoted)
	}
	if out.StanzaID == "" && out.Participant == "" && len(out.MentionedJID) == 0 && out.QuotedMessage == nil {
		return nil
	}
	return out
}

// protocolPayload keeps only the protocol type; the pipeline just
// needs to see that the message carries nothing else.
func protocolPayload(pm *waE2E.ProtocolMessage) json.RawMessage {
	payload, err := json.Marshal(map[string]string{"type": pm.GetType().String()})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return payload
}

// thumbnailDataURI inlines the preview so it can be rendered without a
// media round-trip.
func thumbnailDataURI(thumb []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(thumb)
}

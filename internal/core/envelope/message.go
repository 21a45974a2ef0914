package envelope

import (
	"encoding/json"
	"strings"
)

// MessageData is the payload of message events. Field names follow the
// upstream wire format.
type MessageData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	Message          *MessageContent `json:"message,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp,omitempty"`
	MediaHandle      string          `json:"mediaHandle,omitempty"`
	Thumbnail        string          `json:"thumbnail,omitempty"`
}

// MessageKey identifies a message and its chat.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	ID          string `json:"id"`
	FromMe      bool   `json:"fromMe,omitempty"`
	Participant string `json:"participant,omitempty"`
	SenderPN    string `json:"senderPn,omitempty"`
}

// MessageContent is the tagged union of message kinds. Exactly one of
// the content fields is expected to be set; the wrapper fields nest
// another MessageContent one level down.
type MessageContent struct {
	Conversation        string           `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedText    `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaContent    `json:"imageMessage,omitempty"`
	VideoMessage        *MediaContent    `json:"videoMessage,omitempty"`
	AudioMessage        *MediaContent    `json:"audioMessage,omitempty"`
	DocumentMessage     *DocumentContent `json:"documentMessage,omitempty"`
	StickerMessage      *MediaContent    `json:"stickerMessage,omitempty"`
	ContactMessage      *ContactContent  `json:"contactMessage,omitempty"`
	LocationMessage     *LocationContent `json:"locationMessage,omitempty"`
	ReactionMessage     *ReactionContent `json:"reactionMessage,omitempty"`
	ProtocolMessage     json.RawMessage  `json:"protocolMessage,omitempty"`

	EphemeralMessage           *WrappedContent `json:"ephemeralMessage,omitempty"`
	ViewOnceMessage            *WrappedContent `json:"viewOnceMessage,omitempty"`
	ViewOnceMessageV2          *WrappedContent `json:"viewOnceMessageV2,omitempty"`
	DocumentWithCaptionMessage *WrappedContent `json:"documentWithCaptionMessage,omitempty"`
}

// WrappedContent is one level of the ephemeral/viewOnce/document
// wrapper chain.
type WrappedContent struct {
	Message *MessageContent `json:"message,omitempty"`
}

type ExtendedText struct {
	Text        string       `json:"text,omitempty"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

type MediaContent struct {
	Mimetype      string       `json:"mimetype,omitempty"`
	Caption       string       `json:"caption,omitempty"`
	JPEGThumbnail string       `json:"jpegThumbnail,omitempty"`
	PTT           bool         `json:"ptt,omitempty"`
	ContextInfo   *ContextInfo `json:"contextInfo,omitempty"`
}

type DocumentContent struct {
	FileName      string       `json:"fileName,omitempty"`
	Caption       string       `json:"caption,omitempty"`
	Mimetype      string       `json:"mimetype,omitempty"`
	JPEGThumbnail string       `json:"jpegThumbnail,omitempty"`
	ContextInfo   *ContextInfo `json:"contextInfo,omitempty"`
}

type ContactContent struct {
	DisplayName string `json:"displayName,omitempty"`
	VCard       string `json:"vcard,omitempty"`
}

type LocationContent struct {
	DegreesLatitude  float64 `json:"degreesLatitude,omitempty"`
	DegreesLongitude float64 `json:"degreesLongitude,omitempty"`
	Name             string  `json:"name,omitempty"`
	Address          string  `json:"address,omitempty"`
}

type ReactionContent struct {
	Text string      `json:"text,omitempty"`
	Key  *MessageKey `json:"key,omitempty"`
}

// ContextInfo carries reply and mention metadata.
type ContextInfo struct {
	StanzaID      string          `json:"stanzaId,omitempty"`
	Participant   string          `json:"participant,omitempty"`
	MentionedJID  []string        `json:"mentionedJid,omitempty"`
	QuotedMessage *MessageContent `json:"quotedMessage,omitempty"`
}

const maxWrapperDepth = 3

// Unwrap walks the ephemeral → viewOnce → viewOnceV2 →
// documentWithCaption wrapper chain and returns the innermost content.
// The chain is bounded, so a malformed deep nest stops after three
// levels.
func (m *MessageContent) Unwrap() *MessageContent {
	content := m
	for depth := 0; content != nil && depth < maxWrapperDepth; depth++ {
		var inner *WrappedContent
		switch {
		case content.EphemeralMessage != nil:
			inner = content.EphemeralMessage
		case content.ViewOnceMessage != nil:
			inner = content.ViewOnceMessage
		case content.ViewOnceMessageV2 != nil:
			inner = content.ViewOnceMessageV2
		case content.DocumentWithCaptionMessage != nil:
			inner = content.DocumentWithCaptionMessage
		default:
			return content
		}
		if inner.Message == nil {
			return content
		}
		content = inner.Message
	}
	return content
}

// Context returns the context info of the active content variant.
func (m *MessageContent) Context() *ContextInfo {
	if m == nil {
		return nil
	}
	switch {
	case m.ExtendedTextMessage != nil:
		return m.ExtendedTextMessage.ContextInfo
	case m.ImageMessage != nil:
		return m.ImageMessage.ContextInfo
	case m.VideoMessage != nil:
		return m.VideoMessage.ContextInfo
	case m.AudioMessage != nil:
		return m.AudioMessage.ContextInfo
	case m.DocumentMessage != nil:
		return m.DocumentMessage.ContextInfo
	case m.StickerMessage != nil:
		return m.StickerMessage.ContextInfo
	}
	return nil
}

// Content is the classified form of a message body.
type Content struct {
	Type       string
	Body       string
	HasMedia   bool
	MediaType  string
	MimeType   string
	Thumbnail  string
	QuotedBody string
	Context    *ContextInfo
}

// Extract unwraps and classifies message content. A nil message yields
// type unknown.
func Extract(m *MessageContent) Content {
	content := m.Unwrap()
	if content == nil {
		return Content{Type: "unknown"}
	}

	c := Content{Context: content.Context()}
	c.Type, c.Body = bodyOf(content)

	switch c.Type {
	case "image":
		c.HasMedia = true
		c.MediaType = c.Type
		c.MimeType = content.ImageMessage.Mimetype
		c.Thumbnail = content.ImageMessage.JPEGThumbnail
	case "video":
		c.HasMedia = true
		c.MediaType = c.Type
		c.MimeType = content.VideoMessage.Mimetype
		c.Thumbnail = content.VideoMessage.JPEGThumbnail
	case "audio":
		c.HasMedia = true
		c.MediaType = c.Type
		c.MimeType = content.AudioMessage.Mimetype
	case "document":
		c.HasMedia = true
		c.MediaType = c.Type
		c.MimeType = content.DocumentMessage.Mimetype
		c.Thumbnail = content.DocumentMessage.JPEGThumbnail
	case "sticker":
		c.HasMedia = true
		c.MediaType = c.Type
		c.MimeType = content.StickerMessage.Mimetype
	}

	if c.Context != nil && c.Context.QuotedMessage != nil {
		_, c.QuotedBody = bodyOf(c.Context.QuotedMessage.Unwrap())
	}

	return c
}

// IsProtocolOnly reports whether the unwrapped content carries nothing
// but a key-distribution or other protocol message.
func (m *MessageContent) IsProtocolOnly() bool {
	content := m.Unwrap()
	if content == nil {
		return false
	}
	t, _ := bodyOf(content)
	return t == "protocol"
}

// bodyOf classifies a single content level without recursing into
// quoted messages.
func bodyOf(content *MessageContent) (msgType, body string) {
	if content == nil {
		return "unknown", ""
	}
	switch {
	case content.Conversation != "":
		return "text", content.Conversation
	case content.ExtendedTextMessage != nil:
		return "text", content.ExtendedTextMessage.Text
	case content.ImageMessage != nil:
		return "image", content.ImageMessage.Caption
	case content.VideoMessage != nil:
		return "video", content.VideoMessage.Caption
	case content.AudioMessage != nil:
		return "audio", ""
	case content.DocumentMessage != nil:
		if content.DocumentMessage.Caption != "" {
			return "document", content.DocumentMessage.Caption
		}
		return "document", content.DocumentMessage.FileName
	case content.StickerMessage != nil:
		return "sticker", ""
	case content.ContactMessage != nil:
		return "contact", content.ContactMessage.DisplayName
	case content.LocationMessage != nil:
		return "location", locationBody(content.LocationMessage)
	case content.ReactionMessage != nil:
		return "reaction", content.ReactionMessage.Text
	case len(content.ProtocolMessage) > 0:
		return "protocol", ""
	}
	return "unknown", ""
}

func locationBody(loc *LocationContent) string {
	parts := make([]string, 0, 2)
	if loc.Name != "" {
		parts = append(parts, loc.Name)
	}
	if loc.Address != "" {
		parts = append(parts, loc.Address)
	}
	return strings.Join(parts, ", ")
}

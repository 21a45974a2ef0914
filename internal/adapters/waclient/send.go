package waclient

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

// SendText delivers a plain text message and returns its WhatsApp
// message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if !c.wa.IsLoggedIn() {
		return "", fmt.Errorf("client is not logged in")
	}
	if err := validateBody(body); err != nil {
		return "", err
	}
	jid, err := recipientJID(to)
	if err != nil {
		return "", err
	}

	message := &waE2E.Message{Conversation: proto.String(body)}
	resp, err := c.wa.SendMessage(ctx, jid, message)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	c.logger.InfoWithFields("Text message sent", map[string]interface{}{
		"to":         jid.String(),
		"message_id": resp.ID,
	})
	return resp.ID, nil
}

// SendMedia uploads a payload and sends it typed by its mime prefix.
func (c *Client) SendMedia(ctx context.Context, to, caption string, data []byte, mimeType string) (string, error) {
	if !c.wa.IsLoggedIn() {
		return "", fmt.Errorf("client is not logged in")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("media payload cannot be empty")
	}
	jid, err := recipientJID(to)
	if err != nil {
		return "", err
	}

	mediaType := uploadTypeFor(mimeType)
	uploaded, err := c.wa.Upload(ctx, data, mediaType)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	message := buildMediaMessage(mediaType, uploaded, caption, mimeType)
	resp, err := c.wa.SendMessage(ctx, jid, message)
	if err != nil {
		return "", fmt.Errorf("failed to send media: %w", err)
	}

	c.logger.InfoWithFields("Media message sent", map[string]interface{}{
		"to":         jid.String(),
		"message_id": resp.ID,
		"mime_type":  mimeType,
		"bytes":      len(data),
	})
	return resp.ID, nil
}

func uploadTypeFor(mimeType string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func buildMediaMessage(mediaType whatsmeow.MediaType, uploaded whatsmeow.UploadResponse, caption, mimeType string) *waE2E.Message {
	switch mediaType {
	case whatsmeow.MediaImage:
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}}

	case whatsmeow.MediaVideo:
		if mimeType == "" {
			mimeType = "video/mp4"
		}
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(caption),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}}

	case whatsmeow.MediaAudio:
		if mimeType == "" {
			mimeType = "audio/ogg; codecs=opus"
		}
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}}

	default:
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		filename := "document"
		document := &waE2E.DocumentMessage{
			Title:         proto.String(filename),
			FileName:      proto.String(filename),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}
		if caption != "" {
			document.Caption = proto.String(caption)
		}
		return &waE2E.Message{DocumentMessage: document}
	}
}

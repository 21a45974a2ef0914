package waclient

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/identity"
)

const (
	mediaDownloadTimeout = 60 * time.Second
	attachRetries        = 3
	attachRetryDelay     = 500 * time.Millisecond
	maxE2EUnwrapDepth    = 3
)

// mediaRef points at the downloadable part of a message.
type mediaRef struct {
	message   whatsmeow.DownloadableMessage
	mimeType  string
	thumbnail []byte
}

// mediaOf finds the downloadable content of a message, looking through
// the ephemeral and view-once wrappers.
func mediaOf(msg *waE2E.Message) *mediaRef {
	msg = unwrapE2E(unwrapDeviceSent(msg))
	if msg == nil {
		return nil
	}

	switch {
	case msg.ImageMessage != nil:
		im := msg.ImageMessage
		return &mediaRef{message: im, mimeType: im.GetMimetype(), thumbnail: im.GetJPEGThumbnail()}
	case msg.VideoMessage != nil:
		vm := msg.VideoMessage
		return &mediaRef{message: vm, mimeType: vm.GetMimetype(), thumbnail: vm.GetJPEGThumbnail()}
	case msg.AudioMessage != nil:
		return &mediaRef{message: msg.AudioMessage, mimeType: msg.AudioMessage.GetMimetype()}
	case msg.DocumentMessage != nil:
		dm := msg.DocumentMessage
		return &mediaRef{message: dm, mimeType: dm.GetMimetype(), thumbnail: dm.GetJPEGThumbnail()}
	case msg.StickerMessage != nil:
		return &mediaRef{message: msg.StickerMessage, mimeType: msg.StickerMessage.GetMimetype()}
	}
	return nil
}

// unwrapE2E walks the wrapper chain with the same depth bound the
// pipeline uses.
func unwrapE2E(msg *waE2E.Message) *waE2E.Message {
	for depth := 0; msg != nil && depth < maxE2EUnwrapDepth; depth++ {
		var inner *waE2E.Message
		switch {
		case msg.GetEphemeralMessage().GetMessage() != nil:
			inner = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage().GetMessage() != nil:
			inner = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2().GetMessage() != nil:
			inner = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetDocumentWithCaptionMessage().GetMessage() != nil:
			inner = msg.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return msg
		}
		msg = inner
	}
	return msg
}

// fetchMedia downloads the full media of a message and backfills its
// handle on the stored copy. When the download fails, the inline
// thumbnail is persisted instead so at least the preview survives.
func (c *Client) fetchMedia(key envelope.MessageKey, ref *mediaRef) {
	sourceID := mediaSourceID(key)
	if sourceID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(c.runCtx, mediaDownloadTimeout)
	defer cancel()

	data, err := c.wa.Download(ctx, ref.message)
	mimeType := ref.mimeType
	if err != nil {
		c.logger.WarnWithFields("Media download failed", map[string]interface{}{
			"message_id": key.ID,
			"error":      err.Error(),
		})
		if len(ref.thumbnail) == 0 {
			return
		}
		data = ref.thumbnail
		mimeType = "image/jpeg"
	}

	handle, err := c.media.Save(key.ID, data, mimeType)
	if err != nil {
		c.logger.WarnWithFields("Failed to persist media", map[string]interface{}{
			"message_id": key.ID,
			"error":      err.Error(),
		})
		return
	}
	c.attachMedia(sourceID, key.ID, handle)
}

// attachMedia retries briefly: the router consumes envelopes
// asynchronously, so a fast download can beat the store write.
func (c *Client) attachMedia(sourceID, messageID, handle string) {
	for attempt := 0; attempt < attachRetries; attempt++ {
		if c.messages.AttachMedia(sourceID, messageID, handle) {
			return
		}
		select {
		case <-c.runCtx.Done():
			return
		case <-time.After(attachRetryDelay):
		}
	}
	c.logger.DebugWithFields("Media handle not attached, message was not stored", map[string]interface{}{
		"message_id": messageID,
		"source":     sourceID,
	})
}

// mediaSourceID mirrors the key the pipeline stores messages under. A
// linked-id chat with no resolved phone cannot be mirrored, so its
// media is skipped.
func mediaSourceID(key envelope.MessageKey) string {
	src := identity.Parse(key.RemoteJID)
	switch src.Type {
	case identity.SourceGroup:
		return identity.NormalizeGroupID(src.ID)
	case identity.SourceContact:
		if src.IsLinkedID {
			return identity.NormalizePhone(key.SenderPN)
		}
		return identity.NormalizePhone(src.ID)
	}
	return ""
}

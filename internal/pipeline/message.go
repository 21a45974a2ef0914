package pipeline

import (
	"context"
	"time"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/identity"
	"zapfilter/internal/core/mention"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

// Filter and skip reasons surfaced in results and event records.
const (
	ReasonStatusBroadcast = "status_broadcast"
	ReasonNotAllowed      = "not_in_allowed_contacts"
	ReasonNoDestination   = "no_destination_for_type"
	ReasonNoMention       = "no_mention"
	ReasonProtocolOnly    = "protocol_only"
	ReasonUpdatesDisabled = "updates_disabled"
)

// EntityTypeSelf marks messages from the account's own number, which
// are always allowed.
const EntityTypeSelf = "SELF"

// LIDResolver maps a linked identifier to a phone number. Implemented
// by the client adapter; nil when the adapter is disabled.
type LIDResolver interface {
	ResolveLID(ctx context.Context, lid string) (string, bool)
}

// MessageOptions carries the flags that shape message handling.
type MessageOptions struct {
	MentionsEnabled   bool
	MentionWebhookURL string
	MentionToken      string
	MentionsOnly      bool
	ForwardOutgoing   bool
	ForwardUpdates    bool
	LogPresence       bool
}

// MessageHandler implements the message-event half of the pipeline:
// authorization against the config store, history storage, mention
// detection and forwarding.
type MessageHandler struct {
	config     *store.Config
	stats      *store.Stats
	messages   *store.Messages
	dispatcher *webhook.Dispatcher
	mentions   *mention.Detector
	conn       *Connection
	resolver   LIDResolver
	opts       MessageOptions
	logger     *logger.Logger
}

// NewMessageHandler wires the handler. resolver may be nil.
func NewMessageHandler(
	config *store.Config,
	stats *store.Stats,
	messages *store.Messages,
	dispatcher *webhook.Dispatcher,
	mentions *mention.Detector,
	conn *Connection,
	resolver LIDResolver,
	opts MessageOptions,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		config:     config,
		stats:      stats,
		messages:   messages,
		dispatcher: dispatcher,
		mentions:   mentions,
		conn:       conn,
		resolver:   resolver,
		opts:       opts,
		logger:     log.WithModule("message-handler"),
	}
}

// HandleUpsert processes incoming messages.
func (h *MessageHandler) HandleUpsert(ctx context.Context, env envelope.Envelope) Result {
	return h.handleMessage(ctx, env, false)
}

// HandleSend processes messages this account sent.
func (h *MessageHandler) HandleSend(ctx context.Context, env envelope.Envelope) Result {
	return h.handleMessage(ctx, env, true)
}

func (h *MessageHandler) handleMessage(ctx context.Context, env envelope.Envelope, outgoing bool) Result {
	data, err := env.MessageData()
	if err != nil {
		h.stats.Increment(env.Event, store.FieldFailed)
		h.stats.LogEvent(store.EventRecord{
			Event:  env.Event,
			Action: store.ActionFailed,
			Error:  err.Error(),
		})
		return Result{Success: false, Action: store.ActionFailed, Error: err.Error()}
	}

	src := identity.Parse(data.Key.RemoteJID)

	if src.Type == identity.SourceStatus {
		return h.filtered(env, data, "status", string(src.Type), ReasonStatusBroadcast, "")
	}

	phone, lid := h.resolveContact(ctx, src, data)

	if data.Message == nil || data.Message.IsProtocolOnly() {
		h.logger.DebugWithFields("Protocol-only message skipped", map[string]interface{}{
			"event":  env.Event,
			"source": data.Key.RemoteJID,
		})
		return Result{Success: true, Action: store.ActionLogged, Reason: ReasonProtocolOnly}
	}

	content := envelope.Extract(data.Message)

	sourceKey, entityType, senderName, allowed := h.authorize(src, phone, lid, data.PushName)
	if !allowed {
		return h.filtered(env, data, sourceKey, string(src.Type), ReasonNotAllowed, content.Body)
	}

	h.storeMessage(sourceKey, data, content, outgoing)

	if !outgoing && src.Type == identity.SourceGroup {
		if result, done := h.groupMentions(ctx, env, data, content, sourceKey, senderName); done {
			return result
		}
	}

	if outgoing && !h.opts.ForwardOutgoing {
		h.stats.LogEvent(store.EventRecord{
			Event:       env.Event,
			Source:      sourceKey,
			SourceType:  string(src.Type),
			SenderName:  senderName,
			EntityType:  entityType,
			Action:      store.ActionStored,
			MessageBody: content.Body,
		})
		return Result{Success: true, Action: store.ActionStored}
	}

	return h.forward(ctx, env, store.EventRecord{
		Source:     sourceKey,
		SourceType: string(src.Type),
		SenderName: senderName,
		EntityType: entityType,
	}, content.Body, entityType)
}

// HandleUpdate processes message edits and receipts. They are only
// forwarded when enabled, and only for allowed sources.
func (h *MessageHandler) HandleUpdate(ctx context.Context, env envelope.Envelope) Result {
	data, err := env.MessageData()
	if err != nil {
		h.stats.LogEvent(store.EventRecord{Event: env.Event, Action: store.ActionLogged, Error: err.Error()})
		return Result{Success: true, Action: store.ActionLogged}
	}

	if !h.opts.ForwardUpdates {
		h.stats.LogEvent(store.EventRecord{
			Event:  env.Event,
			Source: data.Key.RemoteJID,
			Action: store.ActionLogged,
			Reason: ReasonUpdatesDisabled,
		})
		return Result{Success: true, Action: store.ActionLogged, Reason: ReasonUpdatesDisabled}
	}

	src := identity.Parse(data.Key.RemoteJID)
	if src.Type == identity.SourceStatus {
		return h.filtered(env, data, "status", string(src.Type), ReasonStatusBroadcast, "")
	}

	phone, lid := h.resolveContact(ctx, src, data)
	sourceKey, entityType, senderName, allowed := h.authorize(src, phone, lid, data.PushName)
	if !allowed {
		return h.filtered(env, data, sourceKey, string(src.Type), ReasonNotAllowed, "")
	}

	return h.forward(ctx, env, store.EventRecord{
		Source:     sourceKey,
		SourceType: string(src.Type),
		SenderName: senderName,
		EntityType: entityType,
	}, "", entityType)
}

// HandlePresence drops presence noise unless logging it is enabled.
func (h *MessageHandler) HandlePresence(ctx context.Context, env envelope.Envelope) Result {
	if !h.opts.LogPresence {
		return Result{Success: true, Action: "ignored"}
	}
	h.stats.LogEvent(store.EventRecord{
		Event:  env.Event,
		Source: env.Source,
		Action: store.ActionLogged,
	})
	return Result{Success: true, Action: store.ActionLogged}
}

// resolveContact returns the phone and linked identifier of a contact
// source. The payload hint wins; the resolver chain is the fallback.
func (h *MessageHandler) resolveContact(ctx context.Context, src identity.Source, data *envelope.MessageData) (phone, lid string) {
	if src.Type != identity.SourceContact {
		return "", ""
	}
	if !src.IsLinkedID {
		return identity.NormalizePhone(src.ID), ""
	}

	lid = identity.NormalizePhone(src.ID)
	if pn := identity.NormalizePhone(data.Key.SenderPN); pn != "" {
		return pn, lid
	}
	if h.resolver != nil {
		if pn, ok := h.resolver.ResolveLID(ctx, lid); ok {
			return identity.NormalizePhone(pn), lid
		}
	}
	return "", lid
}

// authorize resolves the source against the config store. The account's
// own number is always allowed.
func (h *MessageHandler) authorize(src identity.Source, phone, lid, pushName string) (sourceKey, entityType, senderName string, allowed bool) {
	switch src.Type {
	case identity.SourceGroup:
		key := identity.NormalizeGroupID(src.ID)
		group, ok := h.config.FindGroupByID(key)
		if !ok {
			return key, "", pushName, false
		}
		return key, group.Type, group.Name, true

	case identity.SourceContact:
		key := phone
		if key == "" {
			key = lid
		}

		if self := h.conn.Phone(); self != "" && phone == self {
			name := pushName
			if name == "" {
				name = "Self"
			}
			return key, EntityTypeSelf, name, true
		}

		if phone != "" {
			if contact, ok := h.config.FindContactByPhone(phone); ok {
				return key, contact.Type, contact.Name, true
			}
		}
		if lid != "" {
			if contact, ok := h.config.FindContactByPhone(lid); ok {
				return key, contact.Type, contact.Name, true
			}
		}
		return key, "", pushName, false
	}

	return src.ID, "", pushName, false
}

// storeMessage records the normalized message. Failures are logged and
// never break the pipeline.
func (h *MessageHandler) storeMessage(sourceKey string, data *envelope.MessageData, content envelope.Content, outgoing bool) {
	thumbnail := content.Thumbnail
	if data.Thumbnail != "" {
		thumbnail = data.Thumbnail
	}
	h.messages.Store(sourceKey, store.Message{
		ID:          data.Key.ID,
		Body:        content.Body,
		Type:        content.Type,
		HasMedia:    content.HasMedia,
		MediaType:   content.MediaType,
		MediaHandle: data.MediaHandle,
		Thumbnail:   thumbnail,
		FromSelf:    outgoing || data.Key.FromMe,
		Timestamp:   tsToISO(data.MessageTimestamp),
		QuotedBody:  content.QuotedBody,
	})
}

// groupMentions runs mention detection on a group message. The second
// return is true when the mentions-only mode already decided the
// outcome.
func (h *MessageHandler) groupMentions(ctx context.Context, env envelope.Envelope, data *envelope.MessageData, content envelope.Content, groupID, groupName string) (Result, bool) {
	if !h.opts.MentionsEnabled {
		return Result{}, false
	}

	res := h.mentions.Detect(data.Message, content.Body, h.conn.Phone(), h.messages.IsOurMessage)
	if res.Mentioned && h.opts.MentionWebhookURL != "" {
		h.notifyMention(env, data, content, res, groupID, groupName)
	}

	if h.opts.MentionsOnly && !res.Mentioned {
		h.stats.Increment(env.Event, store.FieldFiltered)
		h.stats.LogEvent(store.EventRecord{
			Event:       env.Event,
			Source:      groupID,
			SourceType:  string(identity.SourceGroup),
			SenderName:  groupName,
			Action:      store.ActionFiltered,
			Reason:      ReasonNoMention,
			MessageBody: content.Body,
		})
		return Result{Success: true, Action: store.ActionFiltered, Reason: ReasonNoMention}, true
	}
	return Result{}, false
}

// notifyMention fires the mention webhook without blocking the
// pipeline. The payload carries the original event alongside the
// mention summary.
func (h *MessageHandler) notifyMention(env envelope.Envelope, data *envelope.MessageData, content envelope.Content, res mention.Result, groupID, groupName string) {
	payload := map[string]interface{}{
		"groupId":    groupID,
		"groupName":  groupName,
		"sender":     identity.NormalizePhone(data.Key.Participant),
		"senderName": data.PushName,
		"message":    content.Body,
		"messageId":  data.Key.ID,
		"method":     res.Method,
		"timestamp":  tsToISO(data.MessageTimestamp),
		"event":      env.Data,
	}
	if len(res.Keywords) > 0 {
		payload["keywords"] = res.Keywords
	}
	headers := map[string]string{}
	if h.opts.MentionToken != "" {
		headers["Authorization"] = "Bearer " + h.opts.MentionToken
	}

	go func() {
		if err := h.dispatcher.SendTo(context.Background(), h.opts.MentionWebhookURL, payload, headers); err != nil {
			h.logger.WarnWithFields("Mention notification failed", map[string]interface{}{
				"group": groupID,
				"error": err.Error(),
			})
			return
		}
		h.stats.LogEvent(store.EventRecord{
			Event:          envelope.MessagesUpsert,
			Source:         groupID,
			SourceType:     string(identity.SourceGroup),
			SenderName:     groupName,
			Action:         store.ActionMentionForwarded,
			Reason:         res.Method,
			MessagePreview: store.Preview(content.Body),
		})
	}()
}

// forward hands the raw payload to the dispatcher and books the
// outcome. A missing destination is a success, not a failure.
func (h *MessageHandler) forward(ctx context.Context, env envelope.Envelope, rec store.EventRecord, body, entityType string) Result {
	rec.Event = env.Event
	rec.MessageBody = body

	_, err := h.dispatcher.Forward(ctx, env.Data, webhook.Meta{
		SourceID:   rec.Source,
		SourceType: rec.SourceType,
		EntityType: entityType,
		Event:      env.Event,
	})
	switch {
	case err == nil:
		h.stats.Increment(env.Event, store.FieldForwarded)
		rec.Action = store.ActionForwarded
		h.stats.LogEvent(rec)
		return Result{Success: true, Action: store.ActionForwarded}

	case err == errors.ErrNoDestination:
		// Allowed but unroutable still counts as allowed; the reason
		// makes the coverage gap visible to operators.
		h.stats.Increment(env.Event, store.FieldForwarded)
		rec.Action = store.ActionForwarded
		rec.Reason = ReasonNoDestination
		h.stats.LogEvent(rec)
		return Result{Success: true, Action: store.ActionForwarded, Reason: ReasonNoDestination}

	default:
		h.stats.Increment(env.Event, store.FieldFailed)
		rec.Action = store.ActionFailed
		rec.Error = err.Error()
		h.stats.LogEvent(rec)
		return Result{Success: false, Action: store.ActionFailed, Error: err.Error()}
	}
}

// filtered books a filtered outcome.
func (h *MessageHandler) filtered(env envelope.Envelope, data *envelope.MessageData, sourceKey, sourceType, reason, body string) Result {
	h.stats.Increment(env.Event, store.FieldFiltered)
	h.stats.LogEvent(store.EventRecord{
		Event:       env.Event,
		Source:      sourceKey,
		SourceType:  sourceType,
		SenderName:  data.PushName,
		Action:      store.ActionFiltered,
		Reason:      reason,
		MessageBody: body,
	})
	return Result{Success: true, Action: store.ActionFiltered, Reason: reason}
}

func tsToISO(ts int64) string {
	if ts <= 0 {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

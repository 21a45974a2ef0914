package waclient

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"zapfilter/platform/logger"
)

// Resolver maps WhatsApp linked identifiers back to phone numbers.
// Lookups try the local cache, then the contact index whatsmeow
// maintains, then the group roster. Confirmed mappings are cached.
type Resolver struct {
	wa     *whatsmeow.Client
	known  *cache.Cache
	logger *logger.Logger
}

func newResolver(wa *whatsmeow.Client, log *logger.Logger) *Resolver {
	return &Resolver{
		wa:     wa,
		known:  cache.New(24*time.Hour, 1*time.Hour),
		logger: log,
	}
}

// ResolveLID looks up a bare linked identifier. This is the pipeline
// fallback for envelopes that arrive without a phone hint, such as
// ingress submissions.
func (r *Resolver) ResolveLID(ctx context.Context, lid string) (string, bool) {
	if lid == "" {
		return "", false
	}
	if phone, ok := r.known.Get(lid); ok {
		return phone.(string), true
	}

	jid := types.NewJID(lid, types.HiddenUserServer)
	pn, err := r.wa.Store.LIDs.GetPNForLID(ctx, jid)
	if err == nil && !pn.IsEmpty() {
		r.remember(lid, pn.User)
		return pn.User, true
	}
	return "", false
}

// resolveInChat adds the group roster lookup, which needs to know the
// chat the message came from.
func (r *Resolver) resolveInChat(ctx context.Context, lid string, chat types.JID) (string, bool) {
	if phone, ok := r.ResolveLID(ctx, lid); ok {
		return phone, true
	}
	if chat.Server != types.GroupServer {
		return "", false
	}

	info, err := r.wa.GetGroupInfo(ctx, chat)
	if err != nil {
		r.logger.DebugWithFields("Group roster lookup failed", map[string]interface{}{
			"chat":  chat.String(),
			"error": err.Error(),
		})
		return "", false
	}
	for _, p := range info.Participants {
		if p.JID.User == lid && !p.PhoneNumber.IsEmpty() {
			r.remember(lid, p.PhoneNumber.User)
			return p.PhoneNumber.User, true
		}
	}
	return "", false
}

// remember caches a confirmed mapping.
func (r *Resolver) remember(lid, phone string) {
	if lid == "" || phone == "" {
		return
	}
	r.known.Set(lid, phone, cache.DefaultExpiration)
}

package mention

import (
	"strings"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/core/identity"
)

// Result is the outcome of a mention check. Method is one of
// tag, keyword or reply.
type Result struct {
	Mentioned bool     `json:"mentioned"`
	Method    string   `json:"method,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

const (
	MethodTag     = "tag"
	MethodKeyword = "keyword"
	MethodReply   = "reply"
)

// Detector checks group messages for the three mention signals.
type Detector struct {
	keywords []string
}

// NewDetector creates a detector for a keyword list. Keywords are
// matched case-insensitively inside the message body.
func NewDetector(keywords []string) *Detector {
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			cleaned = append(cleaned, strings.ToLower(trimmed))
		}
	}
	return &Detector{keywords: cleaned}
}

// Detect runs the checks in order: tag mention, keyword mention, reply
// mention. The first hit wins. isOurs answers whether a stanza ID
// belongs to a message this instance sent.
func (d *Detector) Detect(content *envelope.MessageContent, body, selfPhone string, isOurs func(string) bool) Result {
	self := identity.NormalizePhone(selfPhone)
	if self == "" {
		return Result{}
	}

	ctx := content.Unwrap().Context()

	if ctx != nil {
		for _, jid := range ctx.MentionedJID {
			n := identity.NormalizePhone(jid)
			if n == "" {
				continue
			}
			if n == self || strings.HasSuffix(n, self) {
				return Result{Mentioned: true, Method: MethodTag}
			}
		}
	}

	if len(d.keywords) > 0 && body != "" {
		lowered := strings.ToLower(body)
		var matched []string
		for _, kw := range d.keywords {
			if strings.Contains(lowered, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			return Result{Mentioned: true, Method: MethodKeyword, Keywords: matched}
		}
	}

	if ctx != nil && ctx.StanzaID != "" && isOurs != nil && isOurs(ctx.StanzaID) {
		return Result{Mentioned: true, Method: MethodReply}
	}

	return Result{}
}

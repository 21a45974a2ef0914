package identity

import "strings"

// SourceType classifies the origin of a remote address.
type SourceType string

const (
	SourceContact SourceType = "contact"
	SourceGroup   SourceType = "group"
	SourceStatus  SourceType = "status"
	SourceUnknown SourceType = "unknown"
)

// Source is the parsed form of a remote address.
type Source struct {
	ID                string
	Type              SourceType
	IsStatusBroadcast bool
	IsLinkedID        bool
}

const (
	groupSuffix   = "@g.us"
	userSuffix    = "@s.whatsapp.net"
	linkedSuffix  = "@lid"
	statusAddress = "status@broadcast"
)

// Parse classifies a remote address. Rules apply in order: empty,
// status broadcast, group, linked identifier, plain contact.
func Parse(remote string) Source {
	if remote == "" {
		return Source{Type: SourceUnknown}
	}
	if strings.Contains(remote, statusAddress) {
		return Source{Type: SourceStatus, IsStatusBroadcast: true}
	}
	if strings.Contains(remote, groupSuffix) {
		return Source{
			ID:   strings.TrimSuffix(remote, groupSuffix),
			Type: SourceGroup,
		}
	}
	if strings.Contains(remote, linkedSuffix) {
		return Source{
			ID:         strings.TrimSuffix(remote, linkedSuffix),
			Type:       SourceContact,
			IsLinkedID: true,
		}
	}
	return Source{
		ID:   strings.TrimSuffix(remote, userSuffix),
		Type: SourceContact,
	}
}

// NormalizePhone strips every non-digit character. The result is
// stable under repeated application, so both sides of any phone
// comparison must pass through it.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeGroupID strips a trailing group suffix and nothing else.
func NormalizeGroupID(groupID string) string {
	return strings.TrimSuffix(groupID, groupSuffix)
}

// ValidPhone reports whether the normalized form has a plausible
// length for an international number.
func ValidPhone(phone string) bool {
	n := NormalizePhone(phone)
	return len(n) >= 10 && len(n) <= 15
}

// ValidGroupID reports whether the normalized group ID is digits-only
// with a plausible length.
func ValidGroupID(groupID string) bool {
	n := NormalizeGroupID(groupID)
	if len(n) < 10 || len(n) > 25 {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"zapfilter/platform/logger"
)

// IPAllowlist rejects callers whose address matches no allowlist
// entry. Entries are plain addresses or CIDR ranges. An empty list
// disables the check entirely.
func IPAllowlist(entries []string, log *logger.Logger) func(http.Handler) http.Handler {
	plain, networks := parseAllowlist(entries, log)

	return func(next http.Handler) http.Handler {
		if len(plain) == 0 && len(networks) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := getClientIP(r)
			if allowed(caller, plain, networks) {
				next.ServeHTTP(w, r)
				return
			}

			log.WarnWithFields("Request blocked by IP allowlist", map[string]interface{}{
				"ip":   caller,
				"path": r.URL.Path,
			})
			writeForbidden(w)
		})
	}
}

func parseAllowlist(entries []string, log *logger.Logger) (map[string]bool, []*net.IPNet) {
	plain := make(map[string]bool)
	var networks []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				log.WarnWithFields("Ignoring malformed allowlist entry", map[string]interface{}{
					"entry": entry,
					"error": err.Error(),
				})
				continue
			}
			networks = append(networks, network)
			continue
		}
		plain[entry] = true
	}
	return plain, networks
}

func allowed(caller string, plain map[string]bool, networks []*net.IPNet) bool {
	if plain[caller] {
		return true
	}
	ip := net.ParseIP(caller)
	if ip == nil {
		return false
	}
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Forbidden",
	})
}

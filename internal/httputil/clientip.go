// Package httputil holds small request helpers shared by the API and
// stream layers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address of a request.
// With trustProxy set, proxy headers are consulted first; values that do
// not parse as IP addresses are ignored rather than trusted blindly.
// Only enable trustProxy behind a reverse proxy that sanitizes these
// headers, since clients can set them freely otherwise.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := fromProxyHeaders(r); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// fromProxyHeaders returns the leftmost valid X-Forwarded-For entry,
// falling back to X-Real-IP, or empty when neither holds an IP.
func fromProxyHeaders(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return ""
}

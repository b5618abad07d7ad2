package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const ClientIPContextKey contextKey = "client_ip"

// TrustedProxies is the set of peers whose forwarding headers are believed.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts plain IPs and CIDR ranges.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		p.nets = append(p.nets, ipNet)
	}
	return p, nil
}

// Contains reports whether ip belongs to a trusted proxy.
func (p *TrustedProxies) Contains(ip string) bool {
	if p == nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// RealIP resolves the client IP once per request. Forwarding headers are
// only read when the connecting peer is a trusted proxy.
func RealIP(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, proxies)
			ctx := context.WithValue(r.Context(), ClientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the IP resolved by RealIP, or the connecting peer when the
// request did not pass through it.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	return peerIP(r)
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func resolveClientIP(r *http.Request, proxies *TrustedProxies) string {
	peer := peerIP(r)
	if !proxies.Contains(peer) {
		return peer
	}

	// walk X-Forwarded-For from the nearest hop, skipping our own proxies
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !proxies.Contains(hop) || i == 0 {
				return hop
			}
		}
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return peer
}

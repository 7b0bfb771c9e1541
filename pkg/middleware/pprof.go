package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RegisterPprof mounts chi's profiler under /debug, which serves
// /debug/pprof/* and /debug/vars. Only callers inside allowedCIDRs reach it.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	r.With(IPAllowlist(allowedCIDRs, logger)).Mount("/debug", chimw.Profiler())
}

// ParseAllowlist turns CIDRs or bare addresses into prefixes. A bare address
// becomes a single-host prefix. Entries that parse as neither are returned
// in rejected.
func ParseAllowlist(entries []string) (prefixes []netip.Prefix, rejected []string) {
	for _, entry := range entries {
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		rejected = append(rejected, entry)
	}
	return prefixes, rejected
}

// IPAllowlist returns middleware that rejects callers whose remote address is
// outside every allowed prefix. An empty allowlist denies everyone.
// X-Forwarded-For is ignored; the profiler must be reached directly.
func IPAllowlist(entries []string, logger *slog.Logger) func(http.Handler) http.Handler {
	prefixes, rejected := ParseAllowlist(entries)
	for _, entry := range rejected {
		logger.Warn("invalid allowlist entry, skipping", slog.String("entry", entry))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := remoteAddr(r)
			if !ok || !allowed(prefixes, addr) {
				logger.Warn("access denied by IP allowlist",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("path", r.URL.Path),
				)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "access restricted by IP allowlist")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	// IPv4 clients on a dual-stack listener show up as ::ffff:a.b.c.d.
	return addr.Unmap(), true
}

func allowed(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

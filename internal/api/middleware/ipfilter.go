package middleware

import (
	"fmt"
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// IPFilter checks client IPs against configured allow and deny lists.
// Entries are single addresses or CIDR ranges.
type IPFilter struct {
	allow  []netip.Prefix
	deny   []netip.Prefix
	logger zerolog.Logger
}

// NewIPFilter creates an IP filter from configured entries. Deny entries win
// over allow entries; a non-empty allow list turns the filter into default
// deny.
func NewIPFilter(allowList, denyList []string, logger zerolog.Logger) (*IPFilter, error) {
	allow, err := parsePrefixes(allowList)
	if err != nil {
		return nil, fmt.Errorf("parse IP allow list: %w", err)
	}
	deny, err := parsePrefixes(denyList)
	if err != nil {
		return nil, fmt.Errorf("parse IP deny list: %w", err)
	}
	return &IPFilter{
		allow:  allow,
		deny:   deny,
		logger: logger.With().Str("component", "ip_filter").Logger(),
	}, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix)
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP entry %q", entry)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// CheckIP reports whether the address passes the filter. An unparsable
// address is denied: it cannot be matched against either list.
func (f *IPFilter) CheckIP(ipAddress string) (allowed bool, reason string) {
	addr, err := netip.ParseAddr(ipAddress)
	if err != nil {
		return false, "unparsable client address"
	}
	addr = addr.Unmap()

	for _, prefix := range f.deny {
		if prefix.Contains(addr) {
			return false, "IP address is deny-listed"
		}
	}

	if len(f.allow) == 0 {
		return true, ""
	}
	for _, prefix := range f.allow {
		if prefix.Contains(addr) {
			return true, ""
		}
	}
	return false, "IP address not in allow list"
}

// IPFilterMiddleware returns a Gin middleware that rejects requests from
// filtered addresses before any authentication runs.
func IPFilterMiddleware(filter *IPFilter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, reason := filter.CheckIP(clientIP)
		if !allowed {
			filter.logger.Warn().
				Str("ip", clientIP).
				Str("path", c.Request.URL.Path).
				Str("reason", reason).
				Msg("IP access blocked")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		c.Next()
	}
}

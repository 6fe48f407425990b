// Package guard admits console traffic only from configured admin networks.
package guard

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/util"
)

// AllowList is the set of client networks allowed to reach the console. An
// empty list admits everyone. It can be replaced at runtime.
type AllowList struct {
	mu       sync.RWMutex
	prefixes []netip.Prefix
}

// NewAllowList parses entries, each an IP or CIDR.
func NewAllowList(entries []string) (*AllowList, error) {
	l := &AllowList{}
	if err := l.Replace(entries); err != nil {
		return nil, err
	}
	return l, nil
}

// Replace swaps the whole list. On a parse error the old list stays.
func (l *AllowList) Replace(entries []string) error {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		p, err := parseEntry(e)
		if err != nil {
			return err
		}
		prefixes = append(prefixes, p)
	}

	l.mu.Lock()
	l.prefixes = prefixes
	l.mu.Unlock()
	return nil
}

func parseEntry(e string) (netip.Prefix, error) {
	if strings.Contains(e, "/") {
		p, err := netip.ParsePrefix(e)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid allow-list CIDR %q: %w", e, err)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(e)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid allow-list address %q: %w", e, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Entries returns the current list in CIDR form.
func (l *AllowList) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.prefixes))
	for i, p := range l.prefixes {
		out[i] = p.String()
	}
	return out
}

// Allows reports whether ip may reach the console. Unparseable addresses are
// refused unless the list is empty.
func (l *AllowList) Allows(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.prefixes) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware rejects clients outside the list with 403. It runs ahead of
// authentication.
func (l *AllowList) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if l.Allows(ip) {
			c.Next()
			return
		}
		metrics.IncAllowListBlocked()
		logger.WithFields(logrus.Fields{
			"source":   "allowlist",
			"decision": "block",
			"client":   util.SanitizeForLog(ip),
			"path":     util.SanitizeForLog(c.Request.URL.Path),
		}).Warn("console request from non-allow-listed address")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Blocked by admin allow-list"})
	}
}

package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxLimiterEntries caps how many client buckets a limiter holds.
	maxLimiterEntries = 10000
	// limiterIdle is how long a bucket may go unused before cleanup drops it.
	limiterIdle = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

type IPRateLimiter struct {
	ips map[string]*limiterEntry
	mu  *sync.RWMutex
	r   rate.Limit
	b   int
	max int
	now func() time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*limiterEntry),
		mu:  &sync.RWMutex{},
		r:   r,
		b:   b,
		max: maxLimiterEntries,
		now: time.Now,
	}
}

// newPerMinuteLimiter allows perMinute requests a minute per IP with a burst
// of a tenth of that, never less than one.
func newPerMinuteLimiter(perMinute int) *IPRateLimiter {
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return NewIPRateLimiter(rate.Limit(float64(perMinute)/60), burst)
}

func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	now := l.now().UnixNano()

	l.mu.RLock()
	entry, exists := l.ips[ip]
	l.mu.RUnlock()
	if exists {
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists = l.ips[ip]
	if !exists {
		if len(l.ips) >= l.max {
			l.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = entry
	}
	entry.lastSeen.Store(now)

	return entry.limiter
}

// evictOldest drops the least recently seen bucket. Callers hold mu.
func (l *IPRateLimiter) evictOldest() {
	var (
		oldestIP string
		oldest   int64
	)
	for ip, e := range l.ips {
		if seen := e.lastSeen.Load(); oldestIP == "" || seen < oldest {
			oldestIP, oldest = ip, seen
		}
	}
	delete(l.ips, oldestIP)
}

func (l *IPRateLimiter) Allow(ip string) bool {
	return l.GetLimiter(ip).Allow()
}

// Cleanup drops buckets unused for longer than idle and returns how many
// were removed.
func (l *IPRateLimiter) Cleanup(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, e := range l.ips {
		if e.lastSeen.Load() < cutoff {
			delete(l.ips, ip)
			removed++
		}
	}
	return removed
}

// Len reports how many client buckets are held.
func (l *IPRateLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ips)
}

// parseTrustedProxies accepts bare addresses and CIDR ranges.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func isTrusted(trusted []netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the caller's address. X-Forwarded-For is only read when
// the direct peer is a trusted proxy; the chain is walked from the right
// and the first hop that is not itself trusted wins.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if len(trusted) == 0 || !isTrusted(trusted, remote) {
		return remote
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := remote
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		client = hop
		if !isTrusted(trusted, hop) {
			break
		}
	}
	return client
}

// clientIP resolves the caller with the server's trusted proxies.
func (s *Server) clientIP(r *http.Request) string {
	return clientIP(r, s.trustedProxies)
}

// limit rejects requests over the per-IP budget with 429.
func (s *Server) limit(name string, l *IPRateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if !l.Allow(ip) {
			s.metrics.RecordRateLimited(name)
			log.Printf("Rate limit exceeded for %s on %s", ip, name)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// sweepLimiters drops idle buckets until the server shuts down.
func (s *Server) sweepLimiters(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n := s.apiLimiter.Cleanup(limiterIdle) + s.chatLimiter.Cleanup(limiterIdle)
			if n > 0 {
				log.Printf("Rate limiter cleanup removed %d idle clients", n)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/botrag-go/internal/logging"
)

// Token-bucket defaults applied when Config leaves them at zero.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// bucketIdleTTL is how long a client's bucket survives without traffic.
const bucketIdleTTL = 5 * time.Minute

// clientResolver attributes a request to a client address. The TCP peer is
// the client unless it is a trusted proxy, in which case the nearest
// untrusted hop of X-Forwarded-For (or X-Real-IP) is used.
type clientResolver struct {
	trusted []netip.Prefix
}

// newClientResolver parses proxies, each an IP or a CIDR.
func newClientResolver(proxies []string) (*clientResolver, error) {
	c := &clientResolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
			}
			c.trusted = append(c.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		addr = addr.Unmap()
		c.trusted = append(c.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return c, nil
}

func (c *clientResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// resolve returns the client address of r.
func (c *clientResolver) resolve(r *http.Request) string {
	peer := peerHost(r.RemoteAddr)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !c.isTrusted(addr) {
		return peer
	}

	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return peer
		}
		if !c.isTrusted(hop) {
			return hop.Unmap().String()
		}
	}
	if xr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xr.Unmap().String()
	}
	return peer
}

// peerHost strips the port from a RemoteAddr.
func peerHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// bucket is one client's token bucket.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a token bucket per client on the data routes.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	clients *clientResolver
	// onReject is called for every 429. May be nil.
	onReject func()
	// now is the clock for bucket bookkeeping.
	now func() time.Time
}

// newRateLimiter starts a limiter whose idle buckets are evicted every
// minute until the returned stop function is called.
func newRateLimiter(rps float64, burst int, clients *clientResolver, onReject func()) (*rateLimiter, func()) {
	if clients == nil {
		clients = &clientResolver{}
	}
	rl := &rateLimiter{
		buckets:  make(map[string]*bucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		clients:  clients,
		onReject: onReject,
		now:      time.Now,
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()
	return rl, func() { close(stop) }
}

// allow takes a token from client's bucket.
func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evict drops buckets idle for longer than bucketIdleTTL.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-bucketIdleTTL)
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// size returns the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware rejects requests over the client's budget with 429 and a
// Retry-After header.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := rl.clients.resolve(r)
		if !rl.allow(client) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client", client),
				slog.String("path", r.URL.Path),
			)
			if rl.onReject != nil {
				rl.onReject()
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

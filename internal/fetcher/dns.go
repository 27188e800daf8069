package fetcher

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

const (
	DefaultDNSCacheTTL  = 5 * time.Minute
	defaultDNSCacheSize = 1000
)

type skipDNSCacheKey struct{}

// withoutDNSCache marks ctx so the dialer resolves the host afresh.
func withoutDNSCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipDNSCacheKey{}, true)
}

func dnsCacheSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipDNSCacheKey{}).(bool)
	return skip
}

type resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type dnsEntry struct {
	addrs     []string
	expiresAt time.Time
}

// dnsCache memoizes host lookups for the HTTP transport's dialer.
type dnsCache struct {
	resolver resolver
	ttl      time.Duration
	maxSize  int

	mu      sync.Mutex
	entries map[string]dnsEntry
	now     func() time.Time
}

func newDNSCache(r resolver, ttl time.Duration) *dnsCache {
	if ttl <= 0 {
		ttl = DefaultDNSCacheTTL
	}
	return &dnsCache{
		resolver: r,
		ttl:      ttl,
		maxSize:  defaultDNSCacheSize,
		entries:  make(map[string]dnsEntry),
		now:      time.Now,
	}
}

func (c *dnsCache) lookup(ctx context.Context, host string) ([]string, error) {
	if !dnsCacheSkipped(ctx) {
		c.mu.Lock()
		entry, ok := c.entries[host]
		c.mu.Unlock()
		if ok && c.now().Before(entry.expiresAt) {
			return entry.addrs, nil
		}
	}

	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictExpired()
	}
	if len(c.entries) < c.maxSize {
		c.entries[host] = dnsEntry{addrs: addrs, expiresAt: c.now().Add(c.ttl)}
	}
	return addrs, nil
}

// evictExpired must be called with mu held.
func (c *dnsCache) evictExpired() {
	now := c.now()
	for host, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, host)
		}
	}
}

// dialContext resolves through the cache and dials the addresses in order
// until one connects.
func (c *dnsCache) dialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) != nil {
			return dialer.DialContext(ctx, network, addr)
		}

		addrs, err := c.lookup(ctx, host)
		if err != nil {
			return nil, err
		}

		var dialErr error
		for _, ip := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			dialErr = errors.Join(dialErr, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, dialErr
	}
}

// Package ratelimit throttles writes per actor with a token bucket per key.
//
// Buckets live in process memory, so limits hold per instance only. The hub
// is deployed as a single instance; a shared counter service would implement
// Limiter for anything larger.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether the actor identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

type Config struct {
	RequestsPerMinute int
	Burst             int
	EntryTTL          time.Duration
	CleanupInterval   time.Duration
}

// Enabled reports whether cfg describes a real limit.
func (c Config) Enabled() bool {
	return c.RequestsPerMinute > 0 && c.Burst > 0
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per key and evicts keys idle longer than the
// entry TTL.
type Store struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	entries         map[string]*entry
	entryTTL        time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time

	Now func() time.Time
}

func NewStore(cfg Config) *Store {
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Store{
		limit:           limit,
		burst:           cfg.Burst,
		entries:         make(map[string]*entry),
		entryTTL:        ttl,
		cleanupInterval: cleanup,
		lastCleanup:     time.Now(),
		Now:             time.Now,
	}
}

func (s *Store) Allow(key string) bool {
	if s == nil || key == "" {
		return true
	}
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastCleanup) >= s.cleanupInterval {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.entryTTL {
				delete(s.entries, k)
			}
		}
		s.lastCleanup = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Nop never limits.
type Nop struct{}

func (Nop) Allow(string) bool { return true }

// New returns a Store for an enabled config and Nop otherwise.
func New(cfg Config) Limiter {
	if !cfg.Enabled() {
		return Nop{}
	}
	return NewStore(cfg)
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(cfg Config) (*Store, *clock) {
	c := &clock{t: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)}
	s := NewStore(cfg)
	s.Now = c.now
	s.lastCleanup = c.t
	return s, c
}

func TestStoreBurstThenRefill(t *testing.T) {
	s, c := newTestStore(Config{RequestsPerMinute: 6, Burst: 2})

	assert.True(t, s.Allow("user:a"))
	assert.True(t, s.Allow("user:a"))
	assert.False(t, s.Allow("user:a"))

	c.t = c.t.Add(10 * time.Second)
	assert.True(t, s.Allow("user:a"))
	assert.False(t, s.Allow("user:a"))
}

func TestStoreKeysAreIndependent(t *testing.T) {
	s, _ := newTestStore(Config{RequestsPerMinute: 1, Burst: 1})

	assert.True(t, s.Allow("user:a"))
	assert.False(t, s.Allow("user:a"))
	assert.True(t, s.Allow("user:b"))
	assert.True(t, s.Allow(""))
}

func TestStoreEvictsIdleKeys(t *testing.T) {
	s, c := newTestStore(Config{RequestsPerMinute: 60, Burst: 1, EntryTTL: time.Minute, CleanupInterval: time.Minute})

	s.Allow("user:a")
	s.Allow("user:b")
	assert.Equal(t, 2, s.Len())

	c.t = c.t.Add(90 * time.Second)
	s.Allow("user:b")
	assert.Equal(t, 1, s.Len())
}

func TestNewDisabledConfigNeverLimits(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("user:a"))
	}
	_, isStore := New(Config{RequestsPerMinute: 1, Burst: 1}).(*Store)
	assert.True(t, isStore)
}

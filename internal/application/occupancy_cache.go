package application

import (
	"sync"
	"time"

	"github.com/example/hall-booking/internal/calendar"
	"github.com/example/hall-booking/internal/scheduler"
)

// occupancyCache keeps the occupying reservations of a hall for one day so
// repeated conflict previews for the same day skip the store. Every booking
// write for that hall and day drops the entry.
type occupancyCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[occupancyKey]occupancyEntry
}

type occupancyKey struct {
	hallID string
	date   calendar.Date
}

type occupancyEntry struct {
	reservations []scheduler.Reservation
	expiresAt    time.Time
}

func newOccupancyCache(ttl time.Duration, maxEntries int, now func() time.Time) *occupancyCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &occupancyCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[occupancyKey]occupancyEntry),
	}
}

func (c *occupancyCache) Get(hallID string, date calendar.Date) ([]scheduler.Reservation, bool) {
	if c == nil {
		return nil, false
	}
	key := occupancyKey{hallID: hallID, date: date}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneReservations(entry.reservations), true
}

func (c *occupancyCache) Store(hallID string, date calendar.Date, reservations []scheduler.Reservation) {
	if c == nil {
		return
	}
	cloned := cloneReservations(reservations)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[occupancyKey{hallID: hallID, date: date}] = occupancyEntry{reservations: cloned, expiresAt: expiry}
}

// Invalidate drops the entry for one hall and day.
func (c *occupancyCache) Invalidate(hallID string, date calendar.Date) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, occupancyKey{hallID: hallID, date: date})
	c.mu.Unlock()
}

// Reset drops every entry.
func (c *occupancyCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[occupancyKey]occupancyEntry)
	c.mu.Unlock()
}

func (c *occupancyCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *occupancyCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneReservations(reservations []scheduler.Reservation) []scheduler.Reservation {
	if len(reservations) == 0 {
		return nil
	}
	out := make([]scheduler.Reservation, len(reservations))
	copy(out, reservations)
	return out
}

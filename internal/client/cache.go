package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// CacheEntry is the last successful verification, or a locally minted demo
// subscription.
type CacheEntry struct {
	Valid            bool      `json:"valid"`
	Expires          time.Time `json:"expires"`
	LastChecked      time.Time `json:"lastChecked"`
	Email            string    `json:"email"`
	Plan             string    `json:"plan,omitempty"`
	DaysLeft         int       `json:"days_left,omitempty"`
	TestSubscription bool      `json:"isTestSubscription,omitempty"`
}

// usable reports whether the entry may stand in for email at now.
func (e *CacheEntry) usable(email string, now time.Time) bool {
	return e != nil && e.Valid && e.Email == email && e.Expires.After(now)
}

// fresh additionally requires the entry to be verified within window.
func (e *CacheEntry) fresh(email string, now time.Time, window time.Duration) bool {
	return e.usable(email, now) && now.Sub(e.LastChecked) <= window
}

type LicenseCache struct {
	store Storage
}

func NewLicenseCache(store Storage) *LicenseCache {
	return &LicenseCache{store: store}
}

// Read returns nil when nothing is cached.
func (c *LicenseCache) Read() (*CacheEntry, error) {
	raw, ok, err := c.store.Get(KeySubscriptionCache)
	if err != nil || !ok {
		return nil, err
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decoding subscription cache: %w", err)
	}
	return &entry, nil
}

func (c *LicenseCache) Write(entry CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Set(KeySubscriptionCache, string(data))
}

func (c *LicenseCache) Clear() error {
	return c.store.Delete(KeySubscriptionCache)
}

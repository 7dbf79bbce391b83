// Package apikey defines inbound A2A caller credentials.
package apikey

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentlink/internal/domain"
)

// Prefix starts every generated key so it is recognizable in logs and configs.
const Prefix = "a2a_"

// RegistryVersion is the current on-disk registry format.
const RegistryVersion = 1

// ErrKeyNotFound is returned when a key id is not in the registry.
var ErrKeyNotFound = fmt.Errorf("api key %w", domain.ErrNotFound)

// Key is a stored credential. The plaintext secret is never persisted.
type Key struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	KeyHash     string     `json:"keyHash,omitempty"`
	KeyPrefix   string     `json:"keyPrefix"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Active reports whether the key may still authenticate at now.
func (k *Key) Active(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// Touch sets LastUsedAt to now unless that would move it backwards.
func (k *Key) Touch(now time.Time) {
	if k.LastUsedAt != nil && !now.After(*k.LastUsedAt) {
		return
	}
	t := now.UTC()
	k.LastUsedAt = &t
}

// Redacted returns a copy without the hash, for listing.
func (k Key) Redacted() Key {
	k.KeyHash = ""
	return k
}

// Registry is the per-project key file.
type Registry struct {
	Version int   `json:"version"`
	Keys    []Key `json:"keys"`
}

// Find returns the key with the given id.
func (r *Registry) Find(id string) (*Key, bool) {
	for i := range r.Keys {
		if r.Keys[i].ID == id {
			return &r.Keys[i], true
		}
	}
	return nil, false
}

// SettleExpired stamps RevokedAt on keys whose grace period has ended.
// It reports whether anything changed.
func (r *Registry) SettleExpired(now time.Time) bool {
	changed := false
	for i := range r.Keys {
		k := &r.Keys[i]
		if k.RevokedAt == nil && k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
			at := *k.ExpiresAt
			k.RevokedAt = &at
			changed = true
		}
	}
	return changed
}

// CreateResult is returned once after generating a key.
// PlainKey is never stored.
type CreateResult struct {
	PlainKey string `json:"plainKey"`
	Key      Key    `json:"key"`
}

// ValidateDescription checks a key description.
func ValidateDescription(desc string) error {
	if len(desc) > 256 {
		return fmt.Errorf("description must be at most 256 characters: %w", domain.ErrValidation)
	}
	return nil
}

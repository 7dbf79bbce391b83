package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"

	alotel "github.com/Strob0t/agentlink/internal/adapter/otel"
	"github.com/Strob0t/agentlink/internal/domain"
	"github.com/Strob0t/agentlink/internal/domain/apikey"
	"github.com/Strob0t/agentlink/internal/port/apikeystore"
)

const (
	secretBytes = 32
	// visible secret characters kept in KeyPrefix for identification
	prefixSecretChars = 4
)

// APIKeyService issues and checks the project-scoped keys inbound callers
// present. Only bcrypt hashes are stored.
type APIKeyService struct {
	store   apikeystore.Store
	cost    int
	metrics *alotel.Metrics
	now     func() time.Time
}

// NewAPIKeyService creates an APIKeyService hashing with the given bcrypt cost.
func NewAPIKeyService(store apikeystore.Store, bcryptCost int) *APIKeyService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &APIKeyService{store: store, cost: bcryptCost, now: time.Now}
}

// SetMetrics sets the OTEL metrics instruments.
func (s *APIKeyService) SetMetrics(m *alotel.Metrics) {
	s.metrics = m
}

// GenerateAPIKey creates a key for the project. The plaintext is returned
// once and never stored.
func (s *APIKeyService) GenerateAPIKey(ctx context.Context, projectID, description string) (*apikey.CreateResult, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required: %w", domain.ErrValidation)
	}
	if err := apikey.ValidateDescription(description); err != nil {
		return nil, err
	}
	res, err := s.newKey(projectID, description)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, projectID, func(r *apikey.Registry) (bool, error) {
		r.SettleExpired(s.now())
		r.Keys = append(r.Keys, res.Key)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}
	slog.InfoContext(ctx, "api key generated", "project_id", projectID, "key_id", res.Key.ID)
	res.Key = res.Key.Redacted()
	return res, nil
}

// ValidateAPIKey reports whether candidate is an active key of the project.
// On success the key's LastUsedAt is advanced.
func (s *APIKeyService) ValidateAPIKey(ctx context.Context, projectID, candidate string) (*apikey.Key, bool, error) {
	if projectID == "" || !strings.HasPrefix(candidate, apikey.Prefix) {
		s.recordValidation(ctx, projectID, "malformed")
		return nil, false, nil
	}
	reg, err := s.store.Load(ctx, projectID)
	if err != nil {
		return nil, false, fmt.Errorf("load api keys: %w", err)
	}

	now := s.now()
	var matched *apikey.Key
	for i := range reg.Keys {
		k := &reg.Keys[i]
		if !k.Active(now) || !strings.HasPrefix(candidate, k.KeyPrefix) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(candidate)) == nil {
			matched = k
			break
		}
	}
	if matched == nil {
		s.recordValidation(ctx, projectID, "rejected")
		return nil, false, nil
	}

	// Re-check under the lock: the key may have been revoked meanwhile.
	var current apikey.Key
	active := false
	err = s.store.Update(ctx, projectID, func(r *apikey.Registry) (bool, error) {
		now := s.now()
		settled := r.SettleExpired(now)
		k, ok := r.Find(matched.ID)
		if !ok || !k.Active(now) {
			return settled, nil
		}
		k.Touch(now)
		current = k.Redacted()
		active = true
		return true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("record api key use: %w", err)
	}
	if !active {
		s.recordValidation(ctx, projectID, "rejected")
		return nil, false, nil
	}
	s.recordValidation(ctx, projectID, "accepted")
	return &current, true, nil
}

// RevokeAPIKey revokes the key. Revoking twice is a no-op; found is false
// for unknown ids.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, projectID, keyID string) (bool, error) {
	found := false
	err := s.store.Update(ctx, projectID, func(r *apikey.Registry) (bool, error) {
		now := s.now().UTC()
		changed := r.SettleExpired(now)
		k, ok := r.Find(keyID)
		if !ok {
			return changed, nil
		}
		found = true
		if k.RevokedAt != nil {
			return changed, nil
		}
		k.RevokedAt = &now
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	if found {
		slog.InfoContext(ctx, "api key revoked", "project_id", projectID, "key_id", keyID)
	}
	return found, nil
}

// RotateAPIKey issues a replacement for oldKeyID. The old key stays valid
// for grace and is then treated as revoked; a non-positive grace revokes it
// immediately.
func (s *APIKeyService) RotateAPIKey(ctx context.Context, projectID, oldKeyID, description string, grace time.Duration) (*apikey.CreateResult, error) {
	if err := apikey.ValidateDescription(description); err != nil {
		return nil, err
	}
	res, err := s.newKey(projectID, description)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, projectID, func(r *apikey.Registry) (bool, error) {
		now := s.now().UTC()
		r.SettleExpired(now)
		old, ok := r.Find(oldKeyID)
		if !ok {
			return false, fmt.Errorf("rotate %s: %w", oldKeyID, apikey.ErrKeyNotFound)
		}
		if !old.Active(now) {
			return false, fmt.Errorf("key %s is already revoked: %w", oldKeyID, domain.ErrValidation)
		}
		if grace > 0 {
			deadline := now.Add(grace)
			old.ExpiresAt = &deadline
		} else {
			old.RevokedAt = &now
		}
		r.Keys = append(r.Keys, res.Key)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "api key rotated", "project_id", projectID, "old_key_id", oldKeyID, "key_id", res.Key.ID, "grace", grace)
	res.Key = res.Key.Redacted()
	return res, nil
}

// ListAPIKeys returns key metadata, oldest first, without hashes.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, projectID string, includeRevoked bool) ([]apikey.Key, error) {
	reg, err := s.store.Load(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}
	now := s.now()
	reg.SettleExpired(now)
	out := make([]apikey.Key, 0, len(reg.Keys))
	for _, k := range reg.Keys {
		if !includeRevoked && !k.Active(now) {
			continue
		}
		out = append(out, k.Redacted())
	}
	slices.SortStableFunc(out, func(a, b apikey.Key) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// newKey builds a key record and its plaintext. Hashing happens here,
// outside any registry lock.
func (s *APIKeyService) newKey(projectID, description string) (*apikey.CreateResult, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	plain := apikey.Prefix + projectTag(projectID) + "_" + base64.RawURLEncoding.EncodeToString(secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}
	visible := len(apikey.Prefix) + 8 + 1 + prefixSecretChars
	return &apikey.CreateResult{
		PlainKey: plain,
		Key: apikey.Key{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			KeyHash:     string(hash),
			KeyPrefix:   plain[:visible],
			Description: description,
			CreatedAt:   s.now().UTC(),
		},
	}, nil
}

// projectTag is the first 8 hex chars of SHA-256(projectID).
func projectTag(projectID string) string {
	sum := sha256.Sum256([]byte(projectID))
	return hex.EncodeToString(sum[:])[:8]
}

func (s *APIKeyService) recordValidation(ctx context.Context, projectID, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.KeyValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("result", result),
	))
}

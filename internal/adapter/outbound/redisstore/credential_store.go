// Package redisstore persists session credentials in Redis so several
// storefront processes on different hosts can share one login.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

// Compile-time interface check.
var _ session.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps the credential of one profile under a single key.
type CredentialStore struct {
	client  *redis.Client
	profile string
	ttl     time.Duration
}

// NewCredentialStore creates a store for profile. A zero ttl keeps the key
// until it is cleared.
func NewCredentialStore(client *redis.Client, profile string, ttl time.Duration) *CredentialStore {
	if profile == "" {
		profile = "default"
	}
	return &CredentialStore{
		client:  client,
		profile: profile,
		ttl:     ttl,
	}
}

// Load returns the stored credential.
func (s *CredentialStore) Load(ctx context.Context) (string, error) {
	credential, err := s.client.Get(ctx, credentialKey(s.profile)).Result()
	if errors.Is(err, redis.Nil) {
		return "", session.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	if credential == "" {
		return "", session.ErrNoCredential
	}
	return credential, nil
}

// Save replaces the stored credential.
func (s *CredentialStore) Save(ctx context.Context, credential string) error {
	if err := s.client.Set(ctx, credentialKey(s.profile), credential, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Clear deletes the stored credential.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, credentialKey(s.profile)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func credentialKey(profile string) string {
	return fmt.Sprintf("storefront:credential:%s", profile)
}

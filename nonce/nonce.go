// Package nonce implements the registrar's anti-replay cache for the
// nonces it issues to pledges/registrar-agents and must reject on
// reuse (spec.md §4.2 "replay-detected" edge case). Grounded on the
// teacher's go-redis/redis/v8 usage pattern (the same client the pack
// uses elsewhere for short-lived keyed state) rather than hand-rolling
// an in-memory map, since a registrar is expected to run more than one
// replica sharing one nonce space.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brski-prm/brski-prm-go/berrors"
)

// DefaultTTL bounds how long an issued nonce remains redeemable.
const DefaultTTL = 5 * time.Minute

// Service issues and redeems single-use nonces.
type Service struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New constructs a Service backed by the given Redis client.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Issue generates a fresh nonce and records it as outstanding.
func (s *Service) Issue(ctx context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", berrors.New(berrors.Internal, "nonce: rng failure: %s", err)
	}
	n := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.rdb.Set(ctx, s.key(n), 1, s.ttl).Err(); err != nil {
		return "", berrors.TransportError("nonce: redis set failed: %s", err)
	}
	return n, nil
}

// Redeem atomically consumes a nonce, returning berrors.SignatureInvalid
// if it was never issued, already redeemed, or expired (all three look
// identical to the caller, deliberately: spec.md's replay-detected
// edge case does not distinguish them).
func (s *Service) Redeem(ctx context.Context, n string) error {
	deleted, err := s.rdb.Del(ctx, s.key(n)).Result()
	if err != nil {
		return berrors.TransportError("nonce: redis del failed: %s", err)
	}
	if deleted == 0 {
		return berrors.SignatureInvalidError("nonce: replay detected or unknown nonce")
	}
	return nil
}

// Claim atomically records a nonce as seen for the first time,
// returning berrors.SignatureInvalid if it was already claimed within
// the TTL window. Unlike Issue/Redeem, Claim does not require the
// registrar to have generated the nonce itself — it is used to detect
// replay of nonces the pledge generates on its own (spec.md §4.5 step
// 2's PVR nonce, carried unchanged into the RVR at step 5).
func (s *Service) Claim(ctx context.Context, n string) error {
	ok, err := s.rdb.SetNX(ctx, s.key(n), 1, s.ttl).Result()
	if err != nil {
		return berrors.TransportError("nonce: redis setnx failed: %s", err)
	}
	if !ok {
		return berrors.SignatureInvalidError("nonce: replay detected")
	}
	return nil
}

func (s *Service) key(n string) string {
	return s.prefix + ":nonce:" + n
}

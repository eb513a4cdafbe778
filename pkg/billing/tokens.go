package billing

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// TokenStore manages activation tokens: opaque single-use credentials that
// bind a purchase (or manual grant) to a plan. Tokens end up in user-facing
// deep links, so they must be unguessable.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

const tokenBytes = 28

func NewTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Mint inserts a fresh unconsumed token. Collisions are negligible at 28
// random bytes; a unique-constraint violation gets one retry anyway.
func (s *TokenStore) Mint(planID uint, provider, providerRef string, ttl time.Duration) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := NewTokenValue()
		if err != nil {
			return "", err
		}

		err = s.db.Exec(`
			INSERT INTO activation_tokens (token, plan_id, provider, provider_ref, expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, NOW(), NOW())
		`, token, planID, provider, providerRef, time.Now().Add(ttl)).Error
		if err == nil {
			return token, nil
		}
		if attempt == 1 {
			return "", err
		}
	}
	return "", nil
}

// MergeFromEvent handles webhook re-delivery: an existing token row only
// gets its provider_ref refreshed (never plan or expiry), a missing one is
// created from the event metadata.
func (s *TokenStore) MergeFromEvent(token string, planID uint, providerRef string, ttl time.Duration) error {
	res := s.db.Exec(`
		UPDATE activation_tokens
		SET provider = 'stripe', provider_ref = ?, updated_at = NOW()
		WHERE token = ?
	`, providerRef, token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	return s.db.Exec(`
		INSERT INTO activation_tokens (token, plan_id, provider, provider_ref, expires_at, created_at, updated_at)
		VALUES (?, ?, 'stripe', ?, ?, NOW(), NOW())
	`, token, planID, providerRef, time.Now().Add(ttl)).Error
}

type TokenInfo struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}

func (s *TokenStore) Lookup(token string) (*TokenInfo, error) {
	var info TokenInfo
	res := s.db.Raw(`
		SELECT token, expires_at, used_at
		FROM activation_tokens
		WHERE token = ?
		LIMIT 1
	`, token).Scan(&info)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTokenNotFound
	}
	return &info, nil
}

// LookupByCheckoutSession finds the newest token whose provider_ref
// references a checkout session id; used by the store success page before
// the user ever sees the raw token.
func (s *TokenStore) LookupByCheckoutSession(sessionID string) (*TokenInfo, error) {
	var info TokenInfo
	res := s.db.Raw(`
		SELECT token, expires_at, used_at
		FROM activation_tokens
		WHERE provider = 'stripe' AND provider_ref LIKE ?
		ORDER BY expires_at DESC
		LIMIT 1
	`, "%|cs:"+sessionID+"%").Scan(&info)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTokenNotFound
	}
	return &info, nil
}

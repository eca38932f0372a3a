package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/99designs/keyring"
	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

// Load implements TokenStore.
func (s *MemoryStore) Load(_ context.Context, key string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[key]
	if !ok {
		return Token{}, ErrNoToken
	}
	return tok, nil
}

// Save implements TokenStore.
func (s *MemoryStore) Save(_ context.Context, key string, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]Token)
	}
	s.tokens[key] = tok
	return nil
}

// Delete implements TokenStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

const keyringTokenPrefix = "token:"

// KeyringStore keeps tokens in an OS keyring.
type KeyringStore struct {
	Ring keyring.Keyring
}

var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore wraps ring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{Ring: ring}
}

// Load implements TokenStore.
func (s *KeyringStore) Load(_ context.Context, key string) (Token, error) {
	item, err := s.Ring.Get(keyringTokenPrefix + key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Token{}, ErrNoToken
		}
		return Token{}, fmt.Errorf("failed to read token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return Token{}, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return tok, nil
}

// Save implements TokenStore.
func (s *KeyringStore) Save(_ context.Context, key string, tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.Ring.Set(keyring.Item{
		Key:   keyringTokenPrefix + key,
		Data:  data,
		Label: "apiconn token (" + key + ")",
	}); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete implements TokenStore.
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	if err := s.Ring.Remove(keyringTokenPrefix + key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// DefaultRedisPrefix namespaces token keys in Redis.
const DefaultRedisPrefix = "apiconn:token:"

// RedisStore keeps tokens in Redis so several processes can share one
// refreshed token.
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
	Now    func() time.Time
}

var _ TokenStore = (*RedisStore)(nil)

// NewRedisStore wraps client with the default key prefix.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{Client: client, Prefix: DefaultRedisPrefix, Now: time.Now}
}

func (s *RedisStore) key(key string) string {
	return s.Prefix + key
}

// Load implements TokenStore.
func (s *RedisStore) Load(ctx context.Context, key string) (Token, error) {
	data, err := s.Client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, ErrNoToken
		}
		return Token{}, fmt.Errorf("failed to read token from redis: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return tok, nil
}

// Save implements TokenStore. Tokens without a refresh token expire from
// Redis together with the access token.
func (s *RedisStore) Save(ctx context.Context, key string, tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	var ttl time.Duration
	if tok.RefreshToken == "" && !tok.ExpiresAt.IsZero() {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		ttl = tok.ExpiresAt.Sub(now())
		if ttl <= 0 {
			return s.Delete(ctx, key)
		}
	}
	if err := s.Client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token to redis: %w", err)
	}
	return nil
}

// Delete implements TokenStore.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}
	return nil
}

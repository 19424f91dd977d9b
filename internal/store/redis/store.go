// Package redis implements the state store on Redis, one string value per
// session. Suitable when several composer instances share sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/store"
)

const keyPrefix = "composer:session:"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is a Redis implementation of the state store.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	raw, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewConversationState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	state, ok := store.Decode(raw, sessionID)
	if !ok {
		return domain.NewConversationState(sessionID), nil
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return domain.ErrEmptySessionID
	}

	store.Stamp(state, s.now())

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.SessionID, err)
	}

	if err := s.client.Set(ctx, key(state.SessionID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.SessionInfo, error) {
	infos := []store.SessionInfo{}

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		sessionID := k[len(keyPrefix):]

		raw, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}

		state, ok := store.Decode(raw, sessionID)
		if !ok {
			s.client.Del(ctx, k)
			continue
		}
		infos = append(infos, store.Info(state))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
	return infos, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	removed, err := s.client.Del(ctx, key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return removed > 0, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

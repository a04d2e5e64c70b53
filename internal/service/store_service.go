package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const storeKeyPrefix = "passport"

type StoreServiceConfig struct {
	Address  string
	Password string
	DB       int
}

// StoreService wraps the shared store every replica talks to. All transient
// protocol state (codes, tokens, sessions, bindings, blacklist markers)
// lives here so the issuer itself stays stateless.
type StoreService struct {
	Config StoreServiceConfig
	client *redis.Client
}

func NewStoreService(config StoreServiceConfig) *StoreService {
	return &StoreService{
		Config: config,
	}
}

func (store *StoreService) Init() error {
	client := redis.NewClient(&redis.Options{
		Addr:     store.Config.Address,
		Password: store.Config.Password,
		DB:       store.Config.DB,
	})

	operation := func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return struct{}{}, client.Ping(ctx).Err()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond

	_, err := backoff.Retry(context.TODO(), operation, backoff.WithBackOff(exp), backoff.WithMaxTries(5))

	if err != nil {
		return err
	}

	store.client = client
	log.Info().Str("address", store.Config.Address).Msg("Connected to store")
	return nil
}

func (store *StoreService) Close() error {
	if store.client == nil {
		return nil
	}
	return store.client.Close()
}

func (store *StoreService) Client() *redis.Client {
	return store.client
}

// Ping verifies the store connection is still live.
func (store *StoreService) Ping(ctx context.Context) error {
	return store.client.Ping(ctx).Err()
}

// Key builds a namespaced store key, e.g. Key("sso", "token", t).
func (store *StoreService) Key(parts ...string) string {
	return storeKeyPrefix + ":" + strings.Join(parts, ":")
}

func (store *StoreService) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON returns false with a nil error on a missing key.
func (store *StoreService) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := store.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// ConsumeJSON atomically fetches and deletes a key, returning false when the
// key did not exist. Used for one-shot records like CSRF states.
func (store *StoreService) ConsumeJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := store.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (store *StoreService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return store.client.Del(ctx, keys...).Err()
}

func (store *StoreService) Exists(ctx context.Context, key string) (bool, error) {
	n, err := store.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is the agent's durable client storage: the small set of values
// that must survive a process restart (tokens, the in-flight transaction
// snapshot, dismissed announcement ids). Absent values come back as empty
// with a nil error; only transport failures are errors.
type Storage interface {
	AuthToken(ctx context.Context) (string, error)
	SetAuthToken(ctx context.Context, token string) error
	ClearAuthToken(ctx context.Context) error

	SaveSnapshot(ctx context.Context, data []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
	ClearSnapshot(ctx context.Context) error

	PaymentToken(ctx context.Context, orderID string) (string, error)
	SetPaymentToken(ctx context.Context, orderID, token string) error
	DeletePaymentToken(ctx context.Context, orderID string) error

	DismissAnnouncement(ctx context.Context, id string) error
	DismissedAnnouncements(ctx context.Context) ([]string, error)
}

// Redis implements Storage on a Redis instance, keyed per machine.
type Redis struct {
	rdb       *redis.Client
	machineID string
}

func NewRedis(addr, machineID string) *Redis {
	r := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	return &Redis{rdb: r, machineID: machineID}
}

func (s *Redis) Close() error { return s.rdb.Close() }

// Ping verifies connectivity at startup.
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Redis) AuthToken(ctx context.Context) (string, error) {
	return s.get(ctx, fmt.Sprintf(KeyAuthToken, s.machineID))
}

func (s *Redis) SetAuthToken(ctx context.Context, token string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyAuthToken, s.machineID), token, TTLAuthToken).Err()
}

func (s *Redis) ClearAuthToken(ctx context.Context) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyAuthToken, s.machineID)).Err()
}

func (s *Redis) SaveSnapshot(ctx context.Context, data []byte) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyTxnSnapshot, s.machineID), data, TTLTxnSnapshot).Err()
}

func (s *Redis) LoadSnapshot(ctx context.Context) ([]byte, error) {
	v, err := s.rdb.Get(ctx, fmt.Sprintf(KeyTxnSnapshot, s.machineID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

func (s *Redis) ClearSnapshot(ctx context.Context) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyTxnSnapshot, s.machineID)).Err()
}

func (s *Redis) PaymentToken(ctx context.Context, orderID string) (string, error) {
	return s.get(ctx, fmt.Sprintf(KeyPaymentToken, s.machineID, orderID))
}

func (s *Redis) SetPaymentToken(ctx context.Context, orderID, token string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyPaymentToken, s.machineID, orderID), token, TTLPaymentToken).Err()
}

func (s *Redis) DeletePaymentToken(ctx context.Context, orderID string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyPaymentToken, s.machineID, orderID)).Err()
}

func (s *Redis) DismissAnnouncement(ctx context.Context, id string) error {
	key := fmt.Sprintf(KeyDismissedAnnouncements, s.machineID)
	if err := s.rdb.SAdd(ctx, key, id).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, TTLDismissed).Err()
}

func (s *Redis) DismissedAnnouncements(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, fmt.Sprintf(KeyDismissedAnnouncements, s.machineID)).Result()
}

func (s *Redis) get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/storefront/checkout-go/retry"
)

const (
	approvalPrefix = "checkout:v1:approval:"
	claimPrefix    = "checkout:v1:tx:"
	orderPrefix    = "checkout:v1:order:"
)

// RedisStore persists approvals and orders in Redis.
type RedisStore struct {
	client      *redis.Client
	approvalTTL time.Duration
}

var (
	_ ApprovalStore = (*RedisStore)(nil)
	_ OrderStore    = (*RedisStore)(nil)
)

// NewRedisClient configures a Redis client and verifies connectivity, retrying
// the ping while Redis is still starting.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry.Do(ctx, retry.DefaultConfig, retry.Always, ping); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps client. Pending approvals expire after approvalTTL;
// zero keeps them until deleted.
func NewRedisStore(client *redis.Client, approvalTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, approvalTTL: approvalTTL}
}

func (r *RedisStore) SaveApproval(ctx context.Context, approval PendingApproval) error {
	data, err := json.Marshal(approval)
	if err != nil {
		return fmt.Errorf("encode approval: %w", err)
	}
	if err := r.client.Set(ctx, approvalPrefix+approval.Key().String(), data, r.approvalTTL).Err(); err != nil {
		return fmt.Errorf("save approval: %w", err)
	}
	return nil
}

func (r *RedisStore) GetApproval(ctx context.Context, key ApprovalKey) (*PendingApproval, error) {
	var a PendingApproval
	if err := r.getJSON(ctx, approvalPrefix+key.String(), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *RedisStore) DeleteApproval(ctx context.Context, key ApprovalKey) error {
	if err := r.client.Del(ctx, approvalPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("delete approval: %w", err)
	}
	return nil
}

func (r *RedisStore) ClaimTransaction(ctx context.Context, txHash common.Hash, orderID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, claimKey(txHash), orderID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim transaction: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) ReleaseTransaction(ctx context.Context, txHash common.Hash) error {
	if err := r.client.Del(ctx, claimKey(txHash)).Err(); err != nil {
		return fmt.Errorf("release transaction: %w", err)
	}
	return nil
}

func (r *RedisStore) ClaimedOrder(ctx context.Context, txHash common.Hash) (string, error) {
	id, err := r.client.Get(ctx, claimKey(txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get claim: %w", err)
	}
	return id, nil
}

func (r *RedisStore) SaveOrder(ctx context.Context, order Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := r.client.Set(ctx, orderPrefix+order.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (r *RedisStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := r.getJSON(ctx, orderPrefix+id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func claimKey(txHash common.Hash) string {
	return claimPrefix + strings.ToLower(txHash.Hex())
}

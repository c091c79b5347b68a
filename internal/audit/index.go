package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	platformredis "agentvault/internal/platform/redis"
)

// BlobIndex remembers which content ids belong to which vault so auditors
// can find a vault's records without scanning the blob store. Like the
// mirror itself it is best-effort and non-authoritative; the original system
// kept this index client-side.
type BlobIndex interface {
	Record(ctx context.Context, vaultID uuid.UUID, contentID string) error
	List(ctx context.Context, vaultID uuid.UUID) ([]string, error)
}

// RedisIndex stores content ids in a per-vault list.
type RedisIndex struct {
	client *platformredis.Client
}

func NewRedisIndex(client *platformredis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func indexKey(vaultID uuid.UUID) string {
	return "agentvault:audit:" + vaultID.String()
}

func (i *RedisIndex) Record(ctx context.Context, vaultID uuid.UUID, contentID string) error {
	if err := i.client.RPush(ctx, indexKey(vaultID), contentID).Err(); err != nil {
		return fmt.Errorf("index audit blob: %w", err)
	}
	return nil
}

func (i *RedisIndex) List(ctx context.Context, vaultID uuid.UUID) ([]string, error) {
	ids, err := i.client.LRange(ctx, indexKey(vaultID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list audit blobs: %w", err)
	}
	return ids, nil
}

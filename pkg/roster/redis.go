package roster

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces roster sets in Redis.
const DefaultKeyPrefix = "carehub:roster"

// RedisRoster keeps one Redis set of subject ids per role group.
type RedisRoster struct {
	client *redis.Client
	prefix string
}

// NewRedisRoster creates a roster on client. An empty prefix uses
// DefaultKeyPrefix.
func NewRedisRoster(client *redis.Client, prefix string) *RedisRoster {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisRoster{client: client, prefix: prefix}
}

func (r *RedisRoster) key(roleGroup string) string {
	return fmt.Sprintf("%s:%s", r.prefix, roleGroup)
}

// Add puts the subject into the role group's roster.
func (r *RedisRoster) Add(ctx context.Context, roleGroup string, subjectID int64) error {
	if err := r.client.SAdd(ctx, r.key(roleGroup), subjectID).Err(); err != nil {
		return fmt.Errorf("redis sadd failed: %w", err)
	}
	return nil
}

// Remove takes the subject out of the role group's roster.
func (r *RedisRoster) Remove(ctx context.Context, roleGroup string, subjectID int64) error {
	if err := r.client.SRem(ctx, r.key(roleGroup), subjectID).Err(); err != nil {
		return fmt.Errorf("redis srem failed: %w", err)
	}
	return nil
}

// List returns the subjects in the role group's roster in ascending order.
func (r *RedisRoster) List(ctx context.Context, roleGroup string) ([]int64, error) {
	members, err := r.client.SMembers(ctx, r.key(roleGroup)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid roster entry %q in %s: %w", m, r.key(roleGroup), err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ScanKeys returns every key matching pattern using SCAN so the server is
// never blocked by KEYS.
func ScanKeys(ctx context.Context, client redis.UniversalClient, pattern string, batch int64) ([]string, error) {
	if batch <= 0 {
		batch = 500
	}

	keys := make([]string, 0)
	var cursor uint64
	for {
		page, next, err := client.Scan(ctx, cursor, pattern, batch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if cursor = next; cursor == 0 {
			break
		}
	}
	return keys, nil
}

// DeleteMatching removes every key matching pattern in batches and returns
// the number of deleted keys.
func DeleteMatching(ctx context.Context, client redis.UniversalClient, pattern string, batch int64) (int, error) {
	keys, err := ScanKeys(ctx, client, pattern, batch)
	if err != nil {
		return 0, err
	}

	deleted := 0
	size := int(max(batch, 1))
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		n, err := client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
	}
	return deleted, nil
}

package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

// ValkeyCache memoizes insight results across instances.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache constructs a cache backed by Valkey.
func NewValkeyCache(client valkey.Client, prefix string) *ValkeyCache {
	if prefix == "" {
		prefix = "insight"
	}
	return &ValkeyCache{client: client, prefix: prefix}
}

func (c *ValkeyCache) Get(ctx context.Context, key string) (insight.InsightResult, bool, error) {
	payload, err := c.client.Do(ctx, c.client.B().Get().Key(c.entryKey(key)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return insight.InsightResult{}, false, nil
		}
		return insight.InsightResult{}, false, err
	}
	var result insight.InsightResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return insight.InsightResult{}, false, err
	}
	if result.Citations == nil {
		result.Citations = []string{}
	}
	return result, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key string, result insight.InsightResult, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	builder := c.client.B().Set().Key(c.entryKey(key)).Value(string(payload))
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

func (c *ValkeyCache) entryKey(key string) string {
	return fmt.Sprintf("%s:result:%s", c.prefix, key)
}

var _ insight.ResultCache = (*ValkeyCache)(nil)

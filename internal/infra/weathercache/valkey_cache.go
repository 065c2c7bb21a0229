package weathercache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/pkg/util"
)

// ValkeyCache stores snapshots in one sorted set per location, scored by unix time.
type ValkeyCache struct {
	client    valkey.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewValkeyCache constructs a cache backed by Valkey.
func NewValkeyCache(client valkey.Client, prefix string, retention time.Duration) *ValkeyCache {
	if prefix == "" {
		prefix = "weather"
	}
	return &ValkeyCache{client: client, prefix: prefix, retention: retention, now: util.NowUTC}
}

func (c *ValkeyCache) Range(ctx context.Context, loc insight.Location, from, to time.Time) ([]insight.WeatherSnapshot, error) {
	cmd := c.client.B().Zrangebyscore().Key(c.seriesKey(loc)).Min(score(from)).Max(score(to)).Build()
	members, err := c.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]insight.WeatherSnapshot, 0, len(members))
	for _, member := range members {
		snap, err := decodeSnapshot(member)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (c *ValkeyCache) Save(ctx context.Context, loc insight.Location, snapshot insight.WeatherSnapshot) error {
	snapshot.Timestamp = snapshot.Timestamp.UTC()
	member, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	key := c.seriesKey(loc)
	at := score(snapshot.Timestamp)
	cmds := []valkey.Completed{
		c.client.B().Zremrangebyscore().Key(key).Min(at).Max(at).Build(),
		c.client.B().Zadd().Key(key).ScoreMember().ScoreMember(float64(snapshot.Timestamp.Unix()), member).Build(),
	}
	if c.retention > 0 {
		cutoff := c.now().Add(-c.retention)
		cmds = append(cmds,
			c.client.B().Zremrangebyscore().Key(key).Min("-inf").Max("(" + score(cutoff)).Build(),
			c.client.B().Expire().Key(key).Seconds(int64(c.retention/time.Second)).Build(),
		)
	}
	for _, resp := range c.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (c *ValkeyCache) seriesKey(loc insight.Location) string {
	return fmt.Sprintf("%s:series:%s", c.prefix, loc.Key())
}

func score(ts time.Time) string {
	return strconv.FormatInt(ts.Unix(), 10)
}

func encodeSnapshot(snapshot insight.WeatherSnapshot) (string, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeSnapshot(member string) (insight.WeatherSnapshot, error) {
	var snap insight.WeatherSnapshot
	if err := json.Unmarshal([]byte(member), &snap); err != nil {
		return insight.WeatherSnapshot{}, fmt.Errorf("decode cached weather: %w", err)
	}
	snap.Timestamp = snap.Timestamp.UTC()
	return snap, nil
}

var _ Store = (*ValkeyCache)(nil)

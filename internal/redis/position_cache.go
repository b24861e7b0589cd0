package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"assettracker/internal/model"
)

const PositionKeyPrefix = "position"

func PositionKey(deviceID string) string {
	return fmt.Sprintf("%s:%s", PositionKeyPrefix, deviceID)
}

// PositionCache keeps each device's latest position as JSON under position:<id>
type PositionCache struct {
	client *Client
}

func NewPositionCache(client *Client) *PositionCache {
	return &PositionCache{client: client}
}

// SaveLatest writes all positions in one pipeline
func (p *PositionCache) SaveLatest(ctx context.Context, positions map[string]model.PositionUpdate) error {
	if len(positions) == 0 {
		return nil
	}

	ctx, cancel := p.client.withTimeout(ctx)
	defer cancel()

	pipe := p.client.rdb.Pipeline()
	for id, u := range positions {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal position of %s: %w", id, err)
		}
		pipe.Set(ctx, PositionKey(id), data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save %d positions: %w", len(positions), err)
	}
	return nil
}

// LoadLatest reads every cached position. Unreadable entries are skipped.
func (p *PositionCache) LoadLatest(ctx context.Context) (map[string]model.PositionUpdate, error) {
	keys, err := p.client.ScanKeys(ctx, PositionKeyPrefix+":*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan positions: %w", err)
	}

	out := make(map[string]model.PositionUpdate, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ctx, cancel := p.client.withTimeout(ctx)
	defer cancel()

	values, err := p.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		var u model.PositionUpdate
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			p.client.logger.Warn("skipping unreadable cached position", "key", keys[i], "err", err)
			continue
		}
		if u.DeviceID == "" {
			u.DeviceID = strings.TrimPrefix(keys[i], PositionKeyPrefix+":")
		}
		out[u.DeviceID] = u
	}
	return out, nil
}

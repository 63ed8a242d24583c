package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trip-planner-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	edgeKeyPrefix  = "edge:"
	coordIdxPrefix = "edgeidx:"
)

// RedisEdgeStore is the shared, TTL-bound tier of the edge cache.
//
// Each edge lives under its own key with a redis expiry, which enforces the
// TTL invariant without a sweeper. A per-coordinate index set tracks which
// edge keys touch each rounded coordinate so a coordinate change can evict
// everything derived from it.
type RedisEdgeStore struct {
	client *redis.Client
}

func NewRedisEdgeStore(client *redis.Client) *RedisEdgeStore {
	return &RedisEdgeStore{client: client}
}

type storedEdge struct {
	Origin          domain.Coordinates   `json:"origin"`
	Destination     domain.Coordinates   `json:"destination"`
	Mode            domain.TravelMode    `json:"mode"`
	DistanceMeters  int                  `json:"distance_meters"`
	DurationSeconds int                  `json:"duration_seconds"`
	Path            []domain.Coordinates `json:"path,omitempty"`
	CachedAt        time.Time            `json:"cached_at"`
}

// Fetch cached edges for the given keys. Expired or absent keys are simply
// missing from the result.
func (s *RedisEdgeStore) GetMany(ctx context.Context, keys []string) (map[string]domain.RouteEdge, error) {
	if s.client == nil {
		return nil, errors.New("edge store: client is nil")
	}
	if len(keys) == 0 {
		return map[string]domain.RouteEdge{}, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = edgeKeyPrefix + k
	}

	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("edge store: mget: %w", err)
	}

	out := make(map[string]domain.RouteEdge, len(keys))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // nil for missing keys
		}
		var se storedEdge
		if err := json.Unmarshal([]byte(raw), &se); err != nil {
			return nil, fmt.Errorf("edge store: decode %q: %w", keys[i], err)
		}
		out[keys[i]] = domain.RouteEdge{
			Origin:          se.Origin,
			Destination:     se.Destination,
			Mode:            se.Mode,
			DistanceMeters:  se.DistanceMeters,
			DurationSeconds: se.DurationSeconds,
			Path:            se.Path,
			CachedAt:        se.CachedAt,
		}
	}
	return out, nil
}

// Store edges under their keys with the given TTL, updating the coordinate
// index alongside. Approximate edges are never passed in by the cache.
func (s *RedisEdgeStore) PutMany(ctx context.Context, edges map[string]domain.RouteEdge, ttl time.Duration) error {
	if s.client == nil {
		return errors.New("edge store: client is nil")
	}
	if len(edges) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for key, edge := range edges {
		se := storedEdge{
			Origin:          edge.Origin,
			Destination:     edge.Destination,
			Mode:            edge.Mode,
			DistanceMeters:  edge.DistanceMeters,
			DurationSeconds: edge.DurationSeconds,
			Path:            edge.Path,
			CachedAt:        edge.CachedAt,
		}
		raw, err := json.Marshal(se)
		if err != nil {
			return fmt.Errorf("edge store: encode %q: %w", key, err)
		}
		pipe.Set(ctx, edgeKeyPrefix+key, raw, ttl)

		for _, coord := range []domain.Coordinates{edge.Origin, edge.Destination} {
			idx := coordIdxPrefix + domain.CoordKey(coord)
			pipe.SAdd(ctx, idx, edgeKeyPrefix+key)
			// Index entries outlive their edges slightly; stale members are
			// harmless because DEL on a gone key is a no-op.
			pipe.Expire(ctx, idx, ttl+time.Minute)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("edge store: pipeline exec: %w", err)
	}
	return nil
}

// Drop every cached edge whose origin or destination rounds to the given
// coordinate.
func (s *RedisEdgeStore) DeleteByCoordinate(ctx context.Context, coord domain.Coordinates) error {
	if s.client == nil {
		return errors.New("edge store: client is nil")
	}

	idx := coordIdxPrefix + domain.CoordKey(coord)
	members, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("edge store: read index %q: %w", idx, err)
	}

	keys := append(members, idx)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("edge store: delete %d keys: %w", len(keys), err)
	}
	return nil
}

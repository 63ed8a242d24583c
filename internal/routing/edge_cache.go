package routing

import (
	"context"
	"log"
	"sync"
	"time"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/ports"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// EdgeSource supplies travel metrics between coordinates.
type EdgeSource interface {
	GetEdge(ctx context.Context, origin, dest domain.Coordinates, mode domain.TravelMode) (domain.RouteEdge, error)
}

// Optional extension of EdgeSource that supports batched lookups.
type EdgeBatchSource interface {
	EdgeSource
	// Return edges for many coordinate pairs at once.
	GetEdges(ctx context.Context, pairs []CoordPair, mode domain.TravelMode) (map[string]domain.RouteEdge, error)
}

// CoordPair is one origin/destination lookup request.
type CoordPair struct {
	Origin, Dest domain.Coordinates
}

type EdgeCacheConfig struct {
	// TTL bounds the lifetime of cached entries in both tiers.
	TTL time.Duration
	// MaxConcurrent caps in-flight provider calls (rate-limit respect).
	MaxConcurrent int64
	// LookupTimeout bounds a single provider call.
	LookupTimeout time.Duration
	// FallbackSpeedMPS converts a haversine distance into an estimated
	// duration when the provider is unavailable.
	FallbackSpeedMPS float64
}

func (c EdgeCacheConfig) withDefaults() EdgeCacheConfig {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 10 * time.Second
	}
	if c.FallbackSpeedMPS <= 0 {
		c.FallbackSpeedMPS = 11 // ~40 km/h, urban driving average
	}
	return c
}

type hotEntry struct {
	edge     domain.RouteEdge
	storedAt time.Time
}

// EdgeCache memoizes pairwise travel edges between rounded coordinate pairs.
//
// Lookup order: in-process hot tier, shared store tier, then the external
// provider. Concurrent lookups for one key are coalesced into a single
// upstream call; distinct keys run in parallel up to a fixed ceiling. When the
// provider fails after its own retries, the cache degrades to a haversine
// estimate tagged Approximate instead of surfacing a hard error.
type EdgeCache struct {
	provider ports.DirectionsProvider
	store    ports.EdgeStore // optional shared tier; may be nil
	cfg      EdgeCacheConfig

	group singleflight.Group
	sem   *semaphore.Weighted

	mu  sync.Mutex
	hot map[string]hotEntry

	now func() time.Time
}

func NewEdgeCache(provider ports.DirectionsProvider, store ports.EdgeStore, cfg EdgeCacheConfig) *EdgeCache {
	cfg = cfg.withDefaults()
	return &EdgeCache{
		provider: provider,
		store:    store,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		hot:      make(map[string]hotEntry),
		now:      time.Now,
	}
}

// GetEdge returns travel distance, duration and path between two coordinates.
//
// The returned edge has Approximate set when it came from the haversine
// fallback; an error is returned only for invalid input or a cancelled
// context, never for provider degradation.
func (c *EdgeCache) GetEdge(ctx context.Context, origin, dest domain.Coordinates, mode domain.TravelMode) (domain.RouteEdge, error) {
	if !origin.Valid() {
		return domain.RouteEdge{}, &domain.ValidationError{Field: "origin", Reason: "coordinates out of bounds"}
	}
	if !dest.Valid() {
		return domain.RouteEdge{}, &domain.ValidationError{Field: "destination", Reason: "coordinates out of bounds"}
	}

	o := origin.Rounded()
	d := dest.Rounded()
	if o == d {
		return domain.RouteEdge{Origin: o, Destination: d, Mode: mode, CachedAt: c.now()}, nil
	}

	key := domain.EdgeKey(origin, dest, mode)

	if edge, ok := c.fromHot(key); ok {
		return edge, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.lookup(ctx, key, o, d, mode)
	})
	if err != nil {
		return domain.RouteEdge{}, err
	}
	return v.(domain.RouteEdge), nil
}

// GetEdges resolves many coordinate pairs, fanning out under the concurrency
// ceiling. The result map is keyed by domain.EdgeKey. A pair that degrades to
// the fallback still appears in the result; only hard failures abort.
func (c *EdgeCache) GetEdges(ctx context.Context, pairs []CoordPair, mode domain.TravelMode) (map[string]domain.RouteEdge, error) {
	out := make(map[string]domain.RouteEdge, len(pairs))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for _, p := range pairs {
		wg.Add(1)
		go func(p CoordPair) {
			defer wg.Done()
			edge, err := c.GetEdge(ctx, p.Origin, p.Dest, mode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[domain.EdgeKey(p.Origin, p.Dest, mode)] = edge
		}(p)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Invalidate drops every cached edge touching the coordinate from both tiers.
// Called when a destination's coordinates change or it is removed.
func (c *EdgeCache) Invalidate(ctx context.Context, coord domain.Coordinates) error {
	target := coord.Rounded()

	c.mu.Lock()
	for key, entry := range c.hot {
		if entry.edge.Origin == target || entry.edge.Destination == target {
			delete(c.hot, key)
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.DeleteByCoordinate(ctx, coord)
}

func (c *EdgeCache) fromHot(key string) (domain.RouteEdge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.hot[key]
	if !ok {
		return domain.RouteEdge{}, false
	}
	if c.now().Sub(entry.storedAt) > c.cfg.TTL {
		delete(c.hot, key)
		return domain.RouteEdge{}, false
	}
	return entry.edge, true
}

func (c *EdgeCache) putHot(key string, edge domain.RouteEdge) {
	c.mu.Lock()
	c.hot[key] = hotEntry{edge: edge, storedAt: c.now()}
	c.mu.Unlock()
}

func (c *EdgeCache) lookup(ctx context.Context, key string, origin, dest domain.Coordinates, mode domain.TravelMode) (domain.RouteEdge, error) {
	// Re-check the hot tier: a coalesced waiter may arrive after the leader
	// already stored the entry.
	if edge, ok := c.fromHot(key); ok {
		return edge, nil
	}

	if c.store != nil {
		hits, err := c.store.GetMany(ctx, []string{key})
		if err != nil {
			log.Printf("edge cache: shared tier read failed key=%s err=%v", key, err)
		} else if edge, ok := hits[key]; ok {
			c.putHot(key, edge)
			return edge, nil
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return domain.RouteEdge{}, err
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	res, err := c.provider.Route(callCtx, origin, dest, mode)
	if err != nil {
		if ctx.Err() != nil {
			return domain.RouteEdge{}, ctx.Err()
		}
		return c.fallback(key, origin, dest, mode, err), nil
	}

	edge := domain.RouteEdge{
		Origin:          origin,
		Destination:     dest,
		Mode:            mode,
		DistanceMeters:  res.DistanceMeters,
		DurationSeconds: res.DurationSeconds,
		Path:            res.Path,
		CachedAt:        c.now(),
	}
	c.putHot(key, edge)

	if c.store != nil {
		if err := c.store.PutMany(ctx, map[string]domain.RouteEdge{key: edge}, c.cfg.TTL); err != nil {
			log.Printf("edge cache: shared tier write failed key=%s err=%v", key, err)
		}
	}
	return edge, nil
}

// fallback builds a haversine estimate tagged Approximate. It stays out of
// the shared tier so a recovered provider can replace it for other processes.
func (c *EdgeCache) fallback(key string, origin, dest domain.Coordinates, mode domain.TravelMode, cause error) domain.RouteEdge {
	svcErr := &domain.ExternalServiceError{Op: "directions route", Err: cause}
	log.Printf("edge cache: provider degraded, using haversine fallback key=%s err=%v", key, svcErr)

	meters := Haversine(origin, dest)
	edge := domain.RouteEdge{
		Origin:          origin,
		Destination:     dest,
		Mode:            mode,
		DistanceMeters:  int(meters + 0.5),
		DurationSeconds: int(meters/c.cfg.FallbackSpeedMPS + 0.5),
		Approximate:     true,
		CachedAt:        c.now(),
	}
	c.putHot(key, edge)
	return edge
}

package hydro

import (
	"container/list"
	"context"
	"strconv"
	"sync"
)

// CachedEngine memoizes derived rasters by identity, so repeated requests
// over the same inputs reuse what the wrapped engine already produced.
// CheckCapability is never cached. The cache owns the rasters it holds and
// releases them on eviction, so size must exceed the rasters one run keeps
// in flight when runs overlap.
type CachedEngine struct {
	Engine

	mu     sync.Mutex
	mem    *lru
	hits   int
	misses int
}

// NewCachedEngine wraps eng with an LRU of at most size entries.
func NewCachedEngine(eng Engine, size int) *CachedEngine {
	if size <= 0 {
		size = 64
	}
	return &CachedEngine{Engine: eng, mem: newLRU(size)}
}

// Stats reports cache hits and misses since creation.
func (c *CachedEngine) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// FormatFloat renders a numeric parameter for raster identities.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FillParams are the identity parameters of a fill with threshold.
func FillParams(threshold *float64) map[string]string {
	if threshold == nil {
		return nil
	}
	return map[string]string{"threshold": FormatFloat(*threshold)}
}

func (c *CachedEngine) FlowDirection(ctx context.Context, dem Raster) (Raster, error) {
	return c.raster(Derive(OpFlowDirection, nil, dem), func() (Raster, error) {
		return c.Engine.FlowDirection(ctx, dem)
	})
}

func (c *CachedEngine) Fill(ctx context.Context, dem Raster, threshold *float64) (Raster, error) {
	return c.raster(Derive(OpFill, FillParams(threshold), dem), func() (Raster, error) {
		return c.Engine.Fill(ctx, dem, threshold)
	})
}

func (c *CachedEngine) FlowAccumulation(ctx context.Context, flowdir Raster) (Raster, error) {
	return c.raster(Derive(OpFlowAccumulation, nil, flowdir), func() (Raster, error) {
		return c.Engine.FlowAccumulation(ctx, flowdir)
	})
}

func (c *CachedEngine) Sink(ctx context.Context, flowdir Raster) (Raster, error) {
	return c.raster(Derive(OpSink, nil, flowdir), func() (Raster, error) {
		return c.Engine.Sink(ctx, flowdir)
	})
}

func (c *CachedEngine) Minus(ctx context.Context, a, b Raster) (Raster, error) {
	return c.raster(Derive(OpMinus, nil, a, b), func() (Raster, error) {
		return c.Engine.Minus(ctx, a, b)
	})
}

func (c *CachedEngine) ZonalMean(ctx context.Context, zones Raster, field string, values Raster) (ZonalResult, error) {
	key := Derive(OpZonalMean, map[string]string{"field": field}, zones, values).Identity()
	if e, ok := c.get(key); ok {
		return e.zonal, nil
	}
	z, err := c.Engine.ZonalMean(ctx, zones, field, values)
	if err != nil {
		return ZonalResult{}, err
	}
	c.put(key, entry{raster: z.Raster, zonal: z})
	return z, nil
}

func (c *CachedEngine) DeriveStreamRaster(ctx context.Context, dem Raster) (Raster, error) {
	return c.raster(Derive(OpDeriveStreamRaster, nil, dem), func() (Raster, error) {
		return c.Engine.DeriveStreamRaster(ctx, dem)
	})
}

func (c *CachedEngine) FlowDistance(ctx context.Context, stream, dem, flowdir Raster) (Raster, error) {
	return c.raster(Derive(OpFlowDistance, nil, stream, dem, flowdir), func() (Raster, error) {
		return c.Engine.FlowDistance(ctx, stream, dem, flowdir)
	})
}

func (c *CachedEngine) FlowLength(ctx context.Context, flowdir Raster, mode FlowLengthMode) (Raster, error) {
	return c.raster(Derive(OpFlowLength, map[string]string{"mode": string(mode)}, flowdir), func() (Raster, error) {
		return c.Engine.FlowLength(ctx, flowdir, mode)
	})
}

func (c *CachedEngine) StreamLink(ctx context.Context, stream, flowdir Raster) (Raster, error) {
	return c.raster(Derive(OpStreamLink, nil, stream, flowdir), func() (Raster, error) {
		return c.Engine.StreamLink(ctx, stream, flowdir)
	})
}

func (c *CachedEngine) StreamOrder(ctx context.Context, stream, flowdir Raster) (Raster, error) {
	return c.raster(Derive(OpStreamOrder, nil, stream, flowdir), func() (Raster, error) {
		return c.Engine.StreamOrder(ctx, stream, flowdir)
	})
}

func (c *CachedEngine) SnapPourPoint(ctx context.Context, points, accumulation Raster, distance float64, field string) (Raster, error) {
	params := map[string]string{"distance": FormatFloat(distance), "field": field}
	return c.raster(Derive(OpSnapPourPoint, params, points, accumulation), func() (Raster, error) {
		return c.Engine.SnapPourPoint(ctx, points, accumulation, distance, field)
	})
}

func (c *CachedEngine) Watershed(ctx context.Context, flowdir, points Raster, field string) (Raster, error) {
	return c.raster(Derive(OpWatershed, map[string]string{"field": field}, flowdir, points), func() (Raster, error) {
		return c.Engine.Watershed(ctx, flowdir, points, field)
	})
}

func (c *CachedEngine) raster(id Raster, fn func() (Raster, error)) (Raster, error) {
	key := id.Identity()
	if e, ok := c.get(key); ok {
		return e.raster, nil
	}
	r, err := fn()
	if err != nil {
		return Raster{}, err
	}
	c.put(key, entry{raster: r})
	return r, nil
}

func (c *CachedEngine) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mem.get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

// put stores e and releases whatever the LRU evicted to make room.
func (c *CachedEngine) put(key string, e entry) {
	c.mu.Lock()
	evicted, ok := c.mem.put(key, e)
	c.mu.Unlock()
	if ok {
		_ = c.Engine.Release(context.Background(), evicted.raster)
	}
}

// Release ignores rasters the cache still holds; they are released when
// evicted.
func (c *CachedEngine) Release(ctx context.Context, r Raster) error {
	c.mu.Lock()
	held, ok := c.mem.peek(r.Identity())
	c.mu.Unlock()
	if ok && held.raster.ID == r.ID {
		return nil
	}
	return c.Engine.Release(ctx, r)
}

type entry struct {
	raster Raster
	zonal  ZonalResult
}

// lru keeps the most recently used keys at the front of order.
type lru struct {
	size  int
	order *list.List
	items map[string]*list.Element
}

type lruItem struct {
	key string
	val entry
}

func newLRU(size int) *lru {
	if size <= 0 {
		size = 1
	}
	return &lru{size: size, order: list.New(), items: make(map[string]*list.Element)}
}

func (l *lru) get(k string) (entry, bool) {
	el, ok := l.items[k]
	if !ok {
		return entry{}, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruItem).val, true
}

// peek looks k up without refreshing it.
func (l *lru) peek(k string) (entry, bool) {
	el, ok := l.items[k]
	if !ok {
		return entry{}, false
	}
	return el.Value.(*lruItem).val, true
}

// put inserts or refreshes k and returns the entry evicted to stay within
// size, if any.
func (l *lru) put(k string, v entry) (entry, bool) {
	if el, ok := l.items[k]; ok {
		el.Value.(*lruItem).val = v
		l.order.MoveToFront(el)
		return entry{}, false
	}
	l.items[k] = l.order.PushFront(&lruItem{key: k, val: v})
	if l.order.Len() <= l.size {
		return entry{}, false
	}
	oldest := l.order.Back()
	l.order.Remove(oldest)
	item := oldest.Value.(*lruItem)
	delete(l.items, item.key)
	return item.val, true
}

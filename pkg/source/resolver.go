package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/optisource/pkg/cache"
	"github.com/matzehuels/optisource/pkg/optimizely"
	"github.com/matzehuels/optisource/pkg/observability"
)

// contentResolver fetches content items by id for the expander, reading
// and filling the cache on the way.
type contentResolver struct {
	client  *optimizely.Client
	cache   cache.Cache
	keyer   cache.Keyer
	scope   string
	ttl     time.Duration
	refresh bool
}

func (r *contentResolver) Resolve(ctx context.Context, id int) (any, error) {
	key := r.keyer.ContentKey(r.scope, id)

	if !r.refresh {
		if data, hit, err := r.cache.Get(ctx, key); err == nil && hit {
			var v any
			if err := json.Unmarshal(data, &v); err == nil {
				observability.Cache().OnCacheHit(ctx, "content")
				return v, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, "content")
	}

	resp, err := r.client.Get(ctx, optimizely.ContentPath(id), nil)
	if err != nil {
		return nil, err
	}
	if resp.Data != nil {
		if data, err := json.Marshal(resp.Data); err == nil {
			if err := r.cache.Set(ctx, key, data, r.ttl); err == nil {
				observability.Cache().OnCacheSet(ctx, "content", len(data))
			}
		}
	}
	return resp.Data, nil
}

package dataset

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Loader keeps fetched datasets in memory so every page render reuses the
// same parsed copy until the TTL runs out.
type Loader struct {
	client *http.Client
	cache  *expirable.LRU[string, *Dataset]
	group  singleflight.Group
}

func NewLoader(client *http.Client, ttl time.Duration) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		client: client,
		cache:  expirable.NewLRU[string, *Dataset](4, nil, ttl),
	}
}

// Load returns the cached dataset or fetches it once for all concurrent
// callers. The shared fetch outlives any single caller's cancellation; a
// cancelled caller stops waiting and gets ctx.Err().
func (l *Loader) Load(ctx context.Context, source string) (*Dataset, error) {
	if ds, ok := l.cache.Get(source); ok {
		return ds, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(source, func() (interface{}, error) {
		ds, err := Fetch(fetchCtx, l.client, source)
		if err != nil {
			return nil, err
		}
		l.cache.Add(source, ds)
		return ds, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	}
}

// Reference binds a Loader to one source for callers that only need rows.
type Reference struct {
	loader *Loader
	source string
}

func (l *Loader) Reference(source string) *Reference {
	return &Reference{loader: l, source: source}
}

func (r *Reference) Source() string {
	return r.source
}

func (r *Reference) Dataset(ctx context.Context) (*Dataset, error) {
	return r.loader.Load(ctx, r.source)
}

func (r *Reference) FeatureMatrix(ctx context.Context) ([][]float64, error) {
	ds, err := r.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return ds.FeatureMatrix(), nil
}

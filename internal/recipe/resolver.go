package recipe

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// lookupTimeout bounds a shared remote lookup once it no longer follows any
// single caller's context.
const lookupTimeout = 15 * time.Second

// DetailSource looks up full recipe detail from the remote service.
// It returns nil, nil when the service has no such recipe.
type DetailSource interface {
	LookupRecipe(ctx context.Context, id string) (*Recipe, error)
}

// Resolver produces one fully-shaped Recipe for an id of unknown origin,
// preferring the local Store over the remote service.
type Resolver struct {
	store  *Store
	remote DetailSource
	group  singleflight.Group
}

// NewResolver creates a Resolver.
func NewResolver(store *Store, remote DetailSource) *Resolver {
	return &Resolver{store: store, remote: remote}
}

// Resolve returns the recipe with id. It returns ErrNotFound when neither
// the Store nor the remote service knows the id; remote fetch failures are
// returned as-is. A caller whose ctx ends gets ctx.Err() without cancelling
// the lookup other callers are waiting on.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Recipe, error) {
	if stored := r.store.GetByID(id); stored != nil {
		out := stored.Filled()
		return &out, nil
	}

	// Identical in-flight lookups share one request.
	ch := r.group.DoChan(id, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return r.remote.LookupRecipe(lookupCtx, id)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	fetched, _ := res.Val.(*Recipe)
	if fetched == nil {
		return nil, ErrNotFound
	}
	out := fetched.Filled()
	return &out, nil
}
